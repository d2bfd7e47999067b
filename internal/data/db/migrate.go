package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

// NoticeIDSequence backs ids.PostgresSequence.
const NoticeIDSequence = "notice_id_seq"

// Migrate brings the schema up to date. Safe to run on every boot.
func Migrate(db *gorm.DB, log *logger.Logger) error {
	if db.Dialector.Name() == DriverPostgres {
		// Must run before AutoMigrate: gorm would otherwise try to
		// alter the legacy integer columns itself and fail on the cast.
		if err := WidenNoticeIDColumns(db, log); err != nil {
			return err
		}
	}
	if err := db.AutoMigrate(notices.All()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if db.Dialector.Name() == DriverPostgres {
		if err := db.Exec(`CREATE SEQUENCE IF NOT EXISTS ` + NoticeIDSequence + ` MINVALUE 0 MAXVALUE 99 CYCLE;`).Error; err != nil {
			return fmt.Errorf("create %s: %w", NoticeIDSequence, err)
		}
	}
	return nil
}

var widenTargets = []struct {
	table  string
	column string
}{
	{"served_notices", "notice_id"},
	{"served_notices", "alert_id"},
	{"served_notices", "document_id"},
	{"notice_batch_items", "notice_id"},
	{"notice_components", "notice_id"},
}

// WidenNoticeIDColumns converts legacy INTEGER notice id columns to TEXT.
// Generated ids exceeded the signed 32-bit range in production.
func WidenNoticeIDColumns(db *gorm.DB, log *logger.Logger) error {
	for _, t := range widenTargets {
		var dataType string
		err := db.Raw(`
			SELECT data_type FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?
		`, t.table, t.column).Scan(&dataType).Error
		if err != nil {
			return fmt.Errorf("inspect %s.%s: %w", t.table, t.column, err)
		}
		switch strings.ToLower(strings.TrimSpace(dataType)) {
		case "integer", "bigint", "smallint":
		default:
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE TEXT USING %s::text`, t.table, t.column, t.column)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("widen %s.%s: %w", t.table, t.column, err)
		}
		if log != nil {
			log.Info("Widened legacy id column", "table", t.table, "column", t.column, "from", dataType)
		}
	}
	return nil
}
