package testutil

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/noticeserve-backend/internal/data/db"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	sqliteSeq atomic.Int64
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated, isolated in-memory SQLite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, sqliteSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(gdb, Logger(tb)); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return gdb
}

// PostgresDB returns a migrated Postgres database or skips the test when
// TEST_POSTGRES_DSN is unset.
func PostgresDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := db.Migrate(gdb, Logger(tb)); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return gdb
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

// FailInsertsFor installs a trigger that aborts any served_notices insert
// for recipient, simulating a constraint violation mid-batch (SQLite only).
func FailInsertsFor(tb testing.TB, gdb *gorm.DB, recipient string) {
	tb.Helper()
	stmt := fmt.Sprintf(`
		CREATE TRIGGER IF NOT EXISTS fail_recipient_%d
		BEFORE INSERT ON served_notices
		WHEN NEW.recipient_address = '%s'
		BEGIN
			SELECT RAISE(ABORT, 'CHECK constraint failed: recipient_address');
		END;`, sqliteSeq.Add(1), strings.ReplaceAll(recipient, "'", "''"))
	if err := gdb.Exec(stmt).Error; err != nil {
		tb.Fatalf("install failing trigger: %v", err)
	}
}
