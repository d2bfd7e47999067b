package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/data/aggregates"
	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/ids"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

// errDiagnosticsRollback aborts every diagnostics transaction.
var errDiagnosticsRollback = errors.New("diagnostics rollback")

type CheckStep struct {
	Name        string                   `json:"name"`
	OK          bool                     `json:"ok"`
	Error       string                   `json:"error,omitempty"`
	Diagnostics *aggregates.PgDiagnostics `json:"diagnostics,omitempty"`
}

type CheckRequest struct {
	ServerAddress string `json:"serverAddress"`
	Recipient     string `json:"recipient"`
	NoticeID      string `json:"noticeId"`
	CaseNumber    string `json:"caseNumber"`
}

type DebugReport struct {
	BatchID    string      `json:"batchId"`
	NoticeID   string      `json:"noticeId"`
	Steps      []CheckStep `json:"steps"`
	FailedStep string      `json:"failedStep,omitempty"`
	RolledBack bool        `json:"rolledBack"`
}

type HealthReport struct {
	Status         string          `json:"status"`
	Driver         string          `json:"driver"`
	Tables         map[string]bool `json:"tables"`
	NoticeIDType   string          `json:"noticeIdType"`
	NoticeIDIsText bool            `json:"noticeIdIsText"`
	TestInsert     CheckStep       `json:"testInsert"`
	CheckedAt      time.Time       `json:"checkedAt"`
}

type DiagnosticsService interface {
	// CheckWrites runs each write of the ingestion path against the live schema
	// and always rolls back.
	CheckWrites(ctx context.Context, req CheckRequest) (*DebugReport, error)
	Health(ctx context.Context) (*HealthReport, error)
}

type diagnosticsService struct {
	db    *gorm.DB
	log   *logger.Logger
	tx    aggregates.TxRunner
	repos noticerepos.Set
	ids   *ids.Generator
}

func NewDiagnosticsService(db *gorm.DB, log *logger.Logger, tx aggregates.TxRunner, repos noticerepos.Set, gen *ids.Generator) DiagnosticsService {
	if tx == nil {
		tx = aggregates.NewGormTxRunner(db)
	}
	return &diagnosticsService{
		db:    db,
		log:   log.With("service", "DiagnosticsService"),
		tx:    tx,
		repos: repos,
		ids:   gen,
	}
}

const diagnosticsAddress = "TDiagnosticsCheckAddress1111111111"

func (s *diagnosticsService) CheckWrites(ctx context.Context, req CheckRequest) (*DebugReport, error) {
	server := strings.TrimSpace(req.ServerAddress)
	if server == "" {
		server = diagnosticsAddress
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		recipient = diagnosticsAddress
	}
	noticeID := strings.TrimSpace(req.NoticeID)
	if noticeID == "" {
		noticeID = strconv.FormatInt(s.ids.SafeIntegerID(ctx), 10)
	}
	report := &DebugReport{BatchID: s.ids.TextID("DEBUG"), NoticeID: noticeID}

	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		report.Steps = append(report.Steps, s.step(dbc, "insert batch_uploads", func(sp dbctx.Context) error {
			return s.repos.Batches.Upsert(sp, &types.BatchUpload{
				BatchID:        report.BatchID,
				ServerAddress:  server,
				RecipientCount: 1,
				Status:         types.BatchStatusProcessing,
			})
		}))
		report.Steps = append(report.Steps, s.step(dbc, "insert served_notices", func(sp dbctx.Context) error {
			alert, doc := int64(0), int64(0)
			if n, ok := ids.IsSafeInteger(noticeID); ok {
				alert, doc = ids.DeriveNoticeIDs(n)
			}
			return s.repos.Notices.Upsert(sp, &types.ServedNotice{
				NoticeID:         noticeID,
				ServerAddress:    server,
				RecipientAddress: recipient,
				NoticeType:       "Diagnostics Check",
				CaseNumber:       req.CaseNumber,
				AlertID:          strconv.FormatInt(alert, 10),
				DocumentID:       strconv.FormatInt(doc, 10),
				BatchID:          report.BatchID,
			})
		}))
		report.Steps = append(report.Steps, s.step(dbc, "insert notice_batch_items", func(sp dbctx.Context) error {
			_, err := s.repos.Items.Upsert(sp, []*types.NoticeBatchItem{{
				BatchID:   report.BatchID,
				NoticeID:  noticeID,
				Recipient: recipient,
				Status:    types.ItemStatusSuccess,
			}})
			return err
		}))
		report.Steps = append(report.Steps, s.step(dbc, "insert notice_components", func(sp dbctx.Context) error {
			return s.repos.Components.Upsert(sp, &types.NoticeComponent{
				NoticeID:   noticeID,
				Component:  types.ComponentDocument,
				StorageKey: "diagnostics/check",
			})
		}))
		report.Steps = append(report.Steps, s.step(dbc, "update batch status", func(sp dbctx.Context) error {
			return s.repos.Batches.UpdateStatus(sp, report.BatchID, types.BatchStatusSuccess)
		}))
		return errDiagnosticsRollback
	})
	if err != nil && !errors.Is(err, errDiagnosticsRollback) {
		return nil, fmt.Errorf("diagnostics check: %w", err)
	}
	report.RolledBack = true
	for _, st := range report.Steps {
		if !st.OK {
			report.FailedStep = st.Name
			break
		}
	}
	if report.FailedStep != "" {
		s.log.Warn("diagnostics check found a failing write", "step", report.FailedStep, "batch_id", report.BatchID)
	}
	return report, nil
}

func (s *diagnosticsService) step(dbc dbctx.Context, name string, fn func(dbctx.Context) error) CheckStep {
	err := aggregates.Savepoint(dbc, fn)
	if err == nil {
		return CheckStep{Name: name, OK: true}
	}
	d := aggregates.Diagnose(err)
	return CheckStep{Name: name, OK: false, Error: err.Error(), Diagnostics: &d}
}

var healthTables = []string{"batch_uploads", "served_notices", "notice_batch_items", "notice_components", "id_mappings"}

func (s *diagnosticsService) Health(ctx context.Context) (*HealthReport, error) {
	db := s.db.WithContext(ctx)
	report := &HealthReport{
		Status:    "healthy",
		Driver:    db.Dialector.Name(),
		Tables:    map[string]bool{},
		CheckedAt: time.Now().UTC(),
	}
	if sqlDB, err := db.DB(); err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	} else if err := sqlDB.PingContext(ctx); err != nil {
		report.Status = "unhealthy"
		report.TestInsert = CheckStep{Name: "ping", Error: err.Error()}
		return report, nil
	}

	m := db.Migrator()
	for _, t := range healthTables {
		report.Tables[t] = m.HasTable(t)
		if !report.Tables[t] {
			report.Status = "degraded"
		}
	}
	if report.Tables["served_notices"] {
		cols, err := m.ColumnTypes(&types.ServedNotice{})
		if err != nil {
			return nil, fmt.Errorf("inspect served_notices: %w", err)
		}
		for _, c := range cols {
			if c.Name() == "notice_id" {
				report.NoticeIDType = strings.ToLower(c.DatabaseTypeName())
			}
		}
		report.NoticeIDIsText = isTextType(report.NoticeIDType)
		if !report.NoticeIDIsText {
			report.Status = "degraded"
		}
	}

	checkID := strings.Repeat("9", 12)
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		report.TestInsert = s.step(dbc, "rolled back served_notices insert", func(sp dbctx.Context) error {
			return s.repos.Notices.Upsert(sp, &types.ServedNotice{
				NoticeID:         checkID,
				ServerAddress:    diagnosticsAddress,
				RecipientAddress: diagnosticsAddress,
				BatchID:          "HEALTH",
			})
		})
		return errDiagnosticsRollback
	})
	if err != nil && !errors.Is(err, errDiagnosticsRollback) {
		return nil, fmt.Errorf("health check: %w", err)
	}
	if !report.TestInsert.OK {
		report.Status = "degraded"
	}
	return report, nil
}

func isTextType(t string) bool {
	switch t {
	case "text", "varchar", "character varying", "string":
		return true
	default:
		return strings.HasPrefix(t, "varchar")
	}
}
