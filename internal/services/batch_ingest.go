package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/batch"
	"github.com/yungbote/noticeserve-backend/internal/data/aggregates"
	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/ids"
	"github.com/yungbote/noticeserve-backend/internal/observability"
	"github.com/yungbote/noticeserve-backend/internal/platform/apierr"
	"github.com/yungbote/noticeserve-backend/internal/platform/blobstore"
	"github.com/yungbote/noticeserve-backend/internal/platform/ctxutil"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/keyseal"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
	"github.com/yungbote/noticeserve-backend/internal/platform/thumbnail"
)

type ItemResult struct {
	Recipient  string           `json:"recipient"`
	NoticeID   string           `json:"noticeId"`
	AlertID    string           `json:"alertId"`
	DocumentID string           `json:"documentId"`
	Status     types.ItemStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
}

type IngestResult struct {
	BatchID      string            `json:"batchId"`
	Status       types.BatchStatus `json:"status"`
	Results      []ItemResult      `json:"results"`
	FailureCount int               `json:"failureCount"`
	Warnings     []string          `json:"warnings"`
}

type BatchView struct {
	Batch   *types.BatchUpload       `json:"batch"`
	Items   []*types.NoticeBatchItem `json:"items"`
	Notices []*types.ServedNotice    `json:"notices"`
}

type BatchService interface {
	// Ingest writes the batch, its notices and its items in one transaction.
	// On error the returned result still carries the batch id and status
	// failed; nothing from the batch is left in the database.
	Ingest(ctx context.Context, n *batch.NormalizedBatch, att Attachments) (*IngestResult, error)
	Status(ctx context.Context, batchID string) (*BatchView, error)
}

type BatchServiceDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Tx       aggregates.TxRunner
	Hooks    aggregates.Hooks
	Repos    noticerepos.Set
	IDs      *ids.Generator
	Blobs    blobstore.Store
	Thumbs   *thumbnail.Renderer
	Sealer   *keyseal.Sealer
	Metrics  *observability.Metrics
	Timeouts IngestTimeouts
}

type IngestTimeouts struct {
	Attachments time.Duration
	Transaction time.Duration
}

type batchService struct {
	db       *gorm.DB
	log      *logger.Logger
	write    aggregates.WriteDeps
	guard    aggregates.StatusGuard
	repos    noticerepos.Set
	ids      *ids.Generator
	blobs    blobstore.Store
	thumbs   *thumbnail.Renderer
	sealer   *keyseal.Sealer
	metrics  *observability.Metrics
	timeouts IngestTimeouts
}

func NewBatchService(deps BatchServiceDeps) BatchService {
	blobs := deps.Blobs
	if blobs == nil {
		blobs = blobstore.NewMemoryStore()
	}
	return &batchService{
		db:       deps.DB,
		log:      deps.Log.With("service", "BatchService"),
		write:    aggregates.WriteDeps{DB: deps.DB, Runner: deps.Tx, Hooks: deps.Hooks},
		guard:    aggregates.NewStatusGuard(deps.DB),
		repos:    deps.Repos,
		ids:      deps.IDs,
		blobs:    blobs,
		thumbs:   deps.Thumbs,
		sealer:   deps.Sealer,
		metrics:  deps.Metrics,
		timeouts: deps.Timeouts,
	}
}

func (s *batchService) Ingest(ctx context.Context, n *batch.NormalizedBatch, att Attachments) (*IngestResult, error) {
	if n == nil || len(n.Recipients) == 0 {
		return nil, apierr.BadRequest("invalid_batch", fmt.Errorf("batch has no recipients"))
	}
	start := time.Now()
	batchID := n.BatchID
	if batchID == "" {
		batchID = s.ids.TextID("BATCH")
	}
	ctxutil.SetBatchID(ctx, batchID)
	log := s.log.With("batch_id", batchID)
	if td := ctxutil.GetTraceData(ctx); td != nil {
		log = log.With("request_id", td.RequestID, "trace_id", td.TraceID)
	}
	res := &IngestResult{BatchID: batchID, Status: types.BatchStatusProcessing, Warnings: []string{}}

	attCtx, cancel := withOptionalTimeout(ctx, s.timeouts.Attachments)
	attempt := s.ids.UUID()
	log = log.With("attempt", attempt)
	stored, err := s.storeAttachments(attCtx, batchID, attempt, n, att)
	cancel()
	if err != nil {
		res.Status = types.BatchStatusFailed
		s.metrics.ObserveBatch(string(res.Status), time.Since(start), 0, 0)
		log.Error("attachment upload failed", "error", err)
		return res, apierr.New(http.StatusBadGateway, "attachment_upload_failed", err)
	}
	if stored.thumbnail != nil && stored.thumbnail.rendered {
		res.Warnings = append(res.Warnings, "no thumbnail supplied; rendered a default alert image")
	}

	var sealedKey []byte
	if n.EncryptionKey != "" {
		if s.sealer == nil {
			res.Warnings = append(res.Warnings, "encryptionKey dropped: key sealing is not configured")
		} else if sealedKey, err = s.sealer.Seal([]byte(n.EncryptionKey)); err != nil {
			s.deleteBlobs(context.WithoutCancel(ctx), stored)
			return nil, fmt.Errorf("seal encryption key: %w", err)
		}
	}

	metadata, err := batchMetadata(n)
	if err != nil {
		s.deleteBlobs(context.WithoutCancel(ctx), stored)
		return nil, apierr.BadRequest("invalid_metadata", err)
	}

	txCtx, txCancel := withOptionalTimeout(ctx, s.timeouts.Transaction)
	defer txCancel()

	var results []ItemResult
	err = aggregates.ExecuteWrite(txCtx, s.write, "batch.ingest", func(dbc dbctx.Context) error {
		var warnings []string
		var txErr error
		results, warnings, txErr = s.writeBatch(dbc, batchID, n, stored, sealedKey, metadata)
		if txErr == nil {
			res.Warnings = append(res.Warnings, warnings...)
		}
		return txErr
	})
	if err != nil {
		res.Status = types.BatchStatusFailed
		res.Results = []ItemResult{}
		fields := append([]interface{}{"error", err, "code", aggregates.CodeOf(err)}, aggregates.Diagnose(err).LogFields()...)
		log.Error("batch ingestion rolled back", fields...)
		s.deleteBlobs(context.WithoutCancel(ctx), stored)
		s.metrics.ObserveBatch(string(res.Status), time.Since(start), 0, 0)
		return res, err
	}

	res.Results = results
	for _, r := range results {
		if r.Status == types.ItemStatusFailed {
			res.FailureCount++
		}
	}
	res.Status = types.BatchStatusSuccess
	if res.FailureCount > 0 {
		res.Status = types.BatchStatusPartial
	}
	s.metrics.ObserveBatch(string(res.Status), time.Since(start), len(results), res.FailureCount)
	log.Info("batch ingested",
		"status", res.Status,
		"recipients", len(results),
		"failures", res.FailureCount,
		"has_document", stored.document != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (s *batchService) writeBatch(
	dbc dbctx.Context,
	batchID string,
	n *batch.NormalizedBatch,
	stored storedAttachments,
	sealedKey []byte,
	metadata datatypes.JSON,
) ([]ItemResult, []string, error) {
	var warnings []string
	row := &types.BatchUpload{
		BatchID:        batchID,
		ServerAddress:  n.ServerAddress,
		RecipientCount: len(n.Recipients),
		Status:         types.BatchStatusProcessing,
		Metadata:       metadata,
	}
	if err := s.repos.Batches.Upsert(dbc, row); err != nil {
		return nil, nil, fmt.Errorf("upsert batch: %w", err)
	}

	var ipfs *string
	if n.IPFSHash != "" {
		h := n.IPFSHash
		ipfs = &h
	}

	prior, err := s.priorNoticeIDs(dbc, batchID)
	if err != nil {
		return nil, nil, err
	}

	used := make(map[int64]struct{}, 2*len(n.Recipients))
	results := make([]ItemResult, 0, len(n.Recipients))
	items := make([]*types.NoticeBatchItem, 0, len(n.Recipients))
	for i, recipient := range n.Recipients {
		noticeID, chosen := int64(0), false
		if i < len(n.AlertIDs) {
			if ids.ReservePair(used, n.AlertIDs[i]) {
				noticeID, chosen = n.AlertIDs[i], true
			} else {
				warnings = append(warnings, fmt.Sprintf("alertIds[%d] overlaps an earlier alert or document id; generated a new one", i))
			}
		} else if id, ok := prior[recipient]; ok && ids.ReservePair(used, id) {
			noticeID, chosen = id, true
		}
		if !chosen {
			noticeID = s.ids.NextUnused(dbc.Ctx, used)
		}
		alertID, documentID := ids.DeriveNoticeIDs(noticeID)
		if i < len(n.DocumentIDs) && n.DocumentIDs[i] != documentID {
			warnings = append(warnings, fmt.Sprintf("documentIds[%d] replaced by %d (alert id + 1)", i, documentID))
		}

		notice := &types.ServedNotice{
			NoticeID:         strconv.FormatInt(noticeID, 10),
			ServerAddress:    n.ServerAddress,
			RecipientAddress: recipient,
			NoticeType:       n.NoticeType,
			CaseNumber:       n.CaseNumber,
			AlertID:          strconv.FormatInt(alertID, 10),
			DocumentID:       strconv.FormatInt(documentID, 10),
			IssuingAgency:    n.IssuingAgency,
			HasDocument:      stored.document != nil,
			IPFSHash:         ipfs,
			BatchID:          batchID,
		}
		if err := s.repos.Notices.Upsert(dbc, notice); err != nil {
			return nil, nil, fmt.Errorf("upsert served notice for recipient %d: %w", i, err)
		}

		item := &types.NoticeBatchItem{
			BatchID:   batchID,
			NoticeID:  notice.NoticeID,
			Recipient: recipient,
			Status:    types.ItemStatusSuccess,
		}
		if cerr := s.writeComponents(dbc, notice.NoticeID, stored, sealedKey, ipfs); cerr != nil {
			msg := cerr.Error()
			item.Status = types.ItemStatusFailed
			item.Error = &msg
			s.log.Warn("notice component write failed", "batch_id", batchID, "notice_id", notice.NoticeID, "error", cerr)
		}
		items = append(items, item)
		results = append(results, ItemResult{
			Recipient:  recipient,
			NoticeID:   notice.NoticeID,
			AlertID:    notice.AlertID,
			DocumentID: notice.DocumentID,
			Status:     item.Status,
			Error:      derefString(item.Error),
		})
	}

	if _, err := s.repos.Items.Upsert(dbc, items); err != nil {
		return nil, nil, fmt.Errorf("upsert batch items: %w", err)
	}

	failed, err := s.repos.Items.CountByStatus(dbc, batchID, types.ItemStatusFailed)
	if err != nil {
		return nil, nil, fmt.Errorf("count failed items: %w", err)
	}
	final := types.BatchStatusSuccess
	if failed > 0 {
		final = types.BatchStatusPartial
	}
	if !row.Status.CanTransition(final) {
		return nil, nil, aggregates.InvariantError(fmt.Sprintf("batch status %s cannot become %s", row.Status, final))
	}
	ok, err := s.guard.Transition(dbc, row.TableName(), "batch_id", batchID,
		[]string{string(types.BatchStatusProcessing)},
		map[string]any{"status": final, "updated_at": time.Now().UTC()})
	if err != nil {
		return nil, nil, fmt.Errorf("update batch status: %w", err)
	}
	if err := aggregates.RequireCASSuccess(ok, "batch "+batchID+" left processing during ingestion"); err != nil {
		return nil, nil, err
	}
	return results, warnings, nil
}

// priorNoticeIDs maps each recipient of an earlier attempt of batchID to the
// notice id it was served under, so a resubmission upserts the same rows.
func (s *batchService) priorNoticeIDs(dbc dbctx.Context, batchID string) (map[string]int64, error) {
	items, err := s.repos.Items.GetByBatchID(dbc, batchID)
	if err != nil {
		return nil, fmt.Errorf("load prior batch items: %w", err)
	}
	out := make(map[string]int64, len(items))
	for _, it := range items {
		if _, seen := out[it.Recipient]; seen {
			continue
		}
		if id, ok := ids.IsSafeInteger(it.NoticeID); ok {
			out[it.Recipient] = id
		}
	}
	return out, nil
}

// writeComponents records blob references for one notice inside a
// savepoint, so a failure here fails only this item.
func (s *batchService) writeComponents(dbc dbctx.Context, noticeID string, stored storedAttachments, sealedKey []byte, ipfs *string) error {
	blobs := stored.all()
	if len(blobs) == 0 {
		return nil
	}
	return aggregates.Savepoint(dbc, func(sp dbctx.Context) error {
		for _, b := range blobs {
			c := &types.NoticeComponent{
				NoticeID:    noticeID,
				Component:   b.component,
				StorageKey:  b.key,
				ContentType: b.contentType,
				SizeBytes:   b.size,
				SHA256:      b.sha256,
			}
			if b.component == types.ComponentDocument {
				c.IPFSHash = ipfs
				c.SealedKey = sealedKey
			}
			if err := s.repos.Components.Upsert(sp, c); err != nil {
				return fmt.Errorf("write %s component: %w", b.component, err)
			}
		}
		return nil
	})
}

func (s *batchService) Status(ctx context.Context, batchID string) (*BatchView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	b, err := s.repos.Batches.GetByID(dbc, batchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("batch_not_found", fmt.Errorf("batch %s not found", batchID))
	}
	if err != nil {
		return nil, aggregates.MapError("batch.status", err)
	}
	items, err := s.repos.Items.GetByBatchID(dbc, batchID)
	if err != nil {
		return nil, aggregates.MapError("batch.status", err)
	}
	notices, err := s.repos.Notices.GetByBatchID(dbc, batchID)
	if err != nil {
		return nil, aggregates.MapError("batch.status", err)
	}
	return &BatchView{Batch: b, Items: items, Notices: notices}, nil
}

func batchMetadata(n *batch.NormalizedBatch) (datatypes.JSON, error) {
	meta := map[string]any{}
	for k, v := range n.Metadata {
		meta[k] = v
	}
	meta["caseNumber"] = n.CaseNumber
	meta["noticeType"] = n.NoticeType
	if n.IssuingAgency != "" {
		meta["issuingAgency"] = n.IssuingAgency
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode batch metadata: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
