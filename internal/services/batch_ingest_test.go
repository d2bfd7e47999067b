package services

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/batch"
	"github.com/yungbote/noticeserve-backend/internal/data/aggregates"
	aggtestutil "github.com/yungbote/noticeserve-backend/internal/data/aggregates/testutil"
	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	"github.com/yungbote/noticeserve-backend/internal/data/repos/testutil"
	types "github.com/yungbote/noticeserve-backend/internal/domain/notices"
	"github.com/yungbote/noticeserve-backend/internal/ids"
	"github.com/yungbote/noticeserve-backend/internal/platform/apierr"
	"github.com/yungbote/noticeserve-backend/internal/platform/blobstore"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
	"github.com/yungbote/noticeserve-backend/internal/platform/keyseal"
	"github.com/yungbote/noticeserve-backend/internal/platform/thumbnail"
)

type ingestFixture struct {
	db    *gorm.DB
	repos noticerepos.Set
	blobs *blobstore.MemoryStore
	svc   BatchService
}

func newIngestFixture(t *testing.T, mutate func(*BatchServiceDeps)) *ingestFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := noticerepos.NewSet(db, log)
	blobs := blobstore.NewMemoryStore()
	thumbs, err := thumbnail.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	deps := BatchServiceDeps{
		DB:     db,
		Log:    log,
		Repos:  set,
		IDs:    ids.NewGenerator(log),
		Blobs:  blobs,
		Thumbs: thumbs,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &ingestFixture{db: db, repos: deps.Repos, blobs: blobs, svc: NewBatchService(deps)}
}

func (f *ingestFixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *ingestFixture) componentKey(t *testing.T, noticeID string, kind types.ComponentKind) string {
	t.Helper()
	comps, err := f.repos.Components.GetByNoticeID(dbctx.Context{Ctx: context.Background()}, noticeID)
	if err != nil {
		t.Fatalf("GetByNoticeID: %v", err)
	}
	for _, c := range comps {
		if c.Component == kind {
			return c.StorageKey
		}
	}
	t.Fatalf("notice %s has no %s component", noticeID, kind)
	return ""
}

func normalized(server string, recipients ...string) *batch.NormalizedBatch {
	return &batch.NormalizedBatch{
		ServerAddress: server,
		Recipients:    recipients,
		CaseNumber:    "34-2501-001",
		NoticeType:    batch.DefaultNoticeType,
	}
}

func TestIngestSingleRecipientWithoutFiles(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, normalized(testutil.TronAddress(1), testutil.TronAddress(2)), Attachments{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Status != types.BatchStatusSuccess || res.FailureCount != 0 || len(res.Results) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	b, err := f.repos.Batches.GetByID(dbctx.Context{Ctx: ctx}, res.BatchID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if b.Status != types.BatchStatusSuccess || b.RecipientCount != 1 {
		t.Fatalf("unexpected batch row: %+v", b)
	}
	notices, _ := f.repos.Notices.GetByBatchID(dbctx.Context{Ctx: ctx}, res.BatchID)
	if len(notices) != 1 || notices[0].HasDocument {
		t.Fatalf("unexpected notices: %+v", notices)
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("no blobs expected without files, got %d", f.blobs.Len())
	}
}

func TestIngestDerivesAlertAndDocumentIDs(t *testing.T) {
	f := newIngestFixture(t, nil)
	recipients := []string{testutil.TronAddress(2), testutil.TronAddress(3), testutil.TronAddress(4)}
	res, err := f.svc.Ingest(context.Background(), normalized(testutil.TronAddress(1), recipients...), Attachments{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	seen := map[string]bool{}
	for _, r := range res.Results {
		n, ok := ids.IsSafeInteger(r.NoticeID)
		if !ok {
			t.Fatalf("notice id not a safe integer: %q", r.NoticeID)
		}
		alert, doc := ids.DeriveNoticeIDs(n)
		if r.AlertID != r.NoticeID || r.DocumentID != itoa(doc) || itoa(alert) != r.AlertID {
			t.Fatalf("id convention broken: %+v", r)
		}
		if seen[r.NoticeID] {
			t.Fatalf("duplicate notice id within batch: %s", r.NoticeID)
		}
		seen[r.NoticeID] = true
	}
}

func TestIngestRollsBackWholeBatchOnConstraintViolation(t *testing.T) {
	f := newIngestFixture(t, nil)
	r1, r2, r3 := testutil.TronAddress(2), testutil.TronAddress(3), testutil.TronAddress(4)
	testutil.FailInsertsFor(t, f.db, r2)

	in := normalized(testutil.TronAddress(1), r1, r2, r3)
	in.BatchID = "BATCH_ROLLBACK"
	res, err := f.svc.Ingest(context.Background(), in,
		Attachments{Document: BytesAttachment("doc.pdf", "application/pdf", []byte("%PDF-1.4"))})
	if err == nil {
		t.Fatalf("expected error")
	}
	if res == nil || res.Status != types.BatchStatusFailed || res.BatchID != "BATCH_ROLLBACK" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if apierr.StatusOf(err) != 500 {
		t.Fatalf("expected 500 status for database errors, got %d", apierr.StatusOf(err))
	}
	if aggregates.CodeOf(err) == "" {
		t.Fatalf("expected aggregate error code, got %v", err)
	}
	for _, model := range []any{&types.BatchUpload{}, &types.ServedNotice{}, &types.NoticeBatchItem{}, &types.NoticeComponent{}} {
		if n := f.count(t, model); n != 0 {
			t.Fatalf("%T: expected no rows after rollback, got %d", model, n)
		}
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("uploaded blobs should be removed after rollback, got %d", f.blobs.Len())
	}
}

func TestIngestUpsertIsIdempotentOnNoticeID(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()
	recipient := testutil.TronAddress(2)

	first := normalized(testutil.TronAddress(1), recipient)
	first.AlertIDs = []int64{555_000_001}
	if _, err := f.svc.Ingest(ctx, first, Attachments{}); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second := normalized(testutil.TronAddress(1), recipient)
	second.AlertIDs = []int64{555_000_001}
	second.CaseNumber = "34-2501-999"
	second.NoticeType = "Subpoena"
	res, err := f.svc.Ingest(ctx, second, Attachments{})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if n := f.count(t, &types.ServedNotice{}); n != 1 {
		t.Fatalf("expected exactly one served notice, got %d", n)
	}
	got, err := f.repos.Notices.GetByNoticeID(dbctx.Context{Ctx: ctx}, "555000001")
	if err != nil {
		t.Fatalf("GetByNoticeID: %v", err)
	}
	if got.CaseNumber != "34-2501-999" || got.NoticeType != "Subpoena" || got.BatchID != res.BatchID {
		t.Fatalf("second submission did not overwrite: %+v", got)
	}
	if got.DocumentID != "555000002" {
		t.Fatalf("unexpected document id: %s", got.DocumentID)
	}
}

func TestIngestResubmittedBatchEndsTerminal(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()
	in := normalized(testutil.TronAddress(1), testutil.TronAddress(2))
	in.BatchID = "BATCH_AGAIN"
	for i := 0; i < 2; i++ {
		res, err := f.svc.Ingest(ctx, in, Attachments{})
		if err != nil || res.Status != types.BatchStatusSuccess {
			t.Fatalf("attempt %d: res=%+v err=%v", i, res, err)
		}
	}
	if n := f.count(t, &types.BatchUpload{}); n != 1 {
		t.Fatalf("expected one batch row, got %d", n)
	}
	view, err := f.svc.Status(ctx, "BATCH_AGAIN")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if view.Batch.Status != types.BatchStatusSuccess || len(view.Items) != 1 {
		t.Fatalf("unexpected view: status=%s items=%d", view.Batch.Status, len(view.Items))
	}
	if n := f.count(t, &types.ServedNotice{}); n != 1 {
		t.Fatalf("resubmission should reuse the notice, got %d", n)
	}
}

func TestIngestResubmittedBatchWithSameAlertIDs(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()
	in := normalized(testutil.TronAddress(1), testutil.TronAddress(2))
	in.BatchID = "BATCH_RETRY"
	in.AlertIDs = []int64{555_000_001}
	for i := 0; i < 2; i++ {
		res, err := f.svc.Ingest(ctx, in, Attachments{})
		if err != nil || res.Status != types.BatchStatusSuccess {
			t.Fatalf("attempt %d: res=%+v err=%v", i, res, err)
		}
	}
	if n := f.count(t, &types.NoticeBatchItem{}); n != 1 {
		t.Fatalf("expected one item row, got %d", n)
	}
	if n := f.count(t, &types.ServedNotice{}); n != 1 {
		t.Fatalf("expected one served notice, got %d", n)
	}
}

func TestIngestFailedResubmitKeepsCommittedBlobs(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()
	r1, r2 := testutil.TronAddress(2), testutil.TronAddress(3)

	in := normalized(testutil.TronAddress(1), r1)
	in.BatchID = "BATCH_DOC"
	in.AlertIDs = []int64{555_000_001}
	doc := func() Attachments {
		return Attachments{Document: BytesAttachment("doc.pdf", "application/pdf", []byte("%PDF-1.4 first"))}
	}
	if _, err := f.svc.Ingest(ctx, in, doc()); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	key := f.componentKey(t, "555000001", types.ComponentDocument)

	testutil.FailInsertsFor(t, f.db, r2)
	again := normalized(testutil.TronAddress(1), r1, r2)
	again.BatchID = "BATCH_DOC"
	again.AlertIDs = []int64{555_000_001}
	if _, err := f.svc.Ingest(ctx, again, doc()); err == nil {
		t.Fatalf("expected resubmission to fail")
	}

	if got := f.componentKey(t, "555000001", types.ComponentDocument); got != key {
		t.Fatalf("committed component changed: %s -> %s", key, got)
	}
	rc, err := f.blobs.Get(ctx, key)
	if err != nil {
		t.Fatalf("committed blob %s was removed: %v", key, err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.4 first" {
		t.Fatalf("unexpected document body: %q", body)
	}
}

func TestIngestAlertAndDocumentIDsNeverOverlap(t *testing.T) {
	f := newIngestFixture(t, nil)
	recipients := make([]string, 0, 20)
	for i := 2; i < 22; i++ {
		recipients = append(recipients, testutil.TronAddress(byte(i)))
	}
	in := normalized(testutil.TronAddress(1), recipients...)
	in.AlertIDs = []int64{9000, 9001}
	res, err := f.svc.Ingest(context.Background(), in, Attachments{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Results[0].NoticeID != "9000" || res.Results[1].NoticeID == "9001" {
		t.Fatalf("alert id 9001 collides with document id of 9000: %+v", res.Results[:2])
	}
	tokens := map[string]bool{}
	for _, r := range res.Results {
		for _, id := range []string{r.AlertID, r.DocumentID} {
			if tokens[id] {
				t.Fatalf("token id %s used twice in one batch", id)
			}
			tokens[id] = true
		}
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one overlap warning, got %v", res.Warnings)
	}
}

func TestIngestStoresAttachmentsAndSealsKey(t *testing.T) {
	sealer, err := keyseal.New("test-secret")
	if err != nil {
		t.Fatalf("keyseal.New: %v", err)
	}
	f := newIngestFixture(t, func(d *BatchServiceDeps) { d.Sealer = sealer })
	ctx := context.Background()

	in := normalized(testutil.TronAddress(1), testutil.TronAddress(2), testutil.TronAddress(3))
	in.EncryptionKey = "doc-key"
	in.IPFSHash = "QmHash"
	res, err := f.svc.Ingest(ctx, in, Attachments{
		Thumbnail: BytesAttachment("alert.png", "image/png", []byte("png-bytes")),
		Document:  BytesAttachment("summons.pdf", "application/pdf", []byte("%PDF-1.4 body")),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if f.blobs.Len() != 2 {
		t.Fatalf("expected two stored blobs, got %d", f.blobs.Len())
	}
	rc, err := f.blobs.Get(ctx, f.componentKey(t, res.Results[0].NoticeID, types.ComponentDocument))
	if err != nil {
		t.Fatalf("document blob missing: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.4 body" {
		t.Fatalf("unexpected document body: %q", body)
	}

	for _, r := range res.Results {
		comps, err := f.repos.Components.GetByNoticeID(dbctx.Context{Ctx: ctx}, r.NoticeID)
		if err != nil || len(comps) != 2 {
			t.Fatalf("notice %s: components=%d err=%v", r.NoticeID, len(comps), err)
		}
		for _, c := range comps {
			if c.SHA256 == "" || c.SizeBytes == 0 {
				t.Fatalf("component missing digest/size: %+v", c)
			}
			if c.Component == types.ComponentDocument {
				key, err := sealer.Open(c.SealedKey)
				if err != nil || string(key) != "doc-key" {
					t.Fatalf("sealed key does not open: key=%q err=%v", key, err)
				}
				if c.IPFSHash == nil || *c.IPFSHash != "QmHash" {
					t.Fatalf("ipfs hash not recorded on document component")
				}
			}
		}
	}
	notices, _ := f.repos.Notices.GetByBatchID(dbctx.Context{Ctx: ctx}, res.BatchID)
	for _, n := range notices {
		if !n.HasDocument {
			t.Fatalf("notice %s should have a document", n.NoticeID)
		}
	}
}

func TestIngestRendersThumbnailForDocumentOnlyBatch(t *testing.T) {
	f := newIngestFixture(t, nil)
	ctx := context.Background()
	in := normalized(testutil.TronAddress(1), testutil.TronAddress(2))
	in.EncryptionKey = "ignored"
	res, err := f.svc.Ingest(ctx, in, Attachments{Document: BytesAttachment("doc.pdf", "", []byte("%PDF"))})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	noticeID := res.Results[0].NoticeID
	key := f.componentKey(t, noticeID, types.ComponentAlert)
	if !strings.HasPrefix(key, "batches/"+res.BatchID+"/") || !strings.HasSuffix(key, "/alert.png") {
		t.Fatalf("unexpected thumbnail key %q", key)
	}
	if ct := f.blobs.ContentType(key); ct != "image/png" {
		t.Fatalf("rendered thumbnail missing: content type %q", ct)
	}
	if ct := f.blobs.ContentType(f.componentKey(t, noticeID, types.ComponentDocument)); ct != "application/pdf" {
		t.Fatalf("document content type not inferred: %q", ct)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected render and dropped-key warnings, got %v", res.Warnings)
	}
}

type failingComponents struct {
	noticerepos.NoticeComponentRepo
	failOn int
	calls  int
}

func (f *failingComponents) Upsert(dbc dbctx.Context, c *types.NoticeComponent) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("component store unavailable")
	}
	return f.NoticeComponentRepo.Upsert(dbc, c)
}

func TestIngestComponentFailureMarksItemAndBatchPartial(t *testing.T) {
	var fc *failingComponents
	f := newIngestFixture(t, func(d *BatchServiceDeps) {
		fc = &failingComponents{NoticeComponentRepo: d.Repos.Components, failOn: 4}
		d.Repos.Components = fc
	})
	ctx := context.Background()
	r1, r2, r3 := testutil.TronAddress(2), testutil.TronAddress(3), testutil.TronAddress(4)
	res, err := f.svc.Ingest(ctx, normalized(testutil.TronAddress(1), r1, r2, r3), Attachments{
		Thumbnail: BytesAttachment("t.png", "image/png", []byte("png")),
		Document:  BytesAttachment("d.pdf", "application/pdf", []byte("pdf")),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Status != types.BatchStatusPartial || res.FailureCount != 1 {
		t.Fatalf("unexpected result: status=%s failures=%d", res.Status, res.FailureCount)
	}
	if res.Results[1].Status != types.ItemStatusFailed || res.Results[1].Error == "" {
		t.Fatalf("second item should be failed: %+v", res.Results[1])
	}

	dbc := dbctx.Context{Ctx: ctx}
	failedComps, _ := f.repos.Components.GetByNoticeID(dbc, res.Results[1].NoticeID)
	if len(failedComps) != 0 {
		t.Fatalf("savepoint should discard partial component writes, got %d", len(failedComps))
	}
	okComps, _ := f.repos.Components.GetByNoticeID(dbc, res.Results[2].NoticeID)
	if len(okComps) != 2 {
		t.Fatalf("later items must still be written, got %d", len(okComps))
	}
	if n, _ := f.repos.Items.CountByStatus(dbc, res.BatchID, types.ItemStatusFailed); n != 1 {
		t.Fatalf("expected one failed item row, got %d", n)
	}
	b, _ := f.repos.Batches.GetByID(dbc, res.BatchID)
	if b.Status != types.BatchStatusPartial {
		t.Fatalf("batch row should be partial, got %s", b.Status)
	}
	if n := f.count(t, &types.ServedNotice{}); n != 3 {
		t.Fatalf("all notices should be served, got %d", n)
	}
}

func TestIngestRepeatedAlertIDsAreRegenerated(t *testing.T) {
	f := newIngestFixture(t, nil)
	in := normalized(testutil.TronAddress(1), testutil.TronAddress(2), testutil.TronAddress(3))
	in.AlertIDs = []int64{4242, 4242}
	res, err := f.svc.Ingest(context.Background(), in, Attachments{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Results[0].NoticeID != "4242" || res.Results[1].NoticeID == "4242" {
		t.Fatalf("unexpected notice ids: %+v", res.Results)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
}

func TestStatusNotFound(t *testing.T) {
	f := newIngestFixture(t, nil)
	_, err := f.svc.Status(context.Background(), "missing")
	if apierr.StatusOf(err) != 404 {
		t.Fatalf("expected 404, got %v", err)
	}
}

type failingStore struct{ *blobstore.MemoryStore }

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket unavailable")
}

func TestIngestAttachmentFailureWritesNothing(t *testing.T) {
	f := newIngestFixture(t, func(d *BatchServiceDeps) { d.Blobs = failingStore{blobstore.NewMemoryStore()} })
	res, err := f.svc.Ingest(context.Background(), normalized(testutil.TronAddress(1), testutil.TronAddress(2)),
		Attachments{Document: BytesAttachment("d.pdf", "application/pdf", []byte("pdf"))})
	if err == nil || apierr.StatusOf(err) != 502 {
		t.Fatalf("expected 502, got %v", err)
	}
	if res.Status != types.BatchStatusFailed {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if n := f.count(t, &types.BatchUpload{}); n != 0 {
		t.Fatalf("no batch row expected, got %d", n)
	}
}

func TestIngestCommitFailureRollsBackAndReportsRetry(t *testing.T) {
	hooks := &aggtestutil.HooksRecorder{}
	var runner *aggtestutil.InjectedTxRunner
	f := newIngestFixture(t, func(d *BatchServiceDeps) {
		runner = &aggtestutil.InjectedTxRunner{
			Inner:      aggregates.NewGormTxRunner(d.DB),
			FailCommit: aggregates.RetryableError("could not serialize access"),
		}
		d.Tx = runner
		d.Hooks = hooks
	})
	res, err := f.svc.Ingest(context.Background(), normalized(testutil.TronAddress(1), testutil.TronAddress(2)),
		Attachments{Document: BytesAttachment("d.pdf", "application/pdf", []byte("pdf"))})
	if !aggregates.IsCode(err, aggregates.CodeRetryable) {
		t.Fatalf("expected retryable code, got %v", err)
	}
	if res.Status != types.BatchStatusFailed {
		t.Fatalf("unexpected status: %s", res.Status)
	}
	if runner.RollbackCalls != 1 || runner.CommitCalls != 0 {
		t.Fatalf("unexpected runner counters commit=%d rollback=%d", runner.CommitCalls, runner.RollbackCalls)
	}
	if len(hooks.Retries) != 1 || hooks.Retries[0] != "batch.ingest" {
		t.Fatalf("retry hooks: %+v", hooks.Retries)
	}
	if got := hooks.LastStatus(); got != string(aggregates.CodeRetryable) {
		t.Fatalf("operation status: %q", got)
	}
	for _, model := range []any{&types.BatchUpload{}, &types.ServedNotice{}, &types.NoticeBatchItem{}} {
		if n := f.count(t, model); n != 0 {
			t.Fatalf("%T: expected no rows after rollback, got %d", model, n)
		}
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("uploaded blobs should be removed after rollback, got %d", f.blobs.Len())
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
