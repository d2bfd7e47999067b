package ids

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type failingSequence struct{}

func (failingSequence) Next(context.Context) (int64, error) { return 0, errors.New("sequence down") }

type countingObserver struct{ reasons []string }

func (o *countingObserver) IncIDFallback(reason string) { o.reasons = append(o.reasons, reason) }

func TestSafeIntegerIDAlwaysFitsInt32(t *testing.T) {
	ctx := context.Background()
	clocks := []time.Time{
		time.Now(),
		time.Unix(9_999_999_999, 0),
		time.Unix(1_999_999_999, 0),
		time.Unix(1, 0),
		time.Unix(0, 0),
	}
	for _, at := range clocks {
		at := at
		g := NewGenerator(logger.Nop(), WithClock(func() time.Time { return at }))
		for i := 0; i < 500; i++ {
			n := g.SafeIntegerID(ctx)
			if n <= 0 || n > MaxSafeID {
				t.Fatalf("clock=%d: id out of range: %d", at.Unix(), n)
			}
		}
	}
}

func TestSafeIntegerIDComposition(t *testing.T) {
	at := time.Unix(1_712_345_678, 0)
	g := NewGenerator(logger.Nop(), WithClock(func() time.Time { return at }))
	ctx := context.Background()

	first := g.SafeIntegerID(ctx)
	second := g.SafeIntegerID(ctx)
	if first != 234567800 {
		t.Fatalf("unexpected first id: got=%d want=234567800", first)
	}
	if second != 234567801 {
		t.Fatalf("same-second ids must differ by sequence: got=%d", second)
	}
}

func TestSafeIntegerIDEpochFallsBackToRandom(t *testing.T) {
	obs := &countingObserver{}
	g := NewGenerator(logger.Nop(),
		WithClock(func() time.Time { return time.Unix(0, 0) }),
		WithFallbackObserver(obs),
	)
	n := g.SafeIntegerID(context.Background())
	if n < fallbackMin || n > fallbackMax {
		t.Fatalf("fallback id not 9 digits: %d", n)
	}
	if len(obs.reasons) != 1 || obs.reasons[0] != "out_of_range" {
		t.Fatalf("unexpected fallback reasons: %v", obs.reasons)
	}
}

func TestSafeIntegerIDSurvivesSequenceFailure(t *testing.T) {
	obs := &countingObserver{}
	g := NewGenerator(logger.Nop(), WithSequence(failingSequence{}), WithFallbackObserver(obs))
	n := g.SafeIntegerID(context.Background())
	if n <= 0 || n > MaxSafeID {
		t.Fatalf("id out of range: %d", n)
	}
	if len(obs.reasons) != 1 || obs.reasons[0] != "sequence_error" {
		t.Fatalf("unexpected fallback reasons: %v", obs.reasons)
	}
}

func TestDeriveNoticeIDs(t *testing.T) {
	g := NewGenerator(logger.Nop())
	for i := 0; i < 100; i++ {
		n := g.SafeIntegerID(context.Background())
		alert, doc := DeriveNoticeIDs(n)
		if alert != n || doc != n+1 {
			t.Fatalf("notice=%d alert=%d document=%d", n, alert, doc)
		}
	}
}

func TestTextIDAndUUID(t *testing.T) {
	g := NewGenerator(logger.Nop())
	id := g.TextID("BATCH")
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "BATCH" || len(parts[2]) != 6 {
		t.Fatalf("unexpected text id: %q", id)
	}
	if g.TextID("") == g.TextID("") {
		t.Fatalf("text ids should not repeat")
	}
	if len(g.UUID()) != 36 {
		t.Fatalf("unexpected uuid length")
	}
}

func TestToSafeIntegerID(t *testing.T) {
	ctx := context.Background()
	g := NewGenerator(logger.Nop())

	n, err := g.ToSafeIntegerID(ctx, "123456789")
	if err != nil || n != 123456789 {
		t.Fatalf("numeric passthrough: n=%d err=%v", n, err)
	}

	a, err := g.ToSafeIntegerID(ctx, "notice-7f3a")
	if err != nil {
		t.Fatalf("ToSafeIntegerID: %v", err)
	}
	b, err := g.ToSafeIntegerID(ctx, "notice-7f3a")
	if err != nil || a != b {
		t.Fatalf("mapping not memoized: a=%d b=%d err=%v", a, b, err)
	}
	ext, ok, err := g.FromSafeIntegerID(ctx, a)
	if err != nil || !ok || ext != "notice-7f3a" {
		t.Fatalf("reverse lookup: ext=%q ok=%v err=%v", ext, ok, err)
	}

	if _, err := g.ToSafeIntegerID(ctx, "  "); err == nil {
		t.Fatalf("expected error for blank id")
	}
	if _, err := g.ToSafeIntegerID(ctx, "3000000000"); err != nil {
		t.Fatalf("oversized numeric ids are mapped, not rejected: %v", err)
	}
}

func TestNextUnusedNeverRepeatsWithinABatch(t *testing.T) {
	at := time.Unix(1_712_345_678, 0)
	obs := &countingObserver{}
	g := NewGenerator(logger.Nop(), WithClock(func() time.Time { return at }), WithFallbackObserver(obs))
	used := map[int64]struct{}{}
	for i := 0; i < 150; i++ {
		g.NextUnused(context.Background(), used)
	}
	if len(used) != 300 {
		t.Fatalf("expected 150 distinct id pairs, got %d reserved ids", len(used))
	}
	if len(obs.reasons) == 0 {
		t.Fatalf("expected the random range to be used after the sequence wrapped")
	}
}

func TestNextUnusedKeepsDocumentIDsApart(t *testing.T) {
	at := time.Unix(1_712_345_678, 0)
	g := NewGenerator(logger.Nop(), WithClock(func() time.Time { return at }))
	used := map[int64]struct{}{}
	tokens := map[int64]int{}
	for i := 0; i < 10; i++ {
		alert, doc := DeriveNoticeIDs(g.NextUnused(context.Background(), used))
		tokens[alert]++
		tokens[doc]++
	}
	for id, n := range tokens {
		if n != 1 {
			t.Fatalf("token id %d used %d times within one batch", id, n)
		}
	}
}

func TestReservePair(t *testing.T) {
	used := map[int64]struct{}{}
	if !ReservePair(used, 500) {
		t.Fatalf("first reservation should succeed")
	}
	if ReservePair(used, 499) {
		t.Fatalf("499 collides with 500 as its document id")
	}
	if ReservePair(used, 501) {
		t.Fatalf("501 collides with the document id of 500")
	}
	if len(used) != 2 {
		t.Fatalf("failed reservations must not change used: %v", used)
	}
}

func TestLookupSafeIntegerIDNeverStores(t *testing.T) {
	ctx := context.Background()
	lru := NewLRUMappingStore(8)
	g := NewGenerator(logger.Nop(), WithMappingStore(lru))
	if n, ok, err := g.LookupSafeIntegerID(ctx, "42"); err != nil || !ok || n != 42 {
		t.Fatalf("numeric id: n=%d ok=%v err=%v", n, ok, err)
	}
	if _, ok, err := g.LookupSafeIntegerID(ctx, "ext-abc"); err != nil || ok {
		t.Fatalf("unmapped id: ok=%v err=%v", ok, err)
	}
	if lru.Len() != 0 {
		t.Fatalf("lookup stored %d mappings", lru.Len())
	}
	want, err := g.ToSafeIntegerID(ctx, "ext-abc")
	if err != nil {
		t.Fatalf("ToSafeIntegerID: %v", err)
	}
	if got, ok, _ := g.LookupSafeIntegerID(ctx, "ext-abc"); !ok || got != want {
		t.Fatalf("lookup after store: got=%d ok=%v want=%d", got, ok, want)
	}
}
