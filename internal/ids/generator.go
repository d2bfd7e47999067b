// Package ids produces notice identifiers that fit the legacy signed 32-bit
// notice_id column, plus text and UUID alternatives for newer call sites.
package ids

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const (
	// MaxSafeID is the largest value a signed 32-bit column accepts.
	MaxSafeID int64 = 2_147_483_647

	fallbackMin int64 = 100_000_000
	fallbackMax int64 = 999_999_999
)

// FallbackObserver is notified whenever the random fallback path is taken.
type FallbackObserver interface {
	IncIDFallback(reason string)
}

type Generator struct {
	log      *logger.Logger
	seq      Sequence
	local    *MemorySequence
	mappings MappingStore
	observer FallbackObserver
	now      func() time.Time
}

type Option func(*Generator)

func WithSequence(seq Sequence) Option { return func(g *Generator) { g.seq = seq } }

func WithMappingStore(m MappingStore) Option { return func(g *Generator) { g.mappings = m } }

func WithFallbackObserver(o FallbackObserver) Option { return func(g *Generator) { g.observer = o } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(g *Generator) { g.now = now } }

func NewGenerator(log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		log:   log.With("component", "IDGenerator"),
		local: NewMemorySequence(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.seq == nil {
		g.seq = g.local
	}
	if g.mappings == nil {
		g.mappings = NewLRUMappingStore(DefaultMappingCacheSize)
	}
	return g
}

// SafeIntegerID returns an id n with 0 < n <= MaxSafeID: the last seven
// digits of the Unix second followed by a two digit sequence value.
// Same-second ids from different instances can still collide unless the
// sequence is shared; callers must write with ON CONFLICT.
func (g *Generator) SafeIntegerID(ctx context.Context) int64 {
	secs := g.now().Unix()
	seq, err := g.seq.Next(ctx)
	if err != nil {
		g.log.Warn("id sequence unavailable, using process-local counter", "error", err)
		g.fallback("sequence_error")
		seq, _ = g.local.Next(ctx)
	}
	id, ok := compose(secs, seq)
	if !ok {
		g.fallback("out_of_range")
		return randomSafeID()
	}
	return id
}

func compose(unixSeconds, seq int64) (int64, bool) {
	ts := strconv.FormatInt(unixSeconds, 10)
	if len(ts) > 7 {
		ts = ts[len(ts)-7:]
	}
	seq %= 100
	if seq < 0 {
		seq = -seq
	}
	id, err := strconv.ParseInt(fmt.Sprintf("%s%02d", ts, seq), 10, 64)
	if err != nil || id <= 0 || id > MaxSafeID {
		return 0, false
	}
	return id, true
}

func randomSafeID() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(fallbackMax-fallbackMin+1))
	if err != nil {
		return fallbackMin + time.Now().UnixNano()%(fallbackMax-fallbackMin+1)
	}
	return fallbackMin + n.Int64()
}

func (g *Generator) fallback(reason string) {
	if g.observer != nil {
		g.observer.IncIDFallback(reason)
	}
}

// TextID returns "<prefix>_<unix millis>_<random base36>".
func (g *Generator) TextID(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ID"
	}
	return fmt.Sprintf("%s_%d_%s", prefix, g.now().UnixMilli(), randomBase36(6))
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomBase36(n int) string {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			b.WriteByte(base36[time.Now().UnixNano()%int64(len(base36))])
			continue
		}
		b.WriteByte(base36[idx.Int64()])
	}
	return b.String()
}

func (g *Generator) UUID() string {
	return uuid.NewString()
}

// IsSafeInteger reports whether s is already a usable legacy integer id.
func IsSafeInteger(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 || n > MaxSafeID {
		return 0, false
	}
	return n, true
}

// ToSafeIntegerID maps an arbitrary external id onto a safe integer,
// remembering the pair in both directions.
func (g *Generator) ToSafeIntegerID(ctx context.Context, externalID string) (int64, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, fmt.Errorf("empty id")
	}
	if n, ok := IsSafeInteger(externalID); ok {
		return n, nil
	}
	if n, ok, err := g.mappings.Lookup(ctx, externalID); err != nil {
		return 0, fmt.Errorf("lookup id mapping: %w", err)
	} else if ok {
		return n, nil
	}
	var lastErr error
	for attempt := 0; attempt < mappingStoreAttempts; attempt++ {
		n, err := g.mappings.Store(ctx, externalID, g.SafeIntegerID(ctx))
		if err == nil {
			return n, nil
		}
		// a freshly generated id may already be mapped to another external id
		lastErr = err
	}
	return 0, fmt.Errorf("store id mapping: %w", lastErr)
}

const mappingStoreAttempts = 3

// LookupSafeIntegerID resolves externalID like ToSafeIntegerID but never
// creates a mapping. ok is false for an unmapped external id.
func (g *Generator) LookupSafeIntegerID(ctx context.Context, externalID string) (int64, bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, false, fmt.Errorf("empty id")
	}
	if n, ok := IsSafeInteger(externalID); ok {
		return n, true, nil
	}
	n, ok, err := g.mappings.Lookup(ctx, externalID)
	if err != nil {
		return 0, false, fmt.Errorf("lookup id mapping: %w", err)
	}
	return n, ok, nil
}

// FromSafeIntegerID resolves a mapped safe id back to its external id.
func (g *Generator) FromSafeIntegerID(ctx context.Context, id int64) (string, bool, error) {
	return g.mappings.Reverse(ctx, id)
}

// DeriveNoticeIDs applies the fixed pairing: alert = notice, document = notice + 1.
func DeriveNoticeIDs(noticeID int64) (alertID, documentID int64) {
	return noticeID, noticeID + 1
}

// ReservePair claims noticeID and its document id noticeID+1 in used.
// It reports false, leaving used unchanged, when either is already taken.
func ReservePair(used map[int64]struct{}, noticeID int64) bool {
	alertID, documentID := DeriveNoticeIDs(noticeID)
	if _, taken := used[alertID]; taken {
		return false
	}
	if _, taken := used[documentID]; taken {
		return false
	}
	used[alertID] = struct{}{}
	used[documentID] = struct{}{}
	return true
}

// NextUnused returns a SafeIntegerID whose alert and document ids are both
// free in used, and reserves them. After one full lap of the sequence within
// the same second it switches to the random range.
func (g *Generator) NextUnused(ctx context.Context, used map[int64]struct{}) int64 {
	for attempt := 0; attempt < 100; attempt++ {
		if id := g.SafeIntegerID(ctx); ReservePair(used, id) {
			return id
		}
	}
	g.fallback("batch_collision")
	for {
		if id := randomSafeID(); ReservePair(used, id) {
			return id
		}
	}
}
