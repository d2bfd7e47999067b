package ids

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	"github.com/yungbote/noticeserve-backend/internal/platform/dbctx"
)

const DefaultMappingCacheSize = 10_000

// MappingStore remembers external id <-> safe id pairs.
type MappingStore interface {
	Lookup(ctx context.Context, externalID string) (int64, bool, error)
	Reverse(ctx context.Context, safeID int64) (string, bool, error)
	// Store saves the pair unless externalID already has a mapping, and
	// returns the safe id that is now authoritative.
	Store(ctx context.Context, externalID string, safeID int64) (int64, error)
}

// LRUMappingStore is bounded; evicted pairs are simply regenerated.
type LRUMappingStore struct {
	mu      sync.Mutex
	forward *lru.Cache[string, int64]
	reverse *lru.Cache[int64, string]
}

func NewLRUMappingStore(size int) *LRUMappingStore {
	if size <= 0 {
		size = DefaultMappingCacheSize
	}
	fwd, _ := lru.New[string, int64](size)
	rev, _ := lru.New[int64, string](size)
	return &LRUMappingStore{forward: fwd, reverse: rev}
}

func (s *LRUMappingStore) Lookup(_ context.Context, externalID string) (int64, bool, error) {
	n, ok := s.forward.Get(externalID)
	return n, ok, nil
}

func (s *LRUMappingStore) Reverse(_ context.Context, safeID int64) (string, bool, error) {
	ext, ok := s.reverse.Get(safeID)
	return ext, ok, nil
}

func (s *LRUMappingStore) Store(_ context.Context, externalID string, safeID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.forward.Get(externalID); ok {
		return n, nil
	}
	s.forward.Add(externalID, safeID)
	s.reverse.Add(safeID, externalID)
	return safeID, nil
}

func (s *LRUMappingStore) Len() int { return s.forward.Len() }

// DBMappingStore persists pairs in id_mappings so they survive restarts and
// are shared across instances.
type DBMappingStore struct {
	repo noticerepos.IDMappingRepo
}

func NewDBMappingStore(repo noticerepos.IDMappingRepo) *DBMappingStore {
	return &DBMappingStore{repo: repo}
}

func (s *DBMappingStore) Lookup(ctx context.Context, externalID string) (int64, bool, error) {
	row, err := s.repo.GetByExternalID(dbctx.Context{Ctx: ctx}, externalID)
	if err != nil || row == nil {
		return 0, false, err
	}
	return row.SafeID, true, nil
}

func (s *DBMappingStore) Reverse(ctx context.Context, safeID int64) (string, bool, error) {
	row, err := s.repo.GetBySafeID(dbctx.Context{Ctx: ctx}, safeID)
	if err != nil || row == nil {
		return "", false, err
	}
	return row.ExternalID, true, nil
}

func (s *DBMappingStore) Store(ctx context.Context, externalID string, safeID int64) (int64, error) {
	row, err := s.repo.Save(dbctx.Context{Ctx: ctx}, externalID, safeID)
	if err != nil {
		return 0, err
	}
	return row.SafeID, nil
}

// CachedMappingStore fronts a durable store with an LRU.
type CachedMappingStore struct {
	cache   *LRUMappingStore
	backing MappingStore
}

func NewCachedMappingStore(cache *LRUMappingStore, backing MappingStore) *CachedMappingStore {
	return &CachedMappingStore{cache: cache, backing: backing}
}

func (s *CachedMappingStore) Lookup(ctx context.Context, externalID string) (int64, bool, error) {
	if n, ok, _ := s.cache.Lookup(ctx, externalID); ok {
		return n, true, nil
	}
	n, ok, err := s.backing.Lookup(ctx, externalID)
	if err != nil || !ok {
		return 0, false, err
	}
	_, _ = s.cache.Store(ctx, externalID, n)
	return n, true, nil
}

func (s *CachedMappingStore) Reverse(ctx context.Context, safeID int64) (string, bool, error) {
	if ext, ok, _ := s.cache.Reverse(ctx, safeID); ok {
		return ext, true, nil
	}
	ext, ok, err := s.backing.Reverse(ctx, safeID)
	if err != nil || !ok {
		return "", false, err
	}
	_, _ = s.cache.Store(ctx, ext, safeID)
	return ext, true, nil
}

func (s *CachedMappingStore) Store(ctx context.Context, externalID string, safeID int64) (int64, error) {
	n, err := s.backing.Store(ctx, externalID, safeID)
	if err != nil {
		return 0, err
	}
	_, _ = s.cache.Store(ctx, externalID, n)
	return n, nil
}
