package ids

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Sequence yields the rolling two digit suffix of SafeIntegerID. Only the
// value mod 100 is used.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// MemorySequence is process local; ids from separate instances may collide.
type MemorySequence struct {
	n atomic.Int64
}

func NewMemorySequence() *MemorySequence { return &MemorySequence{} }

func (s *MemorySequence) Next(context.Context) (int64, error) {
	return (s.n.Add(1) - 1) % 100, nil
}

// PostgresSequence draws from a database sequence shared by all instances.
type PostgresSequence struct {
	db   *gorm.DB
	name string
}

func NewPostgresSequence(db *gorm.DB, name string) *PostgresSequence {
	return &PostgresSequence{db: db, name: name}
}

func (s *PostgresSequence) Next(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Raw("SELECT nextval(?::regclass)", s.name).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("nextval %s: %w", s.name, err)
	}
	return n, nil
}

// RedisSequence increments a shared key; wraps naturally through mod 100.
type RedisSequence struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisSequence(rdb redis.UniversalClient, key string) *RedisSequence {
	if key == "" {
		key = "noticeserve:notice_id_seq"
	}
	return &RedisSequence{rdb: rdb, key: key}
}

func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	n, err := s.rdb.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", s.key, err)
	}
	return n % 100, nil
}
