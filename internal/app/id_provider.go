package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/data/db"
	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	"github.com/yungbote/noticeserve-backend/internal/ids"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

const redisSequenceKey = "noticeserve:notice_id_seq"

// wireIDGenerator picks the suffix sequence and backs the external id
// mapping with an LRU in front of the id_mappings table. The returned
// closer releases the Redis client, if any.
func wireIDGenerator(ctx context.Context, log *logger.Logger, cfg Config, gdb *gorm.DB, repos noticerepos.Set, fallback ids.FallbackObserver) (*ids.Generator, func() error, error) {
	closer := func() error { return nil }
	var seq ids.Sequence
	switch cfg.IDSequence {
	case IDSequencePostgres:
		seq = ids.NewPostgresSequence(gdb, db.NoticeIDSequence)
	case IDSequenceRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, closer, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		seq = ids.NewRedisSequence(rdb, redisSequenceKey)
		closer = rdb.Close
	default:
		seq = ids.NewMemorySequence()
	}

	cacheSize := cfg.IDCacheSize
	if cacheSize <= 0 {
		cacheSize = ids.DefaultMappingCacheSize
	}
	mappings := ids.NewCachedMappingStore(ids.NewLRUMappingStore(cacheSize), ids.NewDBMappingStore(repos.IDMappings))

	log.Info("Wiring id generator", "sequence", cfg.IDSequence, "mapping_cache", cacheSize)
	opts := []ids.Option{ids.WithSequence(seq), ids.WithMappingStore(mappings)}
	if fallback != nil {
		opts = append(opts, ids.WithFallbackObserver(fallback))
	}
	return ids.NewGenerator(log, opts...), closer, nil
}
