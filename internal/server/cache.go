package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wolfsonlabs/commercelens/internal/config"
	"go.uber.org/zap"
)

// Cache memoizes measure responses in redis. Keys embed the published cycle
// ID, so a new refresh invalidates every prior entry without explicit
// flushing.
type Cache struct {
	client *redis.Client
	cfg    config.RedisConfig
	log    *zap.Logger
}

// NewCache returns nil when the cache is disabled; the server treats a nil
// cache as a no-op.
func NewCache(cfg config.Config, log *zap.Logger) *Cache {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Cache{client: client, cfg: cfg.Redis, log: log.Named("server.cache")}
}

func (c *Cache) key(cycleID int64, kind, name string, req filterRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("commercelens:measure:%d:%s:%s:%s", cycleID, kind, name, hex.EncodeToString(sum[:8]))
}

func (c *Cache) Get(ctx context.Context, cycleID int64, kind, name string, req filterRequest) ([]byte, bool) {
	raw, err := c.client.Get(ctx, c.key(cycleID, kind, name, req)).Bytes()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *Cache) Put(ctx context.Context, cycleID int64, kind, name string, req filterRequest, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(cycleID, kind, name, req), payload, c.cfg.TTL).Err(); err != nil {
		c.log.Debug("cache write failed", zap.Error(err))
	}
}
