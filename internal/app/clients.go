package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/clipforge/exportd/internal/platform/envutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// Clients holds connections to systems this service doesn't own: Redis,
// backing the presigned-URL cache and the remote-GPU lease ledger.
type Clients struct {
	Redis *redis.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("wiring clients")
	addr := envutil.GetEnv("REDIS_ADDR", "localhost:6379", log)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return Clients{Redis: rdb}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
		c.Redis = nil
	}
}
