package app

import (
	"time"

	"github.com/clipforge/exportd/internal/jobs/scheduler"
	"github.com/clipforge/exportd/internal/platform/envutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// Config is the top-level set of tunables loaded from the environment,
// the scheduler's own (spec §6.4) plus the surrounding HTTP and caching
// knobs.
type Config struct {
	HTTPAddr string

	Scheduler scheduler.Config

	PresignCacheTTL   time.Duration
	PresignCacheGrace time.Duration

	RemoteGPULeaseTTL time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		HTTPAddr:          envutil.GetEnv("HTTP_ADDR", ":8080", log),
		Scheduler:         scheduler.ConfigFromEnv(log),
		PresignCacheTTL:   time.Duration(envutil.Int("PRESIGN_URL_CACHE_TTL_SEC", 600)) * time.Second,
		PresignCacheGrace: time.Duration(envutil.Int("PRESIGN_URL_CACHE_GRACE_SEC", 60)) * time.Second,
		RemoteGPULeaseTTL: time.Duration(envutil.Int("REMOTE_GPU_LEASE_TTL_SEC", 3600)) * time.Second,
	}
}
