package scheduler

import (
	"time"

	"github.com/clipforge/exportd/internal/platform/envutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

// BackendMode selects which Renderer implementation drivers call into.
type BackendMode string

const (
	BackendModeLocal     BackendMode = "local"
	BackendModeRemoteGPU BackendMode = "remote-gpu"
)

// Config holds the scheduler's tunables (spec §6.4), all env-backed with
// the stated defaults.
type Config struct {
	WorkerConcurrency     int
	BackendMode           BackendMode
	ClaimPollInterval     time.Duration
	ClaimPollMax          time.Duration
	CancelPollInterval    time.Duration
	StartupOrphanPolicy   string
}

func ConfigFromEnv(log *logger.Logger) Config {
	mode := BackendMode(envutil.GetEnv("BACKEND_MODE", string(BackendModeLocal), log))
	if mode != BackendModeLocal && mode != BackendModeRemoteGPU {
		log.Warn("unknown BACKEND_MODE, defaulting to local", "value", mode)
		mode = BackendModeLocal
	}
	policy := envutil.GetEnv("STARTUP_ORPHAN_POLICY", "fail", log)
	if policy != "fail" && policy != "resume" {
		log.Warn("unknown STARTUP_ORPHAN_POLICY, defaulting to fail", "value", policy)
		policy = "fail"
	}
	return Config{
		WorkerConcurrency:   envutil.Int("WORKER_CONCURRENCY", 2),
		BackendMode:         mode,
		ClaimPollInterval:   time.Duration(envutil.Int("CLAIM_POLL_INTERVAL_MS", 250)) * time.Millisecond,
		ClaimPollMax:        time.Duration(envutil.Int("CLAIM_POLL_MAX_MS", 5000)) * time.Millisecond,
		CancelPollInterval:  time.Duration(envutil.Int("CANCEL_POLL_INTERVAL_SEC", 5)) * time.Second,
		StartupOrphanPolicy: policy,
	}
}
