package app

import (
	"fmt"

	"github.com/clipforge/exportd/internal/blob"
	"github.com/clipforge/exportd/internal/jobs/drivers"
	"github.com/clipforge/exportd/internal/jobs/scheduler"
	"github.com/clipforge/exportd/internal/platform/logger"
	"github.com/clipforge/exportd/internal/progress"
	"github.com/clipforge/exportd/internal/remotegpu"
)

// Services is the set of long-lived, stateful collaborators the rest of
// the app is built on: the Blob Store, the progress fan-out Hub, and the
// worker pool that drains the Job Store.
type Services struct {
	Store     blob.Store
	Hub       *progress.Hub
	Scheduler *scheduler.Scheduler
}

func wireServices(clients Clients, repos Repos, cfg Config, log *logger.Logger) (Services, error) {
	log.Info("wiring services")

	rawStore, err := blob.NewGCSStore(log)
	if err != nil {
		return Services{}, fmt.Errorf("init blob store: %w", err)
	}
	store := blob.NewCachedStore(rawStore, clients.Redis, log, cfg.PresignCacheTTL, cfg.PresignCacheGrace)

	hub := progress.NewHub(log)

	renderer, err := wireRenderer(clients, store, cfg, log)
	if err != nil {
		return Services{}, fmt.Errorf("init renderer: %w", err)
	}

	registry := drivers.NewRegistry()
	for _, d := range []drivers.Driver{
		drivers.NewFramingDriver(store, renderer),
		drivers.NewOverlayDriver(store, renderer),
		drivers.NewMultiClipDriver(store, renderer),
		drivers.NewAnnotateExtractDriver(store, renderer),
	} {
		if err := registry.Register(d); err != nil {
			return Services{}, fmt.Errorf("register driver: %w", err)
		}
	}

	sched := scheduler.New(repos.Jobs, registry, hub, log, cfg.Scheduler)

	return Services{Store: store, Hub: hub, Scheduler: sched}, nil
}

// wireRenderer picks the Renderer implementation per backend_mode (spec
// §6.4): local is a direct passthrough against the Blob Store, remote-gpu
// dispatches to the external render service and tracks a lease in Redis.
func wireRenderer(clients Clients, store blob.Store, cfg Config, log *logger.Logger) (drivers.Renderer, error) {
	if cfg.Scheduler.BackendMode != scheduler.BackendModeRemoteGPU {
		return drivers.NewLocalRenderer(store), nil
	}

	leases := remotegpu.NewLeaseStore(clients.Redis, cfg.RemoteGPULeaseTTL)
	client := remotegpu.NewClientFromEnv(store, leases, log)
	return remotegpu.NewRenderer(client, leases, log), nil
}
