package drivers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	export "github.com/clipforge/exportd/internal/domain/export"
)

// ErrCancelled is returned by a Driver's Run when it observes the job's
// cooperative cancel flag mid-pipeline. The scheduler treats this as the
// cancellation path, not a failure.
var ErrCancelled = errors.New("export cancelled by request")

// ProgressFunc reports a driver's current position in its own pipeline.
// percent is always 0..100 relative to the whole job, never relative to a
// single phase; phase is a short machine-readable name ("compositing",
// "processing-clip-2/5") matching the wire schema in the persisted state
// layout and the WebSocket subscription payload.
type ProgressFunc func(percent int, phase, message string)

// CancelChecker reports whether the job's cancel_requested flag has been
// set since the driver started. Drivers poll it between phases and at
// natural per-unit boundaries (per clip, per region) rather than on a
// fixed timer, so cancellation latency is bounded by unit-of-work size.
type CancelChecker func() bool

// Driver executes one export job kind end to end: it decodes Params,
// drives the (possibly remote) renderer, and returns where the finished
// artifact landed. A Driver never touches the Job Store directly — the
// scheduler is the only writer of job state; Run communicates purely
// through its return value, its error, and the ProgressFunc callback.
type Driver interface {
	Kind() export.Kind
	Run(ctx context.Context, job *export.Job, progress ProgressFunc, cancelled CancelChecker) (outputRef, outputFilename string, err error)
}

// Registry is the job_kind -> Driver dispatch table, the export analogue
// of a job-type handler registry: exactly one driver per kind, resolved
// once at startup so a missing or duplicate wiring fails fast rather than
// silently picking one.
type Registry struct {
	mu      sync.RWMutex
	drivers map[export.Kind]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[export.Kind]Driver)}
}

func (r *Registry) Register(d Driver) error {
	if d == nil {
		return fmt.Errorf("nil driver")
	}
	k := d.Kind()
	if !export.IsValidKind(k) {
		return fmt.Errorf("driver registered for unknown kind %q", k)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.drivers[k]; exists {
		return fmt.Errorf("driver already registered for kind=%s", k)
	}
	r.drivers[k] = d
	return nil
}

func (r *Registry) Get(kind export.Kind) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[kind]
	return d, ok
}
