package progress

import (
	"github.com/google/uuid"

	export "github.com/clipforge/exportd/internal/domain/export"
)

// Event is the wire payload pushed to a job's WebSocket subscribers. It is
// ephemeral — never persisted — and carries the job's status, progress,
// phase, output and error fields plus a per-job sequence number. It does
// not carry the project reference, kind or timestamps that a GET returns.
type Event struct {
	JobID          uuid.UUID `json:"job_id"`
	Seq            uint64    `json:"seq"`
	Status         string    `json:"status"`
	Progress       int       `json:"progress,omitempty"`
	Message        string    `json:"message,omitempty"`
	Phase          string    `json:"phase,omitempty"`
	OutputRef      string    `json:"output_ref,omitempty"`
	OutputFilename string    `json:"output_filename,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Terminal reports whether this event represents one of the job's terminal
// states, after which the hub closes the subscriber's socket.
func (e Event) Terminal() bool {
	switch e.Status {
	case "complete", "error", "cancelled":
		return true
	default:
		return false
	}
}

// SnapshotEvent builds the synthetic "current status" event a fresh
// subscription sends immediately, straight from a Job Store read.
func SnapshotEvent(job *export.Job) Event {
	return Event{
		JobID:          job.ID,
		Status:         string(job.Status),
		Progress:       job.Progress,
		Phase:          job.Phase,
		OutputRef:      job.OutputRef,
		OutputFilename: job.OutputFilename,
		Error:          job.Error,
	}
}
