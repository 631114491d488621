package export

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind is the closed set of pipeline drivers the scheduler can dispatch to.
type Kind string

const (
	KindFraming         Kind = "framing"
	KindOverlay         Kind = "overlay"
	KindMultiClip       Kind = "multi_clip"
	KindAnnotateExtract Kind = "annotate_extract"
)

func IsValidKind(k Kind) bool {
	switch k {
	case KindFraming, KindOverlay, KindMultiClip, KindAnnotateExtract:
		return true
	default:
		return false
	}
}

// Status is the job's position in the state machine. Transitions only move
// forward: pending -> processing -> {complete, error, cancelled}, or
// pending -> cancelled directly.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// MessageCancelled is the sanitized error message used when a processing job
// observes a cancel request and unwinds.
const MessageCancelled = "cancelled"

// MessageRestarted is the message Recovery stamps on jobs found in
// processing at startup.
const MessageRestarted = "server restarted during processing"

// Job is the Export Job entity: the durable, single source of truth for a
// video export request and everything the scheduler, drivers, and API need
// to agree on its state.
type Job struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	Owner      string `gorm:"column:owner;not null;index" json:"owner"`
	ProjectRef string `gorm:"column:project_ref;not null;index" json:"project_ref"`

	Kind   Kind   `gorm:"column:kind;not null;index" json:"kind"`
	Status Status `gorm:"column:status;not null;index" json:"status"`

	Params datatypes.JSON `gorm:"column:params;type:jsonb;not null" json:"params"`

	OutputRef      string `gorm:"column:output_ref" json:"output_ref,omitempty"`
	OutputFilename string `gorm:"column:output_filename" json:"output_filename,omitempty"`
	Error          string `gorm:"column:error" json:"error,omitempty"`

	Progress int    `gorm:"column:progress;not null;default:0" json:"progress"`
	Phase    string `gorm:"column:phase" json:"phase,omitempty"`

	WorkerID        string `gorm:"column:worker_id" json:"worker_id,omitempty"`
	CancelRequested bool   `gorm:"column:cancel_requested;not null;default:false" json:"cancel_requested"`
	Attempts        int    `gorm:"column:attempts;not null;default:0" json:"attempts"`

	CreatedAt   time.Time      `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Job) TableName() string { return "export_job" }

// Snapshot is the wire-friendly projection returned by the API and used to
// build the Progress Hub's synthetic "current status" event.
type Snapshot struct {
	JobID          uuid.UUID `json:"job_id"`
	ProjectRef     string    `json:"project_ref"`
	Kind           Kind      `json:"kind"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress,omitempty"`
	Phase          string    `json:"phase,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	OutputRef      string    `json:"output_ref,omitempty"`
	OutputFilename string    `json:"output_filename,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func (j *Job) ToSnapshot() Snapshot {
	return Snapshot{
		JobID:          j.ID,
		ProjectRef:     j.ProjectRef,
		Kind:           j.Kind,
		Status:         j.Status,
		Progress:       j.Progress,
		Phase:          j.Phase,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		OutputRef:      j.OutputRef,
		OutputFilename: j.OutputFilename,
		Error:          j.Error,
	}
}
