package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/datatypes"

	"github.com/clipforge/exportd/internal/blob"
	repo "github.com/clipforge/exportd/internal/data/repos/export"
	export "github.com/clipforge/exportd/internal/domain/export"
	"github.com/clipforge/exportd/internal/platform/ctxutil"
	"github.com/clipforge/exportd/internal/platform/dbctx"
	"github.com/clipforge/exportd/internal/platform/logger"
	"github.com/clipforge/exportd/internal/progress"
)

// ExportsHandler serves the orchestrator's HTTP + WebSocket surface
// (spec §4.6, §6.1, §6.2). It never touches job state directly beyond
// what JobRepo and the Blob Store expose.
type ExportsHandler struct {
	jobs  repo.JobRepo
	store blob.Store
	hub   *progress.Hub
	log   *logger.Logger
}

func NewExportsHandler(jobs repo.JobRepo, store blob.Store, hub *progress.Hub, log *logger.Logger) *ExportsHandler {
	return &ExportsHandler{jobs: jobs, store: store, hub: hub, log: log.With("handler", "ExportsHandler")}
}

type submitExportRequest struct {
	ProjectRef string          `json:"project_ref" binding:"required"`
	Kind       export.Kind     `json:"kind" binding:"required"`
	Params     datatypes.JSON  `json:"params" binding:"required"`
}

type submitExportResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// POST /exports
func (h *ExportsHandler) Submit(c *gin.Context) {
	owner := ctxutil.GetOwner(c.Request.Context())

	var req submitExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if !export.IsValidKind(req.Kind) {
		RespondError(c, http.StatusBadRequest, "invalid_kind", nil)
		return
	}
	if err := export.ValidateParams(req.Kind, json.RawMessage(req.Params)); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_params", err)
		return
	}

	job := &export.Job{
		Owner:      owner,
		ProjectRef: req.ProjectRef,
		Kind:       req.Kind,
		Params:     req.Params,
	}
	created, err := h.jobs.Create(dbctx.Context{Ctx: c.Request.Context()}, job)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}

	RespondOK(c, submitExportResponse{JobID: created.ID, Status: string(created.Status), CreatedAt: created.CreatedAt})
}

// GET /exports/:id
func (h *ExportsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	RespondOK(c, job.ToSnapshot())
}

// GET /projects/:project_ref/exports
func (h *ExportsHandler) ListForProject(c *gin.Context) {
	filter := repo.ListFilter{ProjectRef: c.Param("project_ref")}
	if status := c.Query("status"); status != "" {
		filter.Status = export.Status(status)
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_since", err)
			return
		}
		filter.Since = &t
	}
	jobs, err := h.jobs.List(dbctx.Context{Ctx: c.Request.Context()}, filter)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, toSnapshots(jobs))
}

// GET /exports/active
func (h *ExportsHandler) ListActive(c *gin.Context) {
	owner := ctxutil.GetOwner(c.Request.Context())
	jobs, err := h.jobs.ListActiveForOwner(dbctx.Context{Ctx: c.Request.Context()}, owner)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, toSnapshots(jobs))
}

// DELETE /exports/:id
func (h *ExportsHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.RequestCancel(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		RespondErr(c, err, http.StatusInternalServerError, "cancel_failed")
		return
	}
	RespondOK(c, job.ToSnapshot())
}

// GET /exports/:id/download
func (h *ExportsHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	if job.Status != export.StatusComplete {
		RespondError(c, http.StatusConflict, "not_complete", nil)
		return
	}

	url, err := h.store.GetPublicURL(c.Request.Context(), blob.CategoryOutput, job.OutputRef)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "presign_failed", err)
		return
	}
	c.Redirect(http.StatusFound, url)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /ws/exports/:id
func (h *ExportsHandler) Subscribe(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	h.hub.Serve(id, conn, progress.SnapshotEvent(job))
}

func toSnapshots(jobs []*export.Job) []export.Snapshot {
	out := make([]export.Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.ToSnapshot()
	}
	return out
}
