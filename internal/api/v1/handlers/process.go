package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"speaker-split/internal/api/errors"
	"speaker-split/internal/api/middleware"
	"speaker-split/internal/api/v1/dto"
	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/gate"
	"speaker-split/internal/app/jobs"
	"speaker-split/internal/app/model"
	"speaker-split/internal/app/relay"
)

// ProcessHandler runs gated streaming operations
type ProcessHandler struct {
	jobs   jobs.Store
	gate   *gate.Gate
	logger *slog.Logger
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(store jobs.Store, quotaGate *gate.Gate, logger *slog.Logger) *ProcessHandler {
	return &ProcessHandler{
		jobs:   store,
		gate:   quotaGate,
		logger: logger,
	}
}

// Process handles POST /api/v1/process/:capability
// Opens a newline-delimited JSON event stream for one backend operation. The
// response body carries progress events as they happen and ends with exactly
// one terminal event (completion payload or error).
func (h *ProcessHandler) Process(c *gin.Context) {
	cap, err := capability.Parse(c.Param("capability"))
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("Unknown capability: "+c.Param("capability")))
		return
	}

	var req dto.ProcessRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	userID := UserID(c)
	job := model.NewJob(uuid.New().String(), userID, string(cap))
	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		h.logger.Error("job create failed", "user_id", userID, "capability", cap, "error", err)
		middleware.HandleError(c, errors.NewInternalError("Could not create job"))
		return
	}

	// Headers must go out before the first event; the job id travels in a
	// header so polling works even if the stream is cut mid-flight.
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Job-ID", job.ID)
	c.Status(http.StatusOK)

	h.gate.Invoke(c.Request.Context(), userID, cap, relay.Request{
		JobID:        job.ID,
		AudioPath:    req.AudioPath,
		SpeakerCount: req.SpeakerCount,
		OutputDir:    req.OutputDir,
	}, c.Writer)
}
