package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"speaker-split/internal/api/middleware"
	"speaker-split/internal/api/v1/dto"
	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/app/jobs"
)

// JobHandler serves job record snapshots
type JobHandler struct {
	jobs jobs.Store
}

// NewJobHandler creates a new job handler
func NewJobHandler(store jobs.Store) *JobHandler {
	return &JobHandler{jobs: store}
}

// Get handles GET /api/v1/jobs/:id
// Returns the current job record. Unknown ids answer 404 with an explicit
// unknown status so pollers can distinguish "never existed or expired" from a
// transport failure.
func (h *JobHandler) Get(c *gin.Context) {
	id := c.Param("id")

	job, err := h.jobs.Get(c.Request.Context(), id)
	if errors.Is(err, apperrors.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, dto.UnknownJob(id))
		return
	}
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}
