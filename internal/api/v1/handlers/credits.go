package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speaker-split/internal/api/errors"
	"speaker-split/internal/api/middleware"
	"speaker-split/internal/api/v1/dto"
	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/credits"
	"speaker-split/internal/config"
)

// CreditsHandler serves ledger snapshots and explicit deductions
type CreditsHandler struct {
	credits *credits.Service
	plans   *config.Plans
}

// NewCreditsHandler creates a new credits handler
func NewCreditsHandler(creditsSvc *credits.Service, plans *config.Plans) *CreditsHandler {
	return &CreditsHandler{credits: creditsSvc, plans: plans}
}

// Get handles GET /api/v1/credits
// Returns the caller's current ledger, creating or resetting it first if the
// calendar month rolled over.
func (h *CreditsHandler) Get(c *gin.Context) {
	ledger, err := h.credits.GetOrReset(c.Request.Context(), UserID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromLedger(ledger, h.plans))
}

// Deduct handles POST /api/v1/credits/deduct
// Deducts exactly one credit for the named capability. The streaming path
// deducts through the quota gate; this endpoint exists for callers that
// settle usage out-of-band.
func (h *CreditsHandler) Deduct(c *gin.Context) {
	var req dto.DeductRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	cap, err := capability.Parse(req.Capability)
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("Unknown capability: "+req.Capability))
		return
	}

	ledger, err := h.credits.Deduct(c.Request.Context(), UserID(c), cap)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromLedger(ledger, h.plans))
}
