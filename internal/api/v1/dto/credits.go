package dto

import (
	"time"

	"github.com/samber/lo"

	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/credits"
	"speaker-split/internal/config"
)

// CreditPool reports one capability's remaining balance against its ceiling.
type CreditPool struct {
	Remaining int `json:"remaining"`
	Ceiling   int `json:"ceiling"`
}

// CreditsResponse is the ledger snapshot returned to the client.
type CreditsResponse struct {
	UserID      string                `json:"userId"`
	Tier        string                `json:"tier"`
	PeriodStart time.Time             `json:"periodStart"`
	Credits     map[string]CreditPool `json:"credits"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// FromLedger converts a ledger to its API representation, pairing each pool
// with the tier's ceiling.
func FromLedger(ledger *credits.Ledger, plans *config.Plans) *CreditsResponse {
	pools := lo.Associate(capability.All(), func(c capability.Capability) (string, CreditPool) {
		return string(c), CreditPool{
			Remaining: ledger.Remaining(c),
			Ceiling:   plans.Ceiling(string(ledger.Tier), c),
		}
	})

	return &CreditsResponse{
		UserID:      ledger.UserID,
		Tier:        string(ledger.Tier),
		PeriodStart: ledger.PeriodStart,
		Credits:     pools,
		UpdatedAt:   ledger.UpdatedAt,
	}
}

// DeductRequest asks for a single credit deduction.
type DeductRequest struct {
	Capability string `json:"capability" binding:"required"`
}
