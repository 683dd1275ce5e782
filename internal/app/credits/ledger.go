package credits

import (
	"time"

	"speaker-split/internal/app/capability"
)

// Tier is the billing tier assigned by the identity/billing collaborator.
// The ledger only reads it to determine pool ceilings.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Ledger holds a user's remaining credit pools for the current entitlement
// period. One instance per user; pools are decremented by exactly one per
// successful operation and restored to the tier ceiling on the monthly reset.
type Ledger struct {
	UserID      string                        `json:"user_id"`
	Tier        Tier                          `json:"tier"`
	PeriodStart time.Time                     `json:"period_start"`
	Pools       map[capability.Capability]int `json:"pools"`
	UpdatedAt   time.Time                     `json:"updated_at"`
}

// Stale reports whether the ledger belongs to an earlier calendar month than
// now. A stale ledger must be reset before any read or deduction is honored.
func (l *Ledger) Stale(now time.Time) bool {
	start := l.PeriodStart.UTC()
	n := now.UTC()
	return start.Year() != n.Year() || start.Month() != n.Month()
}

// Remaining returns the balance for a capability.
func (l *Ledger) Remaining(c capability.Capability) int {
	return l.Pools[c]
}

// Clone returns a deep copy so callers can mutate-then-persist atomically.
func (l *Ledger) Clone() *Ledger {
	cp := *l
	cp.Pools = make(map[capability.Capability]int, len(l.Pools))
	for k, v := range l.Pools {
		cp.Pools[k] = v
	}
	return &cp
}

// MonthStart returns the first instant of now's calendar month in UTC.
func MonthStart(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, time.UTC)
}
