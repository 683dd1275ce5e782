package credits

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"speaker-split/internal/app/capability"
	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/config"
)

// TierResolver supplies the billing tier for a user. The identity/billing
// collaborator is the sole writer of tier; this service only reads it.
type TierResolver interface {
	TierFor(ctx context.Context, userID string) (Tier, error)
}

// StaticTierResolver resolves pro users from a fixed set, everyone else free.
type StaticTierResolver struct {
	ProUsers map[string]bool
}

func (r *StaticTierResolver) TierFor(ctx context.Context, userID string) (Tier, error) {
	if r.ProUsers[userID] {
		return TierPro, nil
	}
	return TierFree, nil
}

// Service owns all ledger reads and mutations. Reset-check, balance-check and
// decrement run as one critical section per user, so two concurrent requests
// can never both spend the last credit. Different users never contend.
type Service struct {
	store  Store
	plans  *config.Plans
	tiers  TierResolver
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewService creates a credits service.
func NewService(store Store, plans *config.Plans, tiers TierResolver, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		plans:     plans,
		tiers:     tiers,
		logger:    logger,
		now:       time.Now,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the wall clock, for tests that cross month boundaries.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) lockUser(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// GetOrReset returns the user's current ledger, lazily creating or resetting
// it when missing or stale.
func (s *Service) GetOrReset(ctx context.Context, userID string) (*Ledger, error) {
	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	return s.getOrResetLocked(ctx, userID)
}

// HasBalance reports whether the ledger can cover one unit of the capability.
func (s *Service) HasBalance(ledger *Ledger, c capability.Capability) bool {
	return ledger.Remaining(c) > 0
}

// Deduct re-fetches the ledger, verifies balance and decrements by exactly 1.
// The balance is checked again here, not trusted from an earlier read. The
// decrement is all-or-nothing: a persistence failure leaves the stored pool
// untouched and returns ErrLedgerWriteFailed.
func (s *Service) Deduct(ctx context.Context, userID string, c capability.Capability) (*Ledger, error) {
	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	ledger, err := s.getOrResetLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	if ledger.Remaining(c) <= 0 {
		return nil, apperrors.ErrInsufficientCredit
	}

	updated := ledger.Clone()
	updated.Pools[c]--
	updated.UpdatedAt = s.now()

	if err := s.store.Put(ctx, updated); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrLedgerWriteFailed, err.Error())
	}

	s.logger.Info("credit deducted",
		"user_id", userID,
		"capability", c,
		"remaining", updated.Remaining(c),
	)
	return updated, nil
}

// getOrResetLocked must be called with the user's lock held.
func (s *Service) getOrResetLocked(ctx context.Context, userID string) (*Ledger, error) {
	now := s.now()

	tier, err := s.tiers.TierFor(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, "resolve tier")
	}

	ledger, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrLedgerNotFound):
		ledger = nil
	case err != nil:
		return nil, apperrors.Wrap(err, "load ledger")
	}

	if ledger == nil || ledger.Stale(now) {
		ledger = s.resetLedger(userID, tier, now)
		if err := s.store.Put(ctx, ledger); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrLedgerWriteFailed, err.Error())
		}
		s.logger.Info("ledger reset",
			"user_id", userID,
			"tier", tier,
			"period_start", ledger.PeriodStart,
		)
		return ledger, nil
	}

	if ledger.Tier != tier {
		// Tier changed since the last write. Adopt it and clamp pools so the
		// ceiling invariant holds for downgrades; upgrades take full effect
		// on the next monthly reset.
		ledger.Tier = tier
		for _, c := range capability.All() {
			if ceiling := s.plans.Ceiling(string(tier), c); ledger.Pools[c] > ceiling {
				ledger.Pools[c] = ceiling
			}
		}
		ledger.UpdatedAt = now
		if err := s.store.Put(ctx, ledger); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrLedgerWriteFailed, err.Error())
		}
	}

	return ledger, nil
}

func (s *Service) resetLedger(userID string, tier Tier, now time.Time) *Ledger {
	pools := make(map[capability.Capability]int, len(capability.All()))
	for _, c := range capability.All() {
		pools[c] = s.plans.Ceiling(string(tier), c)
	}
	return &Ledger{
		UserID:      userID,
		Tier:        tier,
		PeriodStart: MonthStart(now),
		Pools:       pools,
		UpdatedAt:   now,
	}
}
