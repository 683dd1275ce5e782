package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/credits"
	apperrors "speaker-split/internal/app/errors"
)

// LedgerStore is the durable credits.Store implementation. Whole-record
// reads and writes only; the credits service serializes access per user.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore creates a ledger store on an opened database.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Get(ctx context.Context, userID string) (*credits.Ledger, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, tier, period_start, pools, updated_at
		FROM ledgers WHERE user_id = ?`, userID)

	var ledger credits.Ledger
	var tier, pools string

	err := row.Scan(&ledger.UserID, &tier, &ledger.PeriodStart, &pools, &ledger.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	ledger.Tier = credits.Tier(tier)
	if err := json.Unmarshal([]byte(pools), &ledger.Pools); err != nil {
		return nil, fmt.Errorf("unmarshal pools: %w", err)
	}
	if ledger.Pools == nil {
		ledger.Pools = make(map[capability.Capability]int)
	}
	return &ledger, nil
}

func (s *LedgerStore) Put(ctx context.Context, ledger *credits.Ledger) error {
	pools, err := json.Marshal(ledger.Pools)
	if err != nil {
		return fmt.Errorf("marshal pools: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledgers (user_id, tier, period_start, pools, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tier = excluded.tier,
			period_start = excluded.period_start,
			pools = excluded.pools,
			updated_at = excluded.updated_at`,
		ledger.UserID, string(ledger.Tier), ledger.PeriodStart, string(pools), ledger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert ledger: %w", err)
	}
	return nil
}
