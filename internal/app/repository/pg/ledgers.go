package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/credits"
	apperrors "speaker-split/internal/app/errors"
)

// LedgerStore is the PostgreSQL credits.Store implementation, for
// deployments where the ledger outlives a single host.
type LedgerStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and ensures the ledgers table exists.
func Open(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ledgers (
			user_id      TEXT PRIMARY KEY,
			tier         TEXT NOT NULL,
			period_start TIMESTAMPTZ NOT NULL,
			pools        JSONB NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledgers table: %w", err)
	}
	return db, nil
}

// NewLedgerStore creates a ledger store on an opened database.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Get(ctx context.Context, userID string) (*credits.Ledger, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, tier, period_start, pools, updated_at
		FROM ledgers WHERE user_id = $1`, userID)

	var ledger credits.Ledger
	var tier string
	var pools []byte

	err := row.Scan(&ledger.UserID, &tier, &ledger.PeriodStart, &pools, &ledger.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}

	ledger.Tier = credits.Tier(tier)
	if err := json.Unmarshal(pools, &ledger.Pools); err != nil {
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
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			period_start = EXCLUDED.period_start,
			pools = EXCLUDED.pools,
			updated_at = EXCLUDED.updated_at`,
		ledger.UserID, string(ledger.Tier), ledger.PeriodStart, pools, ledger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert ledger: %w", err)
	}
	return nil
}
