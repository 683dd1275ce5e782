package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/app/model"
)

// JobStore is the durable jobs.Store implementation.
type JobStore struct {
	db *sql.DB
	// Serializes read-modify-write cycles in Update. A job is owned by one
	// relay at a time, so this lock sees no real contention; it only makes
	// the store contract hold for misbehaving callers.
	mu sync.Mutex
}

// NewJobStore creates a job store on an opened database.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Create(ctx context.Context, job *model.Job) error {
	outputs, err := json.Marshal(job.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, capability, status, progress, stage, outputs, error, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Capability, string(job.Status), job.Progress,
		job.Stage, string(outputs), job.Error, job.CreatedAt, job.UpdatedAt,
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, capability, status, progress, stage, outputs, error, created_at, updated_at, completed_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *JobStore) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(job); err != nil {
		return nil, err
	}

	outputs, err := json.Marshal(job.Outputs)
	if err != nil {
		return nil, fmt.Errorf("marshal outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, progress = ?, stage = ?, outputs = ?, error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, job.Stage, string(outputs),
		job.Error, job.UpdatedAt, nullableTime(job.CompletedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var status, outputs string
	var completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.UserID, &job.Capability, &status, &job.Progress,
		&job.Stage, &outputs, &job.Error, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = model.Status(status)
	if err := json.Unmarshal([]byte(outputs), &job.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}
	if job.Outputs == nil {
		job.Outputs = make(map[model.OutputKind]string)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
