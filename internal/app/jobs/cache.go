package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/app/model"
)

// CachedStore decorates a Store with a Redis snapshot mirror. Every write is
// mirrored as JSON under job:<id> with a TTL, and reads fall back to the
// mirror when the local store has no record, which lets the polling endpoint
// resync jobs owned by another instance. Mirror failures are logged and
// swallowed; the local store stays authoritative.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore creates a caching decorator from a Redis URL.
func NewCachedStore(inner Store, redisURL string, ttl time.Duration, logger *slog.Logger) (*CachedStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &CachedStore{
		inner:  inner,
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger,
	}, nil
}

func jobKey(id string) string {
	return "job:" + id
}

func (s *CachedStore) Create(ctx context.Context, job *model.Job) error {
	if err := s.inner.Create(ctx, job); err != nil {
		return err
	}
	s.mirror(ctx, job)
	return nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.inner.Get(ctx, id)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, apperrors.ErrJobNotFound) {
		return nil, err
	}

	data, rerr := s.client.Get(ctx, jobKey(id)).Bytes()
	if rerr == redis.Nil {
		return nil, apperrors.ErrJobNotFound
	}
	if rerr != nil {
		s.logger.Warn("job cache read failed", "job_id", id, "error", rerr)
		return nil, apperrors.ErrJobNotFound
	}

	var cached model.Job
	if uerr := json.Unmarshal(data, &cached); uerr != nil {
		s.logger.Warn("job cache entry malformed", "job_id", id, "error", uerr)
		return nil, apperrors.ErrJobNotFound
	}
	return &cached, nil
}

func (s *CachedStore) Update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	job, err := s.inner.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, job)
	return job, nil
}

func (s *CachedStore) mirror(ctx context.Context, job *model.Job) {
	data, err := json.Marshal(job)
	if err != nil {
		s.logger.Warn("job cache marshal failed", "job_id", job.ID, "error", err)
		return
	}
	if err := s.client.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		s.logger.Warn("job cache write failed", "job_id", job.ID, "error", err)
	}
}

// Ping verifies the Redis connection at startup.
func (s *CachedStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
