package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/app/model"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := model.NewJob("j1", "u1", "transcription")
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)
	assert.Equal(t, model.StatusUploading, got.Status)

	assert.Error(t, store.Create(ctx, job), "duplicate ids are rejected")
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrJobNotFound)
}

func TestMemoryStore_GetReturnsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, model.NewJob("j1", "u1", "transcription")))

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	got.Status = model.StatusComplete
	got.Outputs[model.OutputTranscript] = "mutated"

	fresh, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploading, fresh.Status)
	assert.Empty(t, fresh.Outputs)
}

func TestMemoryStore_UpdateAppliesUnderLock(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, model.NewJob("j1", "u1", "transcription")))

	p := 42.0
	updated, err := store.Update(ctx, "j1", func(j *model.Job) error {
		return j.Apply(model.Update{Status: model.StatusProcessing, Progress: &p})
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, updated.Status)
	assert.Equal(t, 42, updated.Progress)

	stored, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 42, stored.Progress)
}

func TestMemoryStore_UpdateErrorLeavesJobUnchanged(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := model.NewJob("j1", "u1", "transcription")
	require.NoError(t, job.Apply(model.Update{Error: "already failed"}))
	require.NoError(t, store.Create(ctx, job))

	p := 99.0
	_, err := store.Update(ctx, "j1", func(j *model.Job) error {
		return j.Apply(model.Update{Progress: &p})
	})
	assert.ErrorIs(t, err, apperrors.ErrJobFinalized)

	stored, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Progress)
}
