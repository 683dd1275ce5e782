package model

import (
	"time"

	apperrors "speaker-split/internal/app/errors"
)

// Status is the lifecycle state of a processing job. Statuses only move
// forward; complete and error are terminal and mutually exclusive.
type Status string

const (
	// StatusUnknown is never stored. It is the snapshot status reported when
	// a poll asks for a job id this store has no record of, so callers can
	// tell "no such job" apart from "job still in an early stage".
	StatusUnknown Status = "unknown"

	StatusUploading    Status = "uploading"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusDiarizing    Status = "diarizing"
	StatusSplitting    Status = "splitting"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// rank orders statuses for the forward-only rule. The capability-specific
// sub-stages share a rank because the backend reports them in no fixed order.
func (s Status) rank() int {
	switch s {
	case StatusUploading:
		return 1
	case StatusProcessing:
		return 2
	case StatusTranscribing, StatusDiarizing, StatusSplitting:
		return 3
	case StatusComplete, StatusError:
		return 4
	}
	return 0
}

// OutputKind names an artifact a job can produce.
type OutputKind string

const (
	OutputTranscript   OutputKind = "transcript"
	OutputSubtitles    OutputKind = "subtitles"
	OutputJSON         OutputKind = "json"
	OutputSpeakerAudio OutputKind = "speakerAudio"
	OutputDocument     OutputKind = "document"
	OutputClonedAudio  OutputKind = "clonedAudio"
)

// Job represents one capability invocation and its tracked lifecycle. It is
// mutated exclusively through Apply while the owning relay consumes events,
// and becomes immutable once it reaches a terminal status.
type Job struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	Capability  string                `json:"capability"`
	Status      Status                `json:"status"`
	Progress    int                   `json:"progress"`
	Stage       string                `json:"stage"`
	Outputs     map[OutputKind]string `json:"outputs"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// NewJob creates a job record in its initial state.
func NewJob(id, userID, capability string) *Job {
	now := time.Now()
	return &Job{
		ID:         id,
		UserID:     userID,
		Capability: capability,
		Status:     StatusUploading,
		Progress:   0,
		Outputs:    make(map[OutputKind]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Terminal reports whether the job has been finalized.
func (j *Job) Terminal() bool {
	return j.Status.Terminal()
}

// Update carries one normalized event to apply to a job. All fields are
// optional; an event may set any combination of them.
type Update struct {
	Status   Status
	Progress *float64
	Stage    string
	Outputs  map[OutputKind]string
	Error    string
}

// Apply folds one event into the job. Returns ErrJobFinalized if the job is
// already terminal. A progress value lower than the current one is discarded
// rather than applied; backend and mock streams are allowed to be noisy, the
// UI contract is not.
func (j *Job) Apply(u Update) error {
	if j.Terminal() {
		return apperrors.ErrJobFinalized
	}

	now := time.Now()

	if u.Error != "" {
		j.Error = u.Error
		j.Status = StatusError
		j.UpdatedAt = now
		j.CompletedAt = &now
		return nil
	}

	if u.Status != "" && u.Status != StatusUnknown && u.Status.rank() >= j.Status.rank() {
		j.Status = u.Status
	}

	if u.Progress != nil {
		p := int(*u.Progress)
		if p > 100 {
			p = 100
		}
		if p > j.Progress {
			j.Progress = p
		}
	}

	if u.Stage != "" {
		j.Stage = u.Stage
	}

	for kind, ref := range u.Outputs {
		if _, exists := j.Outputs[kind]; !exists && ref != "" {
			j.Outputs[kind] = ref
		}
	}

	j.UpdatedAt = now
	if j.Status == StatusComplete {
		j.CompletedAt = &now
	}
	return nil
}

// Clone returns a deep copy for handing snapshots across goroutines.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Outputs = make(map[OutputKind]string, len(j.Outputs))
	for k, v := range j.Outputs {
		cp.Outputs[k] = v
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
