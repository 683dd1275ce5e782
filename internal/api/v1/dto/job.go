package dto

import (
	"time"

	"speaker-split/internal/app/model"
)

// JobResponse is the API representation of a job record.
type JobResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId,omitempty"`
	Capability  string            `json:"capability,omitempty"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	Stage       string            `json:"stage,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// FromJob converts a job record to its API representation.
func FromJob(job *model.Job) *JobResponse {
	outputs := make(map[string]string, len(job.Outputs))
	for kind, ref := range job.Outputs {
		outputs[string(kind)] = ref
	}

	return &JobResponse{
		ID:          job.ID,
		UserID:      job.UserID,
		Capability:  string(job.Capability),
		Status:      string(job.Status),
		Progress:    job.Progress,
		Stage:       job.Stage,
		Outputs:     outputs,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// UnknownJob is the poll-miss response body: a record the service has no
// knowledge of, reported with an explicit unknown status rather than a bare
// 404.
func UnknownJob(id string) *JobResponse {
	return &JobResponse{
		ID:     id,
		Status: string(model.StatusUnknown),
	}
}
