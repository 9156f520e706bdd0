// Package repository keeps the state of admission jobs.
package repository

import (
	"context"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

// Stats counts jobs by status.
type Stats struct {
	Total   int `json:"total" yaml:"total"`
	Pending int `json:"pending" yaml:"pending"`
	Running int `json:"running" yaml:"running"`
	Done    int `json:"done" yaml:"done"`
	Failed  int `json:"failed" yaml:"failed"`
	Evicted int `json:"evicted" yaml:"evicted"`
}

// Store provides read/write access to admission jobs.
type Store interface {
	// Create records a new job. The ID must be unused.
	Create(ctx context.Context, job model.Job) error

	// Update applies fn to the stored job and returns the result.
	// Returns ErrNotFound if the job is unknown.
	Update(ctx context.Context, id string, fn func(*model.Job)) (model.Job, error)

	// Get returns a job by ID.
	// Returns ErrNotFound if the job is unknown or was evicted.
	Get(ctx context.Context, id string) (model.Job, error)

	// Stats returns job counts.
	Stats(ctx context.Context) Stats
}
