package model

import "time"

// AdmissionRequest asks for one shard to be admitted.
type AdmissionRequest struct {
	// Source is a local path or file:// URI to a shard directory or archive.
	Source      string `json:"source"`
	Profile     string `json:"profile,omitempty"`
	Strict      bool   `json:"strict,omitempty"`
	UpdateCache bool   `json:"update_cache,omitempty"`
}

// JobStatus tracks an asynchronous admission.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether no further transitions happen.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is an admission request flowing through the queue.
type Job struct {
	ID        string           `json:"id" yaml:"id"`
	Request   AdmissionRequest `json:"request" yaml:"request"`
	Status    JobStatus        `json:"status" yaml:"status"`
	Report    *AdmissionReport `json:"report,omitempty" yaml:"report,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" yaml:"updated_at"`
}
