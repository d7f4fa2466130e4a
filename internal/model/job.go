package model

import "time"

// JobState is the coarse state of a background batch job.
type JobState string

// Job states.
const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the progress document a running batch publishes to the job
// store. Single writer (the active batch); readers poll it for live status.
type JobStatus struct {
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
	JobID       string         `json:"job_id"`
	Name        string         `json:"name"`
	State       JobState       `json:"state"`
	Error       string         `json:"error,omitempty"`
	Results     map[string]int `json:"results,omitempty"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Matched     int            `json:"matched"`
	Errors      int            `json:"errors"`
	Progress    int            `json:"progress"` // percent, 0-100
}

// Active reports whether the job is still queued or running.
func (j *JobStatus) Active() bool {
	return j.State == JobQueued || j.State == JobRunning
}
