package domain

import "time"

// Run outcomes recorded by the scheduler.
const (
	RunSuccess = "success"
	RunFailure = "failure"
)

// RunRecord describes the most recent invocation of a job.
type RunRecord struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
