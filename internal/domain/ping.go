package domain

import "time"

// PingOutcome is the result of one health ping.
// StatusCode is set only when the transport completed; Error only when it did not.
type PingOutcome struct {
	Success    bool          `json:"success"`
	StatusCode *int          `json:"status_code,omitempty"`
	Error      *string       `json:"error,omitempty"`
	URL        string        `json:"url"`
	CheckedAt  time.Time     `json:"checked_at"`
	Latency    time.Duration `json:"latency_ns"`
}
