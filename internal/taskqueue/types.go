// Package taskqueue is a durable Redis-backed job queue for ingest
// and query tasks, with progress publication, result retention, and
// cooperative cancellation.
package taskqueue

import "encoding/json"

// Task kinds.
const (
	KindIngest = "ingest"
	KindQuery  = "query"
)

// Task statuses surfaced to callers.
const (
	StatusPending  = "PENDING"
	StatusStarted  = "STARTED"
	StatusProgress = "PROGRESS"
	StatusSuccess  = "SUCCESS"
	StatusFailure  = "FAILURE"
	StatusRevoked  = "REVOKED"
)

// Task is one queued unit of work.
type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Progress is the PROGRESS status metadata.
type Progress struct {
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	StatusMsg string `json:"status_msg"`
}

// Status describes a task's current state.
type Status struct {
	TaskID   string    `json:"task_id"`
	State    string    `json:"status"`
	Progress *Progress `json:"progress,omitempty"`
}

// Result is the terminal envelope stored for RESULT_EXPIRES seconds.
type Result struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	SessionID string          `json:"session_id"`
}
