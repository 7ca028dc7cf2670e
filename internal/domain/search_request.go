package domain

import "time"

// SearchStatus enumerates the research request state machine.
type SearchStatus string

const (
	SearchPending    SearchStatus = "pending"
	SearchProcessing SearchStatus = "processing"
	SearchCompleted  SearchStatus = "completed"
	SearchFailed     SearchStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SearchStatus) Terminal() bool {
	return s == SearchCompleted || s == SearchFailed
}

// SearchRequest tracks one long-running research query.
// TaskHandle is empty until the request has been claimed.
type SearchRequest struct {
	ID           int64
	Status       SearchStatus
	TaskHandle   string
	DateRange    string
	NewWinsFound int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskState is the status reported by the external research API.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// TaskPoll is a single observation of an external research task.
type TaskPoll struct {
	State  TaskState
	Output string
}
