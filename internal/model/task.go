package model

import "time"

// TaskKind distinguishes the two units of crawl work.
type TaskKind string

const (
	TaskListFetch   TaskKind = "list_fetch"
	TaskReviewFetch TaskKind = "review_fetch"
)

// TaskStatus is the task state machine's current state. Completed and Skipped
// are terminal; Failed is terminal until an operator runs reset-failed.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// MaxTaskRetries is the retry cap: a task failing this many times goes to
// Failed instead of back to Pending.
const MaxTaskRetries = 3

// Task is one retryable unit of fetch work. The scheduler owns it
// exclusively; status transitions are the only mutation path.
type Task struct {
	ID   string   `json:"id"`
	Kind TaskKind `json:"kind"`

	// List-fetch scope.
	RegionType       string `json:"region_type,omitempty"`
	BusinessZoneCode string `json:"business_zone_code,omitempty"`
	PriceLevel       string `json:"price_level,omitempty"`

	// Review-fetch scope.
	HotelID string `json:"hotel_id,omitempty"`

	Priority    int        `json:"priority"`
	Status      TaskStatus `json:"status"`
	RetryCount  int        `json:"retry_count"`
	ErrorReason string     `json:"error_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ItemsCrawled int `json:"items_crawled"`
	ItemsTarget  int `json:"items_target"`
}

// Terminal reports whether the task can never run again without operator
// intervention.
func (t *Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskSkipped || t.Status == TaskFailed
}
