package store

import (
	"context"

	"github.com/sells-group/stayscan/internal/model"
)

// TaskStats summarizes the durable task queue by status and kind.
type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`

	ByKind map[model.TaskKind]int `json:"by_kind"`
}

// Store is the persistence seam for the acquisition core. Upserts are
// idempotent, keyed by the record's identifier, so re-running a task after a
// crash is safe. Task records are durable: status, retry count, priority and
// timestamps survive restarts so reset-failed and batch selection keep
// working after a crash.
type Store interface {
	// Hotels. UpsertHotel merges field-wise: incoming non-null fields win,
	// missing fields keep their stored value.
	UpsertHotel(ctx context.Context, h *model.Hotel) error
	GetHotel(ctx context.Context, sourceID string) (*model.Hotel, error)
	HotelsByReviewThreshold(ctx context.Context, minReviews int) ([]model.Hotel, error)

	// Reviews.
	UpsertReview(ctx context.Context, r *model.Review) error
	CountReviews(ctx context.Context, hotelID string) (int, error)

	// Tasks. Only the task scheduler calls the mutating methods.
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	SaveTask(ctx context.Context, t *model.Task) error
	HasOpenReviewTask(ctx context.Context, hotelID string) (bool, error)
	NextPending(ctx context.Context, kind model.TaskKind, limit int) ([]model.Task, error)
	ResetFailed(ctx context.Context) (int, error)
	TaskStats(ctx context.Context) (*TaskStats, error)
	AppendTaskLog(ctx context.Context, taskID, level, message string) error

	// WithTx runs fn against a transaction-scoped store, committing on nil
	// and rolling back on error.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
