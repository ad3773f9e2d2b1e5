// Package task owns the durable work queue. Every fetch operation runs as a
// Task persisted through the store, and the Scheduler's transition methods
// are the only path that mutates task status. Each transition is written to
// the task log trail with a reason, so a crashed run can be reconstructed
// from the database alone.
package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/plan"
	"github.com/sells-group/stayscan/internal/store"
)

// Scheduler drives tasks through the state machine
// Pending -> InProgress -> {Completed | Pending (retry) | Failed | Skipped}.
type Scheduler struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewScheduler(st store.Store) *Scheduler {
	return &Scheduler{
		store: st,
		log:   zap.L().With(zap.String("component", "scheduler")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateListTasks enqueues one list-fetch task per (zone, tier) cell of the
// plan, prioritized by region and tier weight. Returns the created task IDs
// in plan order.
func (s *Scheduler) CreateListTasks(ctx context.Context, p *plan.Plan) ([]string, error) {
	var ids []string
	for ri := range p.Regions {
		region := &p.Regions[ri]
		for _, zone := range region.Zones {
			for ti := range p.Tiers {
				tier := &p.Tiers[ti]
				t := &model.Task{
					ID:               uuid.NewString(),
					Kind:             model.TaskListFetch,
					RegionType:       region.Name,
					BusinessZoneCode: zone.Code,
					PriceLevel:       tier.Level,
					Priority:         ListPriority(region, tier),
					Status:           model.TaskPending,
					CreatedAt:        s.now(),
					ItemsTarget:      tier.Target,
				}
				if err := s.store.CreateTask(ctx, t); err != nil {
					return ids, eris.Wrapf(err, "scheduler: create list task for zone %s tier %s", zone.Code, tier.Level)
				}
				ids = append(ids, t.ID)
			}
		}
	}
	s.log.Info("list tasks created", zap.Int("count", len(ids)))
	return ids, nil
}

// CreateReviewTasks enqueues a review-fetch task for every hotel at or above
// the review threshold that does not already have an open one. ItemsTarget
// is capped at maxReviews.
func (s *Scheduler) CreateReviewTasks(ctx context.Context, minReviews, maxReviews int) ([]string, error) {
	hotels, err := s.store.HotelsByReviewThreshold(ctx, minReviews)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: query eligible hotels")
	}

	var ids []string
	for i := range hotels {
		h := &hotels[i]
		open, err := s.store.HasOpenReviewTask(ctx, h.SourceID)
		if err != nil {
			return ids, eris.Wrapf(err, "scheduler: check open task for %s", h.SourceID)
		}
		if open {
			continue
		}
		target := maxReviews
		if h.ReviewCount != nil && *h.ReviewCount < target {
			target = *h.ReviewCount
		}
		t := &model.Task{
			ID:          uuid.NewString(),
			Kind:        model.TaskReviewFetch,
			HotelID:     h.SourceID,
			Priority:    ReviewPriority(h),
			Status:      model.TaskPending,
			CreatedAt:   s.now(),
			ItemsTarget: target,
		}
		if err := s.store.CreateTask(ctx, t); err != nil {
			return ids, eris.Wrapf(err, "scheduler: create review task for %s", h.SourceID)
		}
		ids = append(ids, t.ID)
	}
	s.log.Info("review tasks created",
		zap.Int("eligible", len(hotels)),
		zap.Int("created", len(ids)))
	return ids, nil
}

// CreateReviewTask enqueues a review task for one specific hotel, bypassing
// the threshold. Errors when the hotel is unknown or already has an open
// task.
func (s *Scheduler) CreateReviewTask(ctx context.Context, hotelID string, maxReviews int) (string, error) {
	h, err := s.store.GetHotel(ctx, hotelID)
	if err != nil {
		return "", eris.Wrapf(err, "scheduler: load hotel %s", hotelID)
	}
	if h == nil {
		return "", eris.Errorf("scheduler: hotel %s not found", hotelID)
	}
	open, err := s.store.HasOpenReviewTask(ctx, hotelID)
	if err != nil {
		return "", eris.Wrapf(err, "scheduler: check open task for %s", hotelID)
	}
	if open {
		return "", eris.Errorf("scheduler: hotel %s already has an open review task", hotelID)
	}
	target := maxReviews
	if h.ReviewCount != nil && *h.ReviewCount < target {
		target = *h.ReviewCount
	}
	t := &model.Task{
		ID:          uuid.NewString(),
		Kind:        model.TaskReviewFetch,
		HotelID:     hotelID,
		Priority:    ReviewPriority(h),
		Status:      model.TaskPending,
		CreatedAt:   s.now(),
		ItemsTarget: target,
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return "", eris.Wrapf(err, "scheduler: create review task for %s", hotelID)
	}
	return t.ID, nil
}

// NextBatch returns up to limit runnable tasks ordered by priority desc,
// created_at asc. An empty kind selects across both kinds.
func (s *Scheduler) NextBatch(ctx context.Context, kind model.TaskKind, limit int) ([]model.Task, error) {
	tasks, err := s.store.NextPending(ctx, kind, limit)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: next batch")
	}
	return tasks, nil
}

// Start moves a pending task to InProgress.
func (s *Scheduler) Start(ctx context.Context, t *model.Task) error {
	if t.Status != model.TaskPending {
		return eris.Errorf("scheduler: cannot start task %s in status %s", t.ID, t.Status)
	}
	now := s.now()
	t.Status = model.TaskInProgress
	t.StartedAt = &now
	return s.transition(ctx, t, "started")
}

// Complete finishes a task successfully, recording how many items it
// actually produced.
func (s *Scheduler) Complete(ctx context.Context, t *model.Task, itemsCrawled int) error {
	if t.Status != model.TaskInProgress {
		return eris.Errorf("scheduler: cannot complete task %s in status %s", t.ID, t.Status)
	}
	now := s.now()
	t.Status = model.TaskCompleted
	t.CompletedAt = &now
	t.ItemsCrawled = itemsCrawled
	t.ErrorReason = ""
	return s.transition(ctx, t, "completed")
}

// Fail books one failed attempt. Below the retry cap the task goes back to
// Pending with the count incremented; at the cap it lands in Failed, where
// only ResetFailed can revive it.
func (s *Scheduler) Fail(ctx context.Context, t *model.Task, reason string) error {
	if t.Status != model.TaskInProgress {
		return eris.Errorf("scheduler: cannot fail task %s in status %s", t.ID, t.Status)
	}
	t.RetryCount++
	t.ErrorReason = reason
	if t.RetryCount >= model.MaxTaskRetries {
		now := s.now()
		t.Status = model.TaskFailed
		t.CompletedAt = &now
		return s.transition(ctx, t, "failed permanently: "+reason)
	}
	t.Status = model.TaskPending
	t.StartedAt = nil
	return s.transition(ctx, t, "failed, requeued: "+reason)
}

// Skip ends a task that produced no result and should not be retried, such
// as a hotel below the review threshold.
func (s *Scheduler) Skip(ctx context.Context, t *model.Task, reason string) error {
	if t.Status != model.TaskInProgress {
		return eris.Errorf("scheduler: cannot skip task %s in status %s", t.ID, t.Status)
	}
	now := s.now()
	t.Status = model.TaskSkipped
	t.CompletedAt = &now
	t.ErrorReason = reason
	return s.transition(ctx, t, "skipped: "+reason)
}

// ResetFailed reopens every Failed task to Pending with a cleared retry
// count. Operator-invoked recovery, never automatic.
func (s *Scheduler) ResetFailed(ctx context.Context) (int, error) {
	n, err := s.store.ResetFailed(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: reset failed")
	}
	s.log.Info("failed tasks reset", zap.Int("count", n))
	return n, nil
}

// Stats reports queue counts by status and kind.
func (s *Scheduler) Stats(ctx context.Context) (*store.TaskStats, error) {
	stats, err := s.store.TaskStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: stats")
	}
	return stats, nil
}

func (s *Scheduler) transition(ctx context.Context, t *model.Task, reason string) error {
	if err := s.store.SaveTask(ctx, t); err != nil {
		return eris.Wrapf(err, "scheduler: save task %s", t.ID)
	}
	level := "INFO"
	if t.Status == model.TaskFailed {
		level = "ERROR"
	}
	if err := s.store.AppendTaskLog(ctx, t.ID, level, reason); err != nil {
		return eris.Wrapf(err, "scheduler: log task %s", t.ID)
	}
	s.log.Debug("task transition",
		zap.String("task_id", t.ID),
		zap.String("kind", string(t.Kind)),
		zap.String("status", string(t.Status)),
		zap.Int("retry_count", t.RetryCount),
		zap.String("reason", reason))
	return nil
}
