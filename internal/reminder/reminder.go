// Package reminder periodically scans for tasks approaching their deadline
// and pushes one notification batch per due task.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nesttask/nesttask-push/internal/metrics"
	"github.com/nesttask/nesttask-push/internal/push"
	"github.com/nesttask/nesttask-push/internal/store"
)

// Deliverer runs one push batch.
type Deliverer interface {
	Deliver(ctx context.Context, n push.Notification) (push.BatchResult, error)
}

// TaskStore is the slice of the task table the worker reads and stamps.
type TaskStore interface {
	ListDueTasks(ctx context.Context, now time.Time, window time.Duration) ([]store.Task, error)
	MarkTaskReminded(ctx context.Context, taskID string, at time.Time) error
}

type Scheduler struct {
	Deliverer Deliverer
	Tasks     TaskStore
	Interval  time.Duration
	Window    time.Duration
	Logger    *slog.Logger

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

// Run scans immediately, then on every tick until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Deliverer == nil || s.Tasks == nil || s.Interval <= 0 {
		return
	}

	if err := s.RunOnce(ctx); err != nil {
		s.logger().Error("initial reminder scan failed", "err", err)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger().Error("reminder scan failed", "err", err)
			}
		}
	}
}

// RunOnce delivers a reminder batch for every task due inside the window that
// has not been reminded yet, and stamps each task so it is reminded at most
// once. A failed delivery leaves the task unstamped for the next scan.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now()

	due, err := s.Tasks.ListDueTasks(ctx, now, s.Window)
	if err != nil {
		metrics.ReminderRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("list due tasks: %w", err)
	}

	var errs []error
	for _, task := range due {
		// Deadlines render in UTC; the server's local zone is meaningless in
		// a container and clients localize on display.
		n := push.Notification{
			TaskID: task.ID,
			Title:  "Task deadline approaching",
			Body:   fmt.Sprintf("%q is due %s", task.Title, task.DueAt.UTC().Format("Jan 2 at 15:04 UTC")),
		}
		if task.SectionID != nil {
			n.SectionID = *task.SectionID
		}

		result, err := s.Deliverer.Deliver(ctx, n)
		if err != nil {
			s.logger().Error("reminder delivery failed", "task_id", task.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		s.logger().Info("reminder delivered",
			"task_id", task.ID, "sent", result.Sent, "failed", result.Failed, "total", result.Total)

		if err := s.Tasks.MarkTaskReminded(ctx, task.ID, now); err != nil {
			s.logger().Error("failed to mark task reminded", "task_id", task.ID, "err", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		metrics.ReminderRunsTotal.WithLabelValues("error").Inc()
		return errors.Join(errs...)
	}
	metrics.ReminderRunsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
