// Package timeline reads a task's append-only event log and implements the
// time rollback: restoring the countdown to what it was up to 30 minutes
// ago by replaying time-affecting events backwards.
package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// RollbackWindow bounds how far back the time restore may reach.
const RollbackWindow = 30 * time.Minute

// Service reads timeline events and performs rollbacks.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a timeline service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Events returns a task's events, newest first.
func (s *Service) Events(taskID string, limit int) ([]domain.TimelineEvent, error) {
	return s.db.TimelineEvents(taskID, limit)
}

// Rollback restores the task's end time to its value before the
// time-affecting events of the last 30 minutes, newest first. The reverted
// events stay in the log; the restore appends its own event and records a
// rollback row naming what it undid.
func (s *Service) Rollback(taskID, actorID string) (*domain.TimeRollback, error) {
	var rb *domain.TimeRollback
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != actorID {
			return domain.ErrNotOwner
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}
		if task.IsFrozen {
			return domain.ErrTaskFrozen
		}

		now := s.now()
		cutoff := now.Add(-RollbackWindow)
		events, err := tx.TimeEventsSince(taskID, cutoff)
		if err != nil {
			return fmt.Errorf("load rollback window: %w", err)
		}
		if len(events) == 0 {
			return domain.ErrNothingToRollback
		}

		// Events come newest first; the oldest one's previous_end_time is
		// the state at the start of the window.
		oldest := events[len(events)-1]
		restored := oldest.PreviousEndTime
		if restored.IsZero() {
			return domain.ErrNothingToRollback
		}

		original := task.EndTime
		reverted := make([]string, len(events))
		for i, e := range events {
			reverted[i] = e.ID
		}

		task.EndTime = restored
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		rb = &domain.TimeRollback{
			ID:               uuid.NewString(),
			TaskID:           taskID,
			UserID:           actorID,
			RollbackStart:    cutoff,
			RollbackEnd:      now,
			OriginalEndTime:  original,
			RestoredEndTime:  restored,
			RevertedEventIDs: reverted,
			CreatedAt:        now,
		}
		if err := tx.InsertRollback(*rb); err != nil {
			return fmt.Errorf("record rollback: %w", err)
		}

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:              uuid.NewString(),
			TaskID:          taskID,
			Type:            domain.EventTimeRollback,
			UserID:          actorID,
			PreviousEndTime: original,
			NewEndTime:      restored,
			Description:     fmt.Sprintf("restored time state, %d events reverted", len(events)),
			CreatedAt:       now,
		})
	})
	return rb, err
}
