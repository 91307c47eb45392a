// Package accounting maintains the single authoritative remaining time for
// a lock task across its three regimes: running, frozen, and finished.
// Every countdown change appends a timeline event carrying the previous and
// new end time, in the same transaction as the change itself.
package accounting

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Fee defaults, in coins. Config may override through the Service fields.
const (
	DefaultFreezeFee   int64 = 10
	DefaultUnfreezeFee int64 = 5
)

// OvertimeCooldown limits how often one user may add overtime against the
// same task owner.
const OvertimeCooldown = 2 * time.Hour

// PinnedOvertimeMultiplier amplifies overtime against a pinned owner.
const PinnedOvertimeMultiplier = 10

// Service performs time adjustments and freeze/unfreeze transitions.
type Service struct {
	db   *sqlite.DB
	now  func() time.Time
	rand func() float64 // uniform [0,1), injectable for tests

	FreezeFee   int64
	UnfreezeFee int64
}

// NewService creates an accounting service with default fees.
func NewService(db *sqlite.DB) *Service {
	return &Service{
		db:          db,
		now:         time.Now,
		rand:        rand.Float64,
		FreezeFee:   DefaultFreezeFee,
		UnfreezeFee: DefaultUnfreezeFee,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithRand overrides the randomness source, for tests.
func (s *Service) WithRand(r func() float64) *Service {
	s.rand = r
	return s
}

// AddTime extends a running task's countdown by the given minutes. Frozen
// tasks get their frozen end time extended instead, so the pause preserves
// the penalty. A lapsed strict-mode countdown restarts from now rather than
// extending from the stale end time; non-strict tasks always extend from
// the recorded end time.
func (s *Service) AddTime(taskID string, minutes int, actorID string, event domain.EventType, description string) error {
	if minutes <= 0 {
		return domain.ErrNonPositiveAmount
	}
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}
		return s.applyTimeChange(tx, task, minutes, actorID, event, description)
	})
}

// SubtractTime shortens the countdown, clamped so the resulting end time is
// never in the past: not before now when running, not before frozen_at when
// frozen.
func (s *Service) SubtractTime(taskID string, minutes int, actorID string, event domain.EventType, description string) error {
	if minutes <= 0 {
		return domain.ErrNonPositiveAmount
	}
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}
		return s.applyTimeChange(tx, task, -minutes, actorID, event, description)
	})
}

// applyTimeChange moves the countdown and appends the explaining event.
// Runs inside the caller's transaction.
func (s *Service) applyTimeChange(tx *sqlite.DB, task *domain.LockTask, minutes int, actorID string, event domain.EventType, description string) error {
	now := s.now()
	delta := time.Duration(minutes) * time.Minute

	var prev, next time.Time
	if task.IsFrozen {
		prev = task.FrozenEndTime
		next = prev.Add(delta)
		if next.Before(task.FrozenAt) {
			next = task.FrozenAt
		}
		task.FrozenEndTime = next
	} else {
		prev = task.EndTime
		base := prev
		if minutes > 0 && task.StrictMode && task.CountdownLapsed(now) {
			base = now
		}
		next = base.Add(delta)
		// Only subtraction clamps: additions to a long-lapsed non-strict
		// task may legitimately land in the past.
		if minutes < 0 && next.Before(now) {
			next = now
		}
		task.EndTime = next
	}

	task.UpdatedAt = now
	if err := tx.UpdateTask(*task); err != nil {
		return err
	}

	err := tx.InsertTimelineEvent(domain.TimelineEvent{
		ID:                uuid.NewString(),
		TaskID:            task.ID,
		Type:              event,
		UserID:            actorID,
		TimeChangeMinutes: minutes,
		PreviousEndTime:   prev,
		NewEndTime:        next,
		Description:       description,
		CreatedAt:         now,
	})
	if err != nil {
		return err
	}

	metrics.TimeAdjustments.WithLabelValues(string(event)).Inc()
	return nil
}

// Freeze pauses a task's countdown. Valid only from active and not already
// frozen; costs the freeze fee.
func (s *Service) Freeze(taskID, actorID string) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.IsFrozen {
			return domain.ErrTaskFrozen
		}
		if task.Status != domain.StatusActive {
			return domain.ErrWrongStatus
		}

		coins := ledger.NewService(tx).WithClock(s.now)
		if _, err := coins.DeductCoins(actorID, s.FreezeFee, domain.TxFreezeFee, task.ID, "freeze task"); err != nil {
			return err
		}

		now := s.now()
		task.IsFrozen = true
		task.FrozenAt = now
		task.FrozenEndTime = task.EndTime
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Type:      domain.EventTaskFrozen,
			UserID:    actorID,
			CreatedAt: now,
		})
	})
}

// Unfreeze resumes a frozen task: the remaining time at freeze is carried
// forward from now, and the frozen interval joins total_frozen_duration so
// elapsed-time accounting never counts it.
func (s *Service) Unfreeze(taskID, actorID string) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if !task.IsFrozen {
			return domain.ErrTaskNotFrozen
		}

		coins := ledger.NewService(tx).WithClock(s.now)
		if _, err := coins.DeductCoins(actorID, s.UnfreezeFee, domain.TxUnfreezeFee, task.ID, "unfreeze task"); err != nil {
			return err
		}

		now := s.now()
		remaining := task.FrozenEndTime.Sub(task.FrozenAt)
		if remaining < 0 {
			remaining = 0
		}

		prev := task.EndTime
		task.EndTime = now.Add(remaining)
		task.TotalFrozenDur += now.Sub(task.FrozenAt)
		task.IsFrozen = false
		task.FrozenAt = time.Time{}
		task.FrozenEndTime = time.Time{}
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:              uuid.NewString(),
			TaskID:          task.ID,
			Type:            domain.EventTaskUnfrozen,
			UserID:          actorID,
			PreviousEndTime: prev,
			NewEndTime:      task.EndTime,
			CreatedAt:       now,
		})
	})
}

// PeerOvertime lets another user add a randomized, difficulty-scaled
// penalty to a running task. Scaled 50%-150% of the difficulty base,
// multiplied by 10 while the owner is pinned, rate-limited to one
// application per publisher per owner per cooldown window.
func (s *Service) PeerOvertime(taskID, publisherID string) (int, error) {
	var applied int
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID == publisherID {
			return domain.ErrOwnTaskOvertime
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}

		now := s.now()
		recent, err := tx.RecentOvertimeExists(task.UserID, publisherID, now.Add(-OvertimeCooldown))
		if err != nil {
			return fmt.Errorf("check overtime cooldown: %w", err)
		}
		if recent {
			return domain.ErrOvertimeCooldown
		}

		base := task.OvertimeBaseMinutes()
		minutes := int(float64(base) * (0.5 + s.rand()))
		if minutes < 1 {
			minutes = 1
		}
		pinned, err := tx.IsUserPinned(task.UserID)
		if err != nil {
			return fmt.Errorf("check pinned: %w", err)
		}
		if pinned {
			minutes *= PinnedOvertimeMultiplier
		}

		err = s.applyTimeChange(tx, task, minutes, publisherID, domain.EventOvertimeAdded,
			fmt.Sprintf("overtime +%d min", minutes))
		if err != nil {
			return err
		}

		applied = minutes
		return tx.InsertOvertimeAction(domain.OvertimeAction{
			ID:              uuid.NewString(),
			TaskID:          task.ID,
			UserID:          task.UserID,
			PublisherID:     publisherID,
			OvertimeMinutes: minutes,
			CreatedAt:       now,
		})
	})
	return applied, err
}

// ManualAdjust lets the task's current key holder move the countdown by a
// signed minute count.
func (s *Service) ManualAdjust(taskID, actorID string, minutes int) error {
	if minutes == 0 {
		return domain.ErrNonPositiveAmount
	}
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}

		live, err := tx.LiveKeyItems(taskID)
		if err != nil {
			return err
		}
		if len(live) == 0 || live[0].OwnerID != actorID {
			return domain.ErrNotKeyHolder
		}

		return s.applyTimeChange(tx, task, minutes, actorID, domain.EventManualAdjustment,
			fmt.Sprintf("manual adjustment %+d min", minutes))
	})
}
