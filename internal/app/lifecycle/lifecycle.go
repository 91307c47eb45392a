// Package lifecycle is the top-level task state machine. It ties the key,
// accounting, voting, reward, and timeline components together: lock tasks
// flow pending → active → (voting ⇄ active) → voting_passed → completed,
// board tasks open → taken → submitted → completed|failed.
package lifecycle

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/keyring"
	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/app/reward"
	"github.com/lockup-labs/lockup/internal/app/voting"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Service orchestrates task state transitions.
type Service struct {
	db   *sqlite.DB
	now  func() time.Time
	rand func() float64
}

// NewService creates a lifecycle service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now, rand: rand.Float64}
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

// CreateParams describes a new task. Exactly one of the lock or board field
// groups applies, selected by Type.
type CreateParams struct {
	UserID      string
	Type        domain.TaskType
	Title       string
	Description string

	// Lock fields
	DurationType  domain.DurationType
	DurationValue int // minutes
	DurationMax   int // minutes, random duration only
	Difficulty    domain.Difficulty
	UnlockType    domain.UnlockType
	StrictMode    bool
	Pending       bool // create without starting

	// Vote configuration
	VoteThreshold      int
	VoteAgreementRatio float64
	VotingDuration     int // minutes

	// Board fields
	Reward          int64
	Deadline        time.Time
	MaxDuration     int // hours from take to deadline
	MaxParticipants int
}

// Create makes a new task. Lock tasks start immediately unless Pending,
// issuing their key; board tasks open with the reward escrowed from the
// publisher up front.
func (s *Service) Create(p CreateParams) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		now := s.now()
		task = &domain.LockTask{
			ID:          uuid.NewString(),
			UserID:      p.UserID,
			Type:        p.Type,
			Title:       p.Title,
			Description: p.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		switch p.Type {
		case domain.TaskLock:
			task.Status = domain.StatusPending
			task.DurationType = p.DurationType
			if task.DurationType == "" {
				task.DurationType = domain.DurationFixed
			}
			task.DurationValue = p.DurationValue
			task.DurationMax = p.DurationMax
			task.Difficulty = p.Difficulty
			if task.Difficulty == "" {
				task.Difficulty = domain.DifficultyNormal
			}
			task.UnlockType = p.UnlockType
			if task.UnlockType == "" {
				task.UnlockType = domain.UnlockTime
			}
			task.StrictMode = p.StrictMode
			task.VoteThreshold = p.VoteThreshold
			task.VoteAgreementRatio = p.VoteAgreementRatio
			task.VotingDuration = p.VotingDuration
		case domain.TaskBoard:
			task.Status = domain.StatusOpen
			task.Reward = p.Reward
			task.Deadline = p.Deadline
			task.MaxDuration = p.MaxDuration
			task.MaxParticipants = p.MaxParticipants
			// Escrow the bounty so an insolvent publisher cannot post.
			pay := s.coins(tx)
			if _, err := pay.DeductCoins(p.UserID, p.Reward, domain.TxBoardReward, task.ID, "board task escrow"); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown task type %q", p.Type)
		}

		if err := tx.InsertTask(*task); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		err := tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Type:      domain.EventTaskCreated,
			UserID:    p.UserID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		if p.Type == domain.TaskLock && !p.Pending {
			return s.start(tx, task, p.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.TasksCreated.WithLabelValues(string(p.Type)).Inc()
	return task, nil
}

// Start begins a pending lock task's countdown. Owner only.
func (s *Service) Start(taskID, actorID string) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != actorID {
			return domain.ErrNotOwner
		}
		if task.Type != domain.TaskLock {
			return domain.ErrNotLockTask
		}
		if task.Status != domain.StatusPending {
			return domain.ErrWrongStatus
		}
		return s.start(tx, task, actorID)
	})
	return task, err
}

// start activates the task, picks its duration, and issues the key.
// Runs inside the caller's transaction.
func (s *Service) start(tx *sqlite.DB, task *domain.LockTask, actorID string) error {
	now := s.now()
	minutes := task.DurationValue
	if task.DurationType == domain.DurationRandom && task.DurationMax > task.DurationValue {
		spread := task.DurationMax - task.DurationValue
		minutes = task.DurationValue + int(s.rand()*float64(spread+1))
		if minutes > task.DurationMax {
			minutes = task.DurationMax
		}
	}

	task.Status = domain.StatusActive
	task.StartTime = now
	task.EndTime = now.Add(time.Duration(minutes) * time.Minute)
	task.UpdatedAt = now
	if err := tx.UpdateTask(*task); err != nil {
		return err
	}

	if _, err := keyring.NewService(tx).WithClock(s.now).Issue(task); err != nil {
		return fmt.Errorf("issue key: %w", err)
	}

	metrics.TasksRunning.Inc()
	return tx.InsertTimelineEvent(domain.TimelineEvent{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		Type:        domain.EventTaskStarted,
		UserID:      actorID,
		NewEndTime:  task.EndTime,
		Description: fmt.Sprintf("countdown %d min", minutes),
		CreatedAt:   now,
	})
}

// Complete finishes a lock task. At the instant of the call the task must
// be unfrozen, its countdown lapsed, its vote gate passed when vote-gated,
// and the caller must hold the key. On success the key is destroyed,
// outstanding hours are flushed, and the completion bonus is paid.
func (s *Service) Complete(taskID, actorID string) (*domain.LockTask, error) {
	return s.complete(taskID, actorID, false)
}

// UseUniversalKey completes a lock task by burning one of the caller's
// universal-key items instead of requiring the task key. The remaining
// completion guards still apply, and the reward logic is identical.
func (s *Service) UseUniversalKey(taskID, actorID string) (*domain.LockTask, error) {
	return s.complete(taskID, actorID, true)
}

func (s *Service) complete(taskID, actorID string, universal bool) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Type != domain.TaskLock {
			return domain.ErrNotLockTask
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}
		if task.IsFrozen {
			return domain.ErrTaskFrozen
		}

		now := s.now()
		if !task.EndTime.IsZero() && now.Before(task.EndTime) {
			return domain.ErrCountdownRunning
		}

		if task.UnlockType == domain.UnlockVote {
			if err := voting.NewService(tx).WithClock(s.now).VerifyPassed(task); err != nil {
				return err
			}
		}

		keys := keyring.NewService(tx).WithClock(s.now)
		if universal {
			item, err := tx.AvailableItemOfType(actorID, "universal_key")
			if err != nil {
				return err
			}
			if item == nil {
				return domain.ErrKeyUnusable
			}
			if err := tx.MarkItemUsed(item.ID, now); err != nil {
				return fmt.Errorf("burn universal key: %w", err)
			}
		} else {
			holder, err := keys.CurrentHolder(taskID)
			if err != nil {
				return err
			}
			if holder != actorID {
				return domain.ErrNotKeyHolder
			}
		}

		if _, err := keys.Destroy(taskID, "task completed", actorID); err != nil {
			return fmt.Errorf("destroy keys: %w", err)
		}

		pay := reward.NewService(tx).WithClock(s.now).WithRand(s.rand)
		if _, err := pay.Flush(taskID); err != nil {
			return fmt.Errorf("flush hourly rewards: %w", err)
		}
		// Re-read: the flush moved the reward watermark.
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		bonus, err := pay.CompletionBonus(task)
		if err != nil {
			return err
		}

		task.Status = domain.StatusCompleted
		task.CompletedAt = now
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		err = tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Type:      domain.EventTaskCompleted,
			UserID:    actorID,
			Metadata:  map[string]string{"bonus": strconv.FormatInt(bonus, 10)},
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		mail := notify.NewService(tx).WithClock(s.now)
		if err := mail.Notify(domain.Notification{
			RecipientID: task.UserID,
			Type:        "task_completed",
			RelatedType: "task",
			RelatedID:   taskID,
		}); err != nil {
			log.Printf("lifecycle: notify completion of %s: %v", taskID, err)
		}

		metrics.TasksCompleted.WithLabelValues(string(domain.TaskLock)).Inc()
		metrics.TasksRunning.Dec()
		return nil
	})
	return task, err
}

// Stop fails a running lock task on the owner's request. Keys are
// destroyed, no rewards are flushed and no bonus is paid.
func (s *Service) Stop(taskID, actorID string) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != actorID {
			return domain.ErrNotOwner
		}
		if task.Type != domain.TaskLock {
			return domain.ErrNotLockTask
		}
		if !task.IsRunning() {
			return domain.ErrWrongStatus
		}

		now := s.now()
		keys := keyring.NewService(tx).WithClock(s.now)
		if _, err := keys.Destroy(taskID, "task stopped", actorID); err != nil {
			return fmt.Errorf("destroy keys: %w", err)
		}

		task.Status = domain.StatusFailed
		task.CompletedAt = now
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		err = tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Type:      domain.EventTaskStopped,
			UserID:    actorID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		metrics.TasksFailed.WithLabelValues(string(domain.TaskLock), "stopped").Inc()
		metrics.TasksRunning.Dec()
		return nil
	})
	return task, err
}

// Get returns one task.
func (s *Service) Get(taskID string) (*domain.LockTask, error) {
	return s.db.GetTask(taskID)
}

// List returns tasks matching the filter.
func (s *Service) List(f sqlite.TaskFilter) ([]domain.LockTask, error) {
	return s.db.ListTasks(f)
}

func (s *Service) coins(db *sqlite.DB) *ledger.Service {
	return ledger.NewService(db).WithClock(s.now)
}
