// Package reward disburses per-hour coin rewards to lock task owners,
// exactly once per hour number. The watermark on the task plus the
// UNIQUE(task_id, hour_count) reward rows make every hour a
// single-disbursement event no matter how often the engine runs.
package reward

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/effects"
	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Service runs the hourly reward sweep and the completion-time flush.
type Service struct {
	db   *sqlite.DB
	now  func() time.Time
	rand func() float64 // uniform [0,1), drives the lucky-charm roll
}

// NewService creates a reward service.
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

// ProcessHourly sweeps all running lock tasks and disburses any hours not
// yet paid. Each task is processed in its own transaction; one failure does
// not block the rest. Returns the number of hours disbursed.
func (s *Service) ProcessHourly() (int, error) {
	tasks, err := s.db.RunningLockTasks()
	if err != nil {
		return 0, fmt.Errorf("list running tasks: %w", err)
	}

	total := 0
	for i := range tasks {
		if tasks[i].IsFrozen {
			continue
		}
		n, err := s.processTask(tasks[i].ID, false)
		if err != nil {
			log.Printf("reward: task %s: %v", tasks[i].ID, err)
			continue
		}
		total += n
	}
	return total, nil
}

// Flush disburses any outstanding hours for one task synchronously, used at
// completion and failure time. Unlike the sweep it ignores the burst guard
// and processes frozen tasks, whose open freeze interval the elapsed
// formula already excludes.
func (s *Service) Flush(taskID string) (int, error) {
	return s.processTask(taskID, true)
}

// processTask pays hours (total_hourly_rewards, elapsed] for one task.
func (s *Service) processTask(taskID string, flush bool) (int, error) {
	paid := 0
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Type != domain.TaskLock {
			return nil
		}

		now := s.now()
		elapsed := task.ElapsedHours(now)
		toGive := elapsed - task.TotalHourlyRewards
		if toGive <= 0 {
			return nil
		}
		// Burst guard: several schedulers firing close together must not
		// re-process. The watermark already prevents double pay; this
		// avoids redundant work.
		if !flush && !task.LastHourlyRewardAt.IsZero() && now.Sub(task.LastHourlyRewardAt) < time.Hour {
			return nil
		}

		coins := ledger.NewService(tx).WithClock(s.now)
		mail := notify.NewService(tx).WithClock(s.now)
		boost, err := effects.LuckyBoost(effects.NewService(tx), task.UserID, now)
		if err != nil {
			return fmt.Errorf("lucky boost: %w", err)
		}
		keyBonus, err := tx.CountForeignKeysHeld(task.UserID)
		if err != nil {
			return fmt.Errorf("count held keys: %w", err)
		}

		// Multi-hour catch-up after a gap pays each missing hour number.
		for hour := task.TotalHourlyRewards + 1; hour <= elapsed; hour++ {
			base := 0
			if hour%2 == 1 {
				base = 1
			}
			lucky := 0
			if boost > 0 && s.rand() < boost {
				lucky = 1
			}
			amount := int64(base + keyBonus + lucky)

			if amount > 0 {
				_, err := coins.AddCoins(task.UserID, amount, domain.TxHourlyReward, task.ID,
					fmt.Sprintf("hourly reward, hour %d", hour))
				if err != nil {
					return fmt.Errorf("pay hour %d: %w", hour, err)
				}
			}

			err = tx.InsertHourlyReward(domain.HourlyReward{
				ID:        uuid.NewString(),
				TaskID:    task.ID,
				UserID:    task.UserID,
				Amount:    amount,
				HourCount: hour,
				CreatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("record hour %d: %w", hour, err)
			}

			err = tx.InsertTimelineEvent(domain.TimelineEvent{
				ID:     uuid.NewString(),
				TaskID: task.ID,
				Type:   domain.EventHourlyReward,
				Metadata: map[string]string{
					"hour":      strconv.Itoa(hour),
					"amount":    strconv.FormatInt(amount, 10),
					"key_bonus": strconv.Itoa(keyBonus),
				},
				Description: fmt.Sprintf("hour %d: %d coins", hour, amount),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}

			// Heartbeat throttle: hour 1, every 3rd (key bonus), every
			// 6th (base). Pure UX, not correctness.
			if hour == 1 || hour%3 == 0 {
				if err := mail.Notify(domain.Notification{
					RecipientID: task.UserID,
					Type:        "hourly_reward",
					Message:     fmt.Sprintf("Hour %d locked: +%d coins.", hour, amount),
					RelatedType: "task",
					RelatedID:   task.ID,
					Priority:    domain.PriorityVeryLow,
				}); err != nil {
					log.Printf("reward: notify task %s hour %d: %v", task.ID, hour, err)
				}
			}

			metrics.HourlyRewardsPaid.Inc()
			paid++
		}

		task.TotalHourlyRewards = elapsed
		task.LastHourlyRewardAt = now
		task.UpdatedAt = now
		return tx.UpdateTask(*task)
	})
	return paid, err
}

// CompletionBonus pays the one-time difficulty-scaled bonus, only when at
// least one full hour elapsed. Distinct from the hourly stream and never
// repeated: callers invoke it exactly once, at the completed transition.
func (s *Service) CompletionBonus(task *domain.LockTask) (int64, error) {
	now := s.now()
	if task.ElapsedActive(now) < time.Hour {
		return 0, nil
	}
	bonus := task.CompletionBonus()
	coins := ledger.NewService(s.db).WithClock(s.now)
	_, err := coins.AddCoins(task.UserID, bonus, domain.TxCompletionBonus, task.ID, "completion bonus")
	if err != nil {
		return 0, fmt.Errorf("pay completion bonus: %w", err)
	}
	return bonus, nil
}
