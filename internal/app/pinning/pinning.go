// Package pinning implements the bounded penalty queue: at most three
// users hold an active pinned slot at a time, the rest wait in strict FIFO
// order and are promoted as slots expire. Records are deactivated on
// expiry and kept as history, never deleted.
package pinning

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// MaxActivePositions bounds the concurrently occupied slots.
const MaxActivePositions = 3

// Service manages pin admission and the queue rebalance sweep.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a pinning service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddToQueue pins a task's owner. The payer must currently hold the task's
// key and must not already have a live pin against the same owner; the coin
// cost is deducted up front. The new record enters queued and the rebalance
// runs immediately, so it occupies a slot at once when one is free.
func (s *Service) AddToQueue(taskID, keyHolderID string, coins int64, duration time.Duration) (*domain.PinnedUser, error) {
	var pin *domain.PinnedUser
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}

		live, err := tx.LiveKeyItems(taskID)
		if err != nil {
			return err
		}
		if len(live) == 0 || live[0].OwnerID != keyHolderID {
			return domain.ErrNotKeyHolder
		}

		existing, err := tx.ActivePinFor(taskID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyPinned
		}

		pay := ledger.NewService(tx).WithClock(s.now)
		if _, err := pay.DeductCoins(keyHolderID, coins, domain.TxPinPurchase, taskID, "pin task owner"); err != nil {
			return err
		}

		now := s.now()
		pin = &domain.PinnedUser{
			ID:              uuid.NewString(),
			TaskID:          taskID,
			PinnedUser:      task.UserID,
			KeyHolder:       keyHolderID,
			CoinsSpent:      coins,
			DurationMinutes: int(duration.Minutes()),
			IsActive:        true,
			CreatedAt:       now,
			ExpiresAt:       now.Add(duration),
		}
		if err := tx.InsertPin(*pin); err != nil {
			return fmt.Errorf("insert pin: %w", err)
		}

		err = tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:          uuid.NewString(),
			TaskID:      taskID,
			Type:        domain.EventUserPinned,
			UserID:      keyHolderID,
			Description: fmt.Sprintf("pinned for %d min", pin.DurationMinutes),
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}

		mail := notify.NewService(tx).WithClock(s.now)
		if err := mail.Notify(domain.Notification{
			RecipientID: task.UserID,
			ActorID:     keyHolderID,
			Type:        "user_pinned",
			RelatedType: "task",
			RelatedID:   taskID,
		}); err != nil {
			log.Printf("pinning: notify pinned user %s: %v", task.UserID, err)
		}

		_, err = s.rebalance(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	// Re-read so the caller sees the assigned position, if any.
	return s.db.GetPin(pin.ID)
}

// UpdateQueue runs one rebalance sweep in its own transaction. Safe to call
// redundantly.
func (s *Service) UpdateQueue() (*domain.PinQueueUpdate, error) {
	var upd *domain.PinQueueUpdate
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		upd, err = s.rebalance(tx)
		return err
	})
	return upd, err
}

// rebalance expires lapsed records, then reassigns slots 1..3 to the
// surviving records strictly in creation order.
func (s *Service) rebalance(tx *sqlite.DB) (*domain.PinQueueUpdate, error) {
	now := s.now()
	upd := &domain.PinQueueUpdate{}

	pins, err := tx.ActivePins()
	if err != nil {
		return nil, fmt.Errorf("list active pins: %w", err)
	}

	var survivors []domain.PinnedUser
	for _, p := range pins {
		if !p.ExpiresAt.After(now) {
			if err := tx.UpdatePinSlot(p.ID, 0, false, p.ActivatedAt); err != nil {
				return nil, fmt.Errorf("expire pin %s: %w", p.ID, err)
			}
			err := tx.InsertTimelineEvent(domain.TimelineEvent{
				ID:        uuid.NewString(),
				TaskID:    p.TaskID,
				Type:      domain.EventUserUnpinned,
				CreatedAt: now,
			})
			if err != nil {
				return nil, err
			}
			upd.Expired++
			continue
		}
		survivors = append(survivors, p)
	}

	for i, p := range survivors {
		pos := 0
		if i < MaxActivePositions {
			pos = i + 1
		}
		if pos == p.Position {
			continue
		}
		activated := p.ActivatedAt
		if pos > 0 && p.Position == 0 {
			activated = now
			upd.Promoted++
		}
		if err := tx.UpdatePinSlot(p.ID, pos, true, activated); err != nil {
			return nil, fmt.Errorf("assign pin slot: %w", err)
		}
	}

	if n := len(survivors); n > MaxActivePositions {
		upd.ActivePositions = MaxActivePositions
		upd.Queued = n - MaxActivePositions
	} else {
		upd.ActivePositions = n
	}

	metrics.PinsActive.Set(float64(upd.ActivePositions))
	metrics.PinsQueued.Set(float64(upd.Queued))
	metrics.PinsExpired.Add(float64(upd.Expired))
	return upd, nil
}

// IsUserPinned reports whether a user currently occupies an active slot.
func (s *Service) IsUserPinned(userID string) (bool, error) {
	return s.db.IsUserPinned(userID)
}

// Queue returns all live records in slot-then-FIFO order.
func (s *Service) Queue() ([]domain.PinnedUser, error) {
	return s.db.ActivePins()
}
