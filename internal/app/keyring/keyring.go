// Package keyring manages the per-task key capability. Each lock task gets
// exactly one key item at start; whoever holds the item may complete the
// task. Holder transfer is the store app's generic item-ownership change,
// which this component only reads.
package keyring

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Service manages key issuance, holder lookup, and destruction.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a keyring service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue creates the task's key item bound to the owner. Fails with
// ErrKeyExists if the task already has a live key. Vote-unlock tasks also
// get the legacy one-to-one key record, kept in sync for compatibility.
func (s *Service) Issue(task *domain.LockTask) (*domain.Item, error) {
	var item *domain.Item
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		live, err := tx.LiveKeyItems(task.ID)
		if err != nil {
			return fmt.Errorf("check existing keys: %w", err)
		}
		if len(live) > 0 {
			return domain.ErrKeyExists
		}

		now := s.now()
		item = &domain.Item{
			ID:         uuid.NewString(),
			TypeName:   "key",
			OwnerID:    task.UserID,
			Status:     domain.ItemAvailable,
			Properties: map[string]string{"task_id": task.ID},
			CreatedAt:  now,
		}
		if err := tx.InsertItem(*item); err != nil {
			return fmt.Errorf("insert key item: %w", err)
		}

		if task.UnlockType == domain.UnlockVote {
			err := tx.InsertTaskKey(domain.TaskKey{
				ID:        uuid.NewString(),
				TaskID:    task.ID,
				HolderID:  task.UserID,
				Status:    domain.KeyActive,
				CreatedAt: now,
			})
			if err != nil {
				return fmt.Errorf("insert legacy key record: %w", err)
			}
		}
		return nil
	})
	return item, err
}

// CurrentHolder returns the user currently holding the task's live key, or
// "" when the key is destroyed or absent.
func (s *Service) CurrentHolder(taskID string) (string, error) {
	live, err := s.db.LiveKeyItems(taskID)
	if err != nil {
		return "", err
	}
	if len(live) == 0 {
		return "", nil
	}
	return live[0].OwnerID, nil
}

// HeldKeys returns the live key items in a user's inventory.
func (s *Service) HeldKeys(userID string) ([]domain.Item, error) {
	return s.db.KeyItemsHeldBy(userID)
}

// Destroy burns every live key item bound to the task and retires the
// legacy record. Idempotent: destroying a task with no live key is a no-op
// returning zero. The count may exceed one if stale duplicate key items
// exist; the pass de-dupes them all at once.
func (s *Service) Destroy(taskID, reason, actorID string) ([]domain.DestroyedKey, error) {
	var destroyed []domain.DestroyedKey
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		live, err := tx.LiveKeyItems(taskID)
		if err != nil {
			return fmt.Errorf("list live keys: %w", err)
		}
		if len(live) == 0 {
			return nil
		}

		now := s.now()
		for _, it := range live {
			if err := tx.MarkItemUsed(it.ID, now); err != nil {
				return fmt.Errorf("burn key item %s: %w", it.ID, err)
			}
			destroyed = append(destroyed, domain.DestroyedKey{ItemID: it.ID, HolderID: it.OwnerID})
		}
		if err := tx.MarkTaskKeyUsed(taskID, now); err != nil {
			return fmt.Errorf("retire legacy key: %w", err)
		}

		holders := make(map[string]string, len(destroyed))
		for i, dk := range destroyed {
			holders["holder_"+strconv.Itoa(i+1)] = dk.HolderID
		}
		holders["keys_destroyed"] = strconv.Itoa(len(destroyed))

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:          uuid.NewString(),
			TaskID:      taskID,
			Type:        domain.EventKeysDestroyed,
			UserID:      actorID,
			Description: reason,
			Metadata:    holders,
			CreatedAt:   now,
		})
	})
	return destroyed, err
}
