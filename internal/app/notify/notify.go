// Package notify delivers best-effort user notifications with templated
// defaults. Delivery never fails a business transaction: callers log and
// drop errors.
package notify

import (
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Service writes notifications to the delivery log. Satisfies
// domain.Notifier.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a notification service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// templates provides default title/message pairs per notification type.
var templates = map[string]struct{ title, message string }{
	"hourly_reward":   {"Hourly reward", "Your lock task earned coins for staying locked."},
	"task_completed":  {"Task completed", "Your task has been completed."},
	"task_failed":     {"Task failed", "Your task has failed."},
	"vote_passed":     {"Vote passed", "The vote on your task passed. You may now complete it."},
	"vote_failed":     {"Vote failed", "The vote on your task failed. A time penalty was applied."},
	"overtime_added":  {"Overtime added", "Someone added overtime to your task."},
	"user_pinned":     {"You were pinned", "You were pinned to the board."},
	"board_submitted": {"Submission received", "A taker submitted your board task."},
	"board_approved":  {"Submission approved", "Your board task submission was approved."},
	"board_rejected":  {"Submission rejected", "Your board task submission was rejected."},
	"deadline_passed": {"Deadline passed", "A board task deadline has passed."},
}

// Notify writes one notification. Missing title or message are filled from
// the type's template; self-notifications (actor == recipient) are
// suppressed except for system messages with no actor.
func (s *Service) Notify(n domain.Notification) error {
	if n.ActorID != "" && n.ActorID == n.RecipientID {
		return nil
	}
	if tpl, ok := templates[n.Type]; ok {
		if n.Title == "" {
			n.Title = tpl.title
		}
		if n.Message == "" {
			n.Message = tpl.message
		}
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.db.InsertNotification(n)
	return err
}

// For returns a user's notifications, newest first.
func (s *Service) For(recipientID string, limit int) ([]domain.Notification, error) {
	return s.db.NotificationsFor(recipientID, limit)
}

// MarkRead flags all of a user's notifications as read.
func (s *Service) MarkRead(recipientID string) error {
	return s.db.MarkNotificationsRead(recipientID)
}
