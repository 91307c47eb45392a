package domain

import "time"

// NotificationPriority orders delivery urgency. Very-low priority is used by
// the hourly reward heartbeat to avoid drowning users.
type NotificationPriority string

const (
	PriorityVeryLow NotificationPriority = "very_low"
	PriorityLow     NotificationPriority = "low"
	PriorityNormal  NotificationPriority = "normal"
	PriorityHigh    NotificationPriority = "high"
)

// Notification is a best-effort message to a user. Creation never rolls back
// the business transaction that triggered it.
type Notification struct {
	ID          int64                `json:"id"`
	RecipientID string               `json:"recipient_id"`
	ActorID     string               `json:"actor_id,omitempty"` // empty for system
	Type        string               `json:"notification_type"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	RelatedType string               `json:"related_object_type,omitempty"`
	RelatedID   string               `json:"related_object_id,omitempty"`
	Extra       map[string]string    `json:"extra_data,omitempty"`
	Priority    NotificationPriority `json:"priority"`
	CreatedAt   time.Time            `json:"created_at"`
	Read        bool                 `json:"read"`
}
