package domain

import "time"

// ItemStatus tracks a store item's availability.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemUsed      ItemStatus = "used"
)

// Item is a generic store inventory item with a free-form properties bag.
// The key component reads Properties["task_id"] to locate the live key for
// a task; ownership transfer and inventory slots belong to the store app.
type Item struct {
	ID         string            `json:"id"`
	TypeName   string            `json:"item_type"` // "key", "universal_key", ...
	OwnerID    string            `json:"owner_id"`
	Status     ItemStatus        `json:"status"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"created_at"`
	UsedAt     time.Time         `json:"used_at,omitempty"`
}

// TaskID returns the task this item is bound to, if any.
func (i *Item) TaskID() string {
	if i.Properties == nil {
		return ""
	}
	return i.Properties["task_id"]
}

// KeyStatus tracks the legacy per-task key record.
type KeyStatus string

const (
	KeyActive KeyStatus = "active"
	KeyUsed   KeyStatus = "used"
)

// TaskKey is the legacy one-to-one key record kept in sync for vote-unlock
// tasks. Completion checks consult the Item-backed key; this record only
// mirrors it.
type TaskKey struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	HolderID  string    `json:"holder_id"`
	Status    KeyStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UsedAt    time.Time `json:"used_at,omitempty"`
}

// DestroyedKey describes one key item burned by a destroy pass.
type DestroyedKey struct {
	ItemID   string `json:"item_id"`
	HolderID string `json:"holder_id"`
}
