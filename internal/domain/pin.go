package domain

import "time"

// PinnedUser is one penalty/priority record in the pinning queue.
// At most MaxActivePositions records hold a non-null position at any time;
// the rest queue in creation order. Records are deactivated on expiry and
// kept as history, never deleted.
type PinnedUser struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	PinnedUser string `json:"pinned_user_id"` // always the task owner
	KeyHolder  string `json:"key_holder_id"`  // who paid; empty for system pins

	CoinsSpent      int64 `json:"coins_spent"`
	DurationMinutes int   `json:"duration_minutes"`

	IsActive bool `json:"is_active"`
	Position int  `json:"position,omitempty"` // 1..3, 0 = queued

	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// Pinned reports whether the record currently occupies an active slot.
func (p *PinnedUser) Pinned() bool {
	return p.IsActive && p.Position > 0
}

// PinQueueUpdate reports the outcome of one queue rebalance sweep.
type PinQueueUpdate struct {
	Expired         int `json:"expired_count"`
	Promoted        int `json:"promoted_count"`
	ActivePositions int `json:"active_positions"`
	Queued          int `json:"queue_count"`
}
