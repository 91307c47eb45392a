package domain

import "time"

// EventType names a state-affecting action recorded in a task's timeline.
type EventType string

const (
	EventTaskCreated      EventType = "task_created"
	EventTaskStarted      EventType = "task_started"
	EventOvertimeAdded    EventType = "overtime_added"
	EventManualAdjustment EventType = "manual_adjustment"
	EventVotingStarted    EventType = "voting_started"
	EventVotePassed       EventType = "vote_passed"
	EventVoteFailed       EventType = "vote_failed"
	EventTaskVoted        EventType = "task_voted"
	EventTaskCompleted    EventType = "task_completed"
	EventTaskStopped      EventType = "task_stopped"
	EventTaskFailed       EventType = "task_failed"
	EventHourlyReward     EventType = "hourly_reward"
	EventKeysDestroyed    EventType = "task_keys_destroyed"
	EventUserPinned       EventType = "user_pinned"
	EventUserUnpinned     EventType = "user_unpinned"
	EventTaskFrozen       EventType = "task_frozen"
	EventTaskUnfrozen     EventType = "task_unfrozen"
	EventTimeRollback     EventType = "time_rollback"
	EventBoardTaskTaken   EventType = "board_task_taken"
	EventDeadlinePassed   EventType = "deadline_passed"
)

// TimelineEvent is one append-only row in a task's ordered audit log.
// Events are never mutated after creation; readers reconstruct past time
// state (the 30-minute rollback window) by replaying them backwards.
type TimelineEvent struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Type      EventType `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"` // empty for system events

	// Time change detail, when the event moved the countdown.
	TimeChangeMinutes int       `json:"time_change_minutes,omitempty"`
	PreviousEndTime   time.Time `json:"previous_end_time,omitempty"`
	NewEndTime        time.Time `json:"new_end_time,omitempty"`

	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TimeRollback records one use of the 30-minute time restore.
type TimeRollback struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
	UserID string `json:"user_id"`

	RollbackStart time.Time `json:"rollback_start_time"`
	RollbackEnd   time.Time `json:"rollback_end_time"`

	OriginalEndTime time.Time `json:"original_end_time,omitempty"`
	RestoredEndTime time.Time `json:"restored_end_time,omitempty"`

	RevertedEventIDs []string  `json:"reverted_events"`
	CreatedAt        time.Time `json:"created_at"`
}
