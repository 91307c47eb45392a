// Package domain holds the pure Lockup types.
// A LockTask is a time- or vote-gated commitment that flows through the
// engine: create → active → (voting ⇄ active) → voting_passed → completed,
// with a parallel board-task lifecycle open → taken → submitted → settled.
package domain

import "time"

// TaskType distinguishes the two task variants sharing one record.
type TaskType string

const (
	TaskLock  TaskType = "lock"  // self-imposed countdown / vote-gated task
	TaskBoard TaskType = "board" // bounty posted for others
)

// TaskStatus tracks the task state machine.
type TaskStatus string

const (
	// Lock task states
	StatusPending      TaskStatus = "pending"
	StatusActive       TaskStatus = "active"
	StatusVoting       TaskStatus = "voting"
	StatusVotingPassed TaskStatus = "voting_passed"
	StatusCompleted    TaskStatus = "completed"
	StatusFailed       TaskStatus = "failed"

	// Board task states
	StatusOpen      TaskStatus = "open"
	StatusTaken     TaskStatus = "taken"
	StatusSubmitted TaskStatus = "submitted"
)

// DurationType controls how a lock task's countdown length is chosen.
type DurationType string

const (
	DurationFixed  DurationType = "fixed"
	DurationRandom DurationType = "random" // uniform in [DurationValue, DurationMax]
)

// Difficulty drives penalty and bonus magnitudes.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
	DifficultyHell   Difficulty = "hell"
)

// UnlockType selects the gate a lock task must clear to complete.
type UnlockType string

const (
	UnlockTime UnlockType = "time"
	UnlockVote UnlockType = "vote"
)

// LockTask is a task instance, polymorphic over the lock and board variants.
type LockTask struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        TaskType   `json:"task_type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`

	// Lock task fields
	DurationType  DurationType `json:"duration_type,omitempty"`
	DurationValue int          `json:"duration_value,omitempty"` // minutes
	DurationMax   int          `json:"duration_max,omitempty"`   // minutes, random type only
	Difficulty    Difficulty   `json:"difficulty,omitempty"`
	UnlockType    UnlockType   `json:"unlock_type,omitempty"`
	StrictMode    bool         `json:"strict_mode,omitempty"`

	// Vote configuration
	VoteThreshold      int       `json:"vote_threshold,omitempty"`
	VoteAgreementRatio float64   `json:"vote_agreement_ratio,omitempty"`
	VotingDuration     int       `json:"voting_duration,omitempty"` // minutes
	VotingStartTime    time.Time `json:"voting_start_time,omitempty"`
	VotingEndTime      time.Time `json:"voting_end_time,omitempty"`

	// Board task fields
	Reward          int64     `json:"reward,omitempty"`
	Deadline        time.Time `json:"deadline,omitempty"`
	MaxDuration     int       `json:"max_duration,omitempty"` // hours from take to deadline
	MaxParticipants int       `json:"max_participants,omitempty"`
	TakerID         string    `json:"taker_id,omitempty"`
	TakenAt         time.Time `json:"taken_at,omitempty"`
	CompletionProof string    `json:"completion_proof,omitempty"`

	// Time accounting
	StartTime   time.Time `json:"start_time,omitempty"`
	EndTime     time.Time `json:"end_time,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Freeze accounting
	IsFrozen       bool          `json:"is_frozen"`
	FrozenAt       time.Time     `json:"frozen_at,omitempty"`
	FrozenEndTime  time.Time     `json:"frozen_end_time,omitempty"`
	TotalFrozenDur time.Duration `json:"total_frozen_duration"`

	// Hourly reward watermark
	LastHourlyRewardAt time.Time `json:"last_hourly_reward_at,omitempty"`
	TotalHourlyRewards int       `json:"total_hourly_rewards"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the task reached a final state.
func (t *LockTask) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// IsRunning reports whether the lock task is accruing elapsed time.
// Voting counts as running: the countdown is independent of the vote gate.
func (t *LockTask) IsRunning() bool {
	return t.Status == StatusActive || t.Status == StatusVoting || t.Status == StatusVotingPassed
}

// VotePenaltyMinutes is the difficulty-scaled overtime applied when a
// voting round fails.
func (t *LockTask) VotePenaltyMinutes() int {
	switch t.Difficulty {
	case DifficultyEasy:
		return 10
	case DifficultyHard:
		return 30
	case DifficultyHell:
		return 60
	default:
		return 20
	}
}

// OvertimeBaseMinutes is the difficulty-scaled base for peer overtime.
// Actual overtime is randomized in [50%, 150%] of this base.
func (t *LockTask) OvertimeBaseMinutes() int {
	switch t.Difficulty {
	case DifficultyEasy:
		return 10
	case DifficultyHard:
		return 30
	case DifficultyHell:
		return 60
	default:
		return 20
	}
}

// CompletionBonus is the one-time difficulty-scaled bonus paid on
// completion, provided at least one full hour elapsed.
func (t *LockTask) CompletionBonus() int64 {
	switch t.Difficulty {
	case DifficultyEasy:
		return 1
	case DifficultyHard:
		return 3
	case DifficultyHell:
		return 4
	default:
		return 2
	}
}

// ElapsedActive returns wall-clock time since StartTime net of all frozen
// intervals, including the currently open one. This is the single formula
// both the hourly reward engine and lock-duration statistics depend on.
func (t *LockTask) ElapsedActive(now time.Time) time.Duration {
	if t.StartTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(t.StartTime) - t.TotalFrozenDur
	if t.IsFrozen && !t.FrozenAt.IsZero() {
		elapsed -= now.Sub(t.FrozenAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ElapsedHours floors ElapsedActive to whole hours, clamped ≥0.
func (t *LockTask) ElapsedHours(now time.Time) int {
	return int(t.ElapsedActive(now) / time.Hour)
}

// CountdownLapsed reports whether the nominal unlock horizon has passed.
// Tasks with no end time are treated as lapsed.
func (t *LockTask) CountdownLapsed(now time.Time) bool {
	return t.EndTime.IsZero() || !now.Before(t.EndTime)
}

// OvertimeAction records one peer overtime application, kept as a rate-limit
// trail per (target user, publisher) pair.
type OvertimeAction struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id"`
	UserID          string    `json:"user_id"` // task owner who received the overtime
	PublisherID     string    `json:"publisher_id"`
	OvertimeMinutes int       `json:"overtime_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}
