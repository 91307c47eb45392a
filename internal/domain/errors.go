package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency. The API layer maps
// them onto 4xx responses with the error text as the reason string.

var (
	// Lookup errors
	ErrTaskNotFound = errors.New("task not found")
	ErrKeyNotFound  = errors.New("key not found")
	ErrItemNotFound = errors.New("item not found")
	ErrPinNotFound  = errors.New("pinned record not found")

	// State machine preconditions
	ErrWrongStatus       = errors.New("task is not in a valid state for this action")
	ErrNotLockTask       = errors.New("action only applies to lock tasks")
	ErrNotBoardTask      = errors.New("action only applies to board tasks")
	ErrTaskFrozen        = errors.New("task is frozen")
	ErrTaskNotFrozen     = errors.New("task is not frozen")
	ErrCountdownRunning  = errors.New("countdown has not elapsed yet")
	ErrCountdownFinished = errors.New("countdown has already elapsed")

	// Voting errors
	ErrNotVoteUnlock     = errors.New("task is not vote-unlock type")
	ErrVotingNotOpen     = errors.New("voting window is not open")
	ErrVotingStillOpen   = errors.New("voting window has not ended")
	ErrVotingClosed      = errors.New("voting window has ended")
	ErrAlreadyVoted      = errors.New("already cast a vote on this task")
	ErrVoteNotPassed     = errors.New("vote gate has not passed")
	ErrOwnTaskVote       = errors.New("cannot vote on your own task")

	// Key / capability errors
	ErrKeyExists     = errors.New("task already has a key")
	ErrNotKeyHolder  = errors.New("caller does not hold this task's key")
	ErrKeyUnusable   = errors.New("key item is not available")

	// Authorization errors
	ErrNotOwner = errors.New("caller is not the task owner")
	ErrNotTaker = errors.New("caller is not the task taker")

	// Ledger errors
	ErrInsufficientCoins = errors.New("insufficient coins")
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// Overtime / adjustment errors
	ErrOwnTaskOvertime  = errors.New("cannot add overtime to your own task")
	ErrOvertimeCooldown = errors.New("overtime already added for this publisher within the cooldown window")

	// Pinning errors
	ErrAlreadyPinned = errors.New("user is already pinned for this task")

	// Board task errors
	ErrOwnBoardTask      = errors.New("cannot take your own board task")
	ErrBoardTaskFull     = errors.New("board task has reached its participant limit")
	ErrAlreadyJoined     = errors.New("already joined this board task")
	ErrNotParticipant    = errors.New("user is not a participant of this board task")
	ErrProofRequired     = errors.New("completion proof is required")

	// Rollback errors
	ErrNothingToRollback = errors.New("no time events within the rollback window")
)
