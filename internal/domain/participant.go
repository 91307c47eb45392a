package domain

import "time"

// ParticipantStatus tracks a board-task participant's sub-state.
type ParticipantStatus string

const (
	ParticipantJoined    ParticipantStatus = "joined"
	ParticipantSubmitted ParticipantStatus = "submitted"
	ParticipantApproved  ParticipantStatus = "approved"
	ParticipantRejected  ParticipantStatus = "rejected"
)

// TaskParticipant is one taker on a multi-participant board task.
// Unique per (task, participant).
type TaskParticipant struct {
	ID            string            `json:"id"`
	TaskID        string            `json:"task_id"`
	UserID        string            `json:"participant_id"`
	Status        ParticipantStatus `json:"status"`
	Submission    string            `json:"submission_text,omitempty"`
	SubmittedAt   time.Time         `json:"submitted_at,omitempty"`
	ReviewedAt    time.Time         `json:"reviewed_at,omitempty"`
	ReviewComment string            `json:"review_comment,omitempty"`
	RewardAmount  int64             `json:"reward_amount,omitempty"`
	JoinedAt      time.Time         `json:"joined_at"`
}
