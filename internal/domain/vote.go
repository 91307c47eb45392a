package domain

import "time"

// TaskVote is one vote per (task, voter) pair. Weight is not stored: it is
// computed at tally time from the voter's active influence effect, so the
// same vote can count differently depending on when it is tallied.
type TaskVote struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	VoterID   string    `json:"voter_id"`
	Agree     bool      `json:"agree"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteTally summarizes a weighted count at one instant.
type VoteTally struct {
	TaskID        string  `json:"task_id"`
	TotalWeight   float64 `json:"total_weight"`
	AgreeWeight   float64 `json:"agree_weight"`
	VoterCount    int     `json:"voter_count"`
	ThresholdMet  bool    `json:"threshold_met"`
	AgreementMet  bool    `json:"agreement_met"`
	Passed        bool    `json:"passed"`
	AgreementPct  float64 `json:"agreement_pct"`
	ResolvedAt    time.Time `json:"resolved_at,omitempty"`
}
