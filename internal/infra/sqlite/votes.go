package sqlite

import (
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Vote Repository ────────────────────────────────────────────────────────

// InsertVote records a vote. The (task_id, voter_id) unique constraint
// rejects duplicates at the storage layer; callers check first for a
// friendlier error.
func (d *DB) InsertVote(v domain.TaskVote) error {
	_, err := d.q.Exec(
		`INSERT INTO task_votes (id, task_id, voter_id, agree, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.TaskID, v.VoterID, v.Agree, v.CreatedAt.Unix(),
	)
	return err
}

// HasVoted reports whether the voter already has a vote on the task.
func (d *DB) HasVoted(taskID, voterID string) (bool, error) {
	var n int
	err := d.q.QueryRow(
		`SELECT COUNT(*) FROM task_votes WHERE task_id = ? AND voter_id = ?`,
		taskID, voterID,
	).Scan(&n)
	return n > 0, err
}

// VotesForTask returns all votes on a task in cast order.
func (d *DB) VotesForTask(taskID string) ([]domain.TaskVote, error) {
	rows, err := d.q.Query(
		`SELECT id, task_id, voter_id, agree, created_at
		 FROM task_votes WHERE task_id = ? ORDER BY created_at`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []domain.TaskVote
	for rows.Next() {
		var v domain.TaskVote
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.TaskID, &v.VoterID, &v.Agree, &createdAt); err != nil {
			return nil, err
		}
		v.CreatedAt = time.Unix(createdAt, 0).UTC()
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// DeleteVotesForTask clears a task's votes when a new voting round starts.
func (d *DB) DeleteVotesForTask(taskID string) (int64, error) {
	res, err := d.q.Exec(`DELETE FROM task_votes WHERE task_id = ?`, taskID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
