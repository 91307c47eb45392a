package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Board task participants ────────────────────────────────────────────────

const participantColumns = `id, task_id, participant_id, status, submission_text,
	submitted_at, reviewed_at, review_comment, reward_amount, joined_at`

// InsertParticipant adds a taker to a board task. The UNIQUE(task_id,
// participant_id) constraint rejects double joins.
func (d *DB) InsertParticipant(p domain.TaskParticipant) error {
	_, err := d.q.Exec(
		`INSERT INTO task_participants (id, task_id, participant_id, status, submission_text,
			submitted_at, reviewed_at, review_comment, reward_amount, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TaskID, p.UserID, string(p.Status), p.Submission,
		nullableUnix(p.SubmittedAt), nullableUnix(p.ReviewedAt),
		p.ReviewComment, p.RewardAmount, p.JoinedAt.Unix(),
	)
	return err
}

// UpdateParticipant rewrites a participant's mutable fields.
func (d *DB) UpdateParticipant(p domain.TaskParticipant) error {
	result, err := d.q.Exec(
		`UPDATE task_participants
		 SET status = ?, submission_text = ?, submitted_at = ?, reviewed_at = ?,
		     review_comment = ?, reward_amount = ?
		 WHERE id = ?`,
		string(p.Status), p.Submission, nullableUnix(p.SubmittedAt),
		nullableUnix(p.ReviewedAt), p.ReviewComment, p.RewardAmount, p.ID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotParticipant
	}
	return nil
}

// GetParticipant finds one participant record by task and user.
func (d *DB) GetParticipant(taskID, userID string) (*domain.TaskParticipant, error) {
	row := d.q.QueryRow(
		`SELECT `+participantColumns+` FROM task_participants
		 WHERE task_id = ? AND participant_id = ?`,
		taskID, userID,
	)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotParticipant
	}
	return p, err
}

// Participants lists all takers on a task in join order.
func (d *DB) Participants(taskID string) ([]domain.TaskParticipant, error) {
	rows, err := d.q.Query(
		`SELECT `+participantColumns+` FROM task_participants
		 WHERE task_id = ? ORDER BY joined_at, id`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TaskParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CountParticipants returns the number of takers on a task.
func (d *DB) CountParticipants(taskID string) (int, error) {
	var n int
	err := d.q.QueryRow(
		`SELECT COUNT(*) FROM task_participants WHERE task_id = ?`, taskID,
	).Scan(&n)
	return n, err
}

func scanParticipant(row scanner) (*domain.TaskParticipant, error) {
	var p domain.TaskParticipant
	var submitted, reviewed sql.NullInt64
	var reward sql.NullInt64
	var joined int64
	err := row.Scan(&p.ID, &p.TaskID, &p.UserID, &p.Status, &p.Submission,
		&submitted, &reviewed, &p.ReviewComment, &reward, &joined)
	if err != nil {
		return nil, err
	}
	p.SubmittedAt = timeFromNull(submitted)
	p.ReviewedAt = timeFromNull(reviewed)
	if reward.Valid {
		p.RewardAmount = reward.Int64
	}
	p.JoinedAt = time.Unix(joined, 0).UTC()
	return &p, nil
}
