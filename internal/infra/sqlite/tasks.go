package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Task Repository ────────────────────────────────────────────────────────

const taskColumns = `id, user_id, task_type, title, description, status,
	duration_type, duration_value, duration_max, difficulty, unlock_type, strict_mode,
	vote_threshold, vote_agreement_ratio, voting_duration, voting_start_time, voting_end_time,
	reward, deadline, max_duration, max_participants, taker_id, taken_at, completion_proof,
	start_time, end_time, completed_at,
	is_frozen, frozen_at, frozen_end_time, total_frozen_seconds,
	last_hourly_reward_at, total_hourly_rewards, created_at, updated_at`

// InsertTask creates a new task record.
func (d *DB) InsertTask(t domain.LockTask) error {
	_, err := d.q.Exec(
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?,?)`,
		t.ID, t.UserID, string(t.Type), t.Title, t.Description, string(t.Status),
		nullStr(string(t.DurationType)), t.DurationValue, t.DurationMax,
		nullStr(string(t.Difficulty)), nullStr(string(t.UnlockType)), t.StrictMode,
		t.VoteThreshold, t.VoteAgreementRatio, t.VotingDuration,
		nullableUnix(t.VotingStartTime), nullableUnix(t.VotingEndTime),
		t.Reward, nullableUnix(t.Deadline), t.MaxDuration, t.MaxParticipants,
		nullStr(t.TakerID), nullableUnix(t.TakenAt), nullStr(t.CompletionProof),
		nullableUnix(t.StartTime), nullableUnix(t.EndTime), nullableUnix(t.CompletedAt),
		t.IsFrozen, nullableUnix(t.FrozenAt), nullableUnix(t.FrozenEndTime),
		int64(t.TotalFrozenDur/time.Second),
		nullableUnix(t.LastHourlyRewardAt), t.TotalHourlyRewards,
		t.CreatedAt.Unix(), t.UpdatedAt.Unix(),
	)
	return err
}

// UpdateTask persists the full mutable state of a task.
// Caller is expected to run inside Transact when the update accompanies a
// timeline event.
func (d *DB) UpdateTask(t domain.LockTask) error {
	res, err := d.q.Exec(
		`UPDATE tasks SET
			status=?, title=?, description=?,
			vote_threshold=?, vote_agreement_ratio=?, voting_duration=?,
			voting_start_time=?, voting_end_time=?,
			reward=?, deadline=?, max_duration=?, max_participants=?,
			taker_id=?, taken_at=?, completion_proof=?,
			start_time=?, end_time=?, completed_at=?,
			is_frozen=?, frozen_at=?, frozen_end_time=?, total_frozen_seconds=?,
			last_hourly_reward_at=?, total_hourly_rewards=?, updated_at=?
		 WHERE id=?`,
		string(t.Status), t.Title, t.Description,
		t.VoteThreshold, t.VoteAgreementRatio, t.VotingDuration,
		nullableUnix(t.VotingStartTime), nullableUnix(t.VotingEndTime),
		t.Reward, nullableUnix(t.Deadline), t.MaxDuration, t.MaxParticipants,
		nullStr(t.TakerID), nullableUnix(t.TakenAt), nullStr(t.CompletionProof),
		nullableUnix(t.StartTime), nullableUnix(t.EndTime), nullableUnix(t.CompletedAt),
		t.IsFrozen, nullableUnix(t.FrozenAt), nullableUnix(t.FrozenEndTime),
		int64(t.TotalFrozenDur/time.Second),
		nullableUnix(t.LastHourlyRewardAt), t.TotalHourlyRewards, t.UpdatedAt.Unix(),
		t.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// GetTask retrieves a task by ID.
func (d *DB) GetTask(id string) (*domain.LockTask, error) {
	row := d.q.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return t, err
}

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Type    domain.TaskType
	Status  domain.TaskStatus
	UserID  string
	TakerID string
	Limit   int
}

// ListTasks returns tasks matching the filter, newest first.
func (d *DB) ListTasks(f TaskFilter) ([]domain.LockTask, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND task_type = ?`
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.TakerID != "" {
		query += ` AND taker_id = ?`
		args = append(args, f.TakerID)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := d.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// RunningLockTasks returns lock tasks eligible for hourly reward processing.
func (d *DB) RunningLockTasks() ([]domain.LockTask, error) {
	rows, err := d.q.Query(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE task_type = 'lock' AND status IN ('active', 'voting', 'voting_passed')
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// VotingDueTasks returns tasks whose voting window has closed but whose
// outcome has not been resolved yet. Resolution flips status away from
// 'voting', which excludes the task from this query and makes redundant
// sweeps idempotent.
func (d *DB) VotingDueTasks(now time.Time) ([]domain.LockTask, error) {
	rows, err := d.q.Query(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE status = 'voting' AND voting_end_time IS NOT NULL AND voting_end_time <= ?
		 ORDER BY voting_end_time`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// BoardTasksPastDeadline returns taken/submitted board tasks whose deadline
// passed, for the auto-settlement sweep.
func (d *DB) BoardTasksPastDeadline(now time.Time) ([]domain.LockTask, error) {
	rows, err := d.q.Query(
		`SELECT `+taskColumns+` FROM tasks
		 WHERE task_type = 'board' AND status IN ('taken', 'submitted')
		   AND deadline IS NOT NULL AND deadline <= ?
		 ORDER BY deadline`,
		now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.LockTask, error) {
	var t domain.LockTask
	var durationType, difficulty, unlockType, takerID, proof sql.NullString
	var durationValue, durationMax, voteThreshold, votingDuration sql.NullInt64
	var maxDuration, maxParticipants, reward sql.NullInt64
	var agreementRatio sql.NullFloat64
	var votingStart, votingEnd, deadline, takenAt sql.NullInt64
	var startTime, endTime, completedAt, frozenAt, frozenEnd, lastReward sql.NullInt64
	var frozenSeconds, createdAt, updatedAt int64

	err := s.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Title, &t.Description, &t.Status,
		&durationType, &durationValue, &durationMax, &difficulty, &unlockType, &t.StrictMode,
		&voteThreshold, &agreementRatio, &votingDuration, &votingStart, &votingEnd,
		&reward, &deadline, &maxDuration, &maxParticipants, &takerID, &takenAt, &proof,
		&startTime, &endTime, &completedAt,
		&t.IsFrozen, &frozenAt, &frozenEnd, &frozenSeconds,
		&lastReward, &t.TotalHourlyRewards, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.DurationType = domain.DurationType(strFromNull(durationType))
	t.DurationValue = int(durationValue.Int64)
	t.DurationMax = int(durationMax.Int64)
	t.Difficulty = domain.Difficulty(strFromNull(difficulty))
	t.UnlockType = domain.UnlockType(strFromNull(unlockType))
	t.VoteThreshold = int(voteThreshold.Int64)
	t.VoteAgreementRatio = agreementRatio.Float64
	t.VotingDuration = int(votingDuration.Int64)
	t.VotingStartTime = timeFromNull(votingStart)
	t.VotingEndTime = timeFromNull(votingEnd)
	t.Reward = reward.Int64
	t.Deadline = timeFromNull(deadline)
	t.MaxDuration = int(maxDuration.Int64)
	t.MaxParticipants = int(maxParticipants.Int64)
	t.TakerID = strFromNull(takerID)
	t.TakenAt = timeFromNull(takenAt)
	t.CompletionProof = strFromNull(proof)
	t.StartTime = timeFromNull(startTime)
	t.EndTime = timeFromNull(endTime)
	t.CompletedAt = timeFromNull(completedAt)
	t.FrozenAt = timeFromNull(frozenAt)
	t.FrozenEndTime = timeFromNull(frozenEnd)
	t.TotalFrozenDur = time.Duration(frozenSeconds) * time.Second
	t.LastHourlyRewardAt = timeFromNull(lastReward)
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]domain.LockTask, error) {
	var tasks []domain.LockTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
