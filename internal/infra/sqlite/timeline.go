package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Timeline Event Log ─────────────────────────────────────────────────────
// Append-only; rows are never updated or deleted except via task cascade.

const timelineColumns = `id, task_id, event_type, user_id, time_change_minutes,
	previous_end_time, new_end_time, description, metadata, created_at`

// InsertTimelineEvent appends one event to a task's log. Call inside the
// same Transact as the state change it describes.
func (d *DB) InsertTimelineEvent(e domain.TimelineEvent) error {
	_, err := d.q.Exec(
		`INSERT INTO timeline_events (`+timelineColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.TaskID, string(e.Type), nullStr(e.UserID),
		e.TimeChangeMinutes, nullableUnix(e.PreviousEndTime), nullableUnix(e.NewEndTime),
		e.Description, jsonMap(e.Metadata), e.CreatedAt.Unix(),
	)
	return err
}

// TimelineEvents returns a task's events newest first.
func (d *DB) TimelineEvents(taskID string, limit int) ([]domain.TimelineEvent, error) {
	query := `SELECT ` + timelineColumns + ` FROM timeline_events
		WHERE task_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := d.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineEvents(rows)
}

// TimeEventsSince returns the time-affecting events for a task recorded at
// or after the cutoff, newest first. This is the rollback window query.
func (d *DB) TimeEventsSince(taskID string, cutoff time.Time) ([]domain.TimelineEvent, error) {
	rows, err := d.q.Query(
		`SELECT `+timelineColumns+` FROM timeline_events
		 WHERE task_id = ? AND created_at >= ? AND time_change_minutes IS NOT NULL
		   AND time_change_minutes != 0
		 ORDER BY created_at DESC, id DESC`,
		taskID, cutoff.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimelineEvents(rows)
}

func scanTimelineEvents(rows *sql.Rows) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		var userID sql.NullString
		var changeMin, prevEnd, newEnd sql.NullInt64
		var metadata string
		var createdAt int64

		err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &userID, &changeMin,
			&prevEnd, &newEnd, &e.Description, &metadata, &createdAt)
		if err != nil {
			return nil, err
		}
		e.UserID = strFromNull(userID)
		e.TimeChangeMinutes = int(changeMin.Int64)
		e.PreviousEndTime = timeFromNull(prevEnd)
		e.NewEndTime = timeFromNull(newEnd)
		e.Metadata = mapFromJSON(metadata)
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// ─── Time Rollbacks ─────────────────────────────────────────────────────────

// InsertRollback records one use of the time restore.
func (d *DB) InsertRollback(r domain.TimeRollback) error {
	ids, err := json.Marshal(r.RevertedEventIDs)
	if err != nil {
		ids = []byte("[]")
	}
	_, err = d.q.Exec(
		`INSERT INTO time_rollbacks (id, task_id, user_id, rollback_start_time,
			rollback_end_time, original_end_time, restored_end_time, reverted_events, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		r.ID, r.TaskID, r.UserID, r.RollbackStart.Unix(), r.RollbackEnd.Unix(),
		nullableUnix(r.OriginalEndTime), nullableUnix(r.RestoredEndTime),
		string(ids), r.CreatedAt.Unix(),
	)
	return err
}
