package sqlite

import (
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Overtime actions ───────────────────────────────────────────────────────

// InsertOvertimeAction logs one peer overtime application for rate limiting.
func (d *DB) InsertOvertimeAction(a domain.OvertimeAction) error {
	_, err := d.q.Exec(
		`INSERT INTO overtime_actions (id, task_id, user_id, publisher_id, overtime_minutes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.UserID, a.PublisherID, a.OvertimeMinutes, a.CreatedAt.Unix(),
	)
	return err
}

// RecentOvertimeExists reports whether the publisher has already applied
// overtime against the user since the cutoff.
func (d *DB) RecentOvertimeExists(userID, publisherID string, since time.Time) (bool, error) {
	var count int
	err := d.q.QueryRow(
		`SELECT COUNT(*) FROM overtime_actions
		 WHERE user_id = ? AND publisher_id = ? AND created_at > ?`,
		userID, publisherID, since.Unix(),
	).Scan(&count)
	return count > 0, err
}
