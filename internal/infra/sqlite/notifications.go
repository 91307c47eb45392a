package sqlite

import (
	"database/sql"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Notification log ───────────────────────────────────────────────────────

// InsertNotification appends one notification to the delivery log.
func (d *DB) InsertNotification(n domain.Notification) (int64, error) {
	result, err := d.q.Exec(
		`INSERT INTO notifications (recipient_id, actor_id, type, title, message,
			related_type, related_id, extra, priority, created_at, read)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		n.RecipientID, nullStr(n.ActorID), n.Type, n.Title, n.Message,
		nullStr(n.RelatedType), nullStr(n.RelatedID), jsonMap(n.Extra),
		string(n.Priority), n.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// NotificationsFor returns a user's notifications, newest first.
func (d *DB) NotificationsFor(recipientID string, limit int) ([]domain.Notification, error) {
	rows, err := d.q.Query(
		`SELECT id, recipient_id, actor_id, type, title, message,
			related_type, related_id, extra, priority, created_at, read
		 FROM notifications WHERE recipient_id = ? ORDER BY id DESC LIMIT ?`,
		recipientID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var actor, relType, relID sql.NullString
		var extra string
		var created int64
		err := rows.Scan(&n.ID, &n.RecipientID, &actor, &n.Type, &n.Title,
			&n.Message, &relType, &relID, &extra, &n.Priority, &created, &n.Read)
		if err != nil {
			return nil, err
		}
		n.ActorID = strFromNull(actor)
		n.RelatedType = strFromNull(relType)
		n.RelatedID = strFromNull(relID)
		n.Extra = mapFromJSON(extra)
		n.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsRead flags all of a user's notifications as read.
func (d *DB) MarkNotificationsRead(recipientID string) error {
	_, err := d.q.Exec(
		`UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0`,
		recipientID,
	)
	return err
}
