package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Pinning Queue Repository ───────────────────────────────────────────────

const pinColumns = `id, task_id, pinned_user_id, key_holder_id, coins_spent,
	duration_minutes, is_active, position, created_at, expires_at, activated_at`

// InsertPin creates a queued pin record (position unassigned).
func (d *DB) InsertPin(p domain.PinnedUser) error {
	var pos any
	if p.Position > 0 {
		pos = p.Position
	}
	_, err := d.q.Exec(
		`INSERT INTO pinned_users (`+pinColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TaskID, p.PinnedUser, nullStr(p.KeyHolder), p.CoinsSpent,
		p.DurationMinutes, p.IsActive, pos, p.CreatedAt.Unix(), p.ExpiresAt.Unix(),
		nullableUnix(p.ActivatedAt),
	)
	return err
}

// GetPin retrieves a pin record by ID.
func (d *DB) GetPin(id string) (*domain.PinnedUser, error) {
	row := d.q.QueryRow(`SELECT `+pinColumns+` FROM pinned_users WHERE id = ?`, id)
	p, err := scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPinNotFound
	}
	return p, err
}

// ActivePins returns all active pin records in strict FIFO (created_at)
// order: the order the rebalance sweep assigns slots in.
func (d *DB) ActivePins() ([]domain.PinnedUser, error) {
	rows, err := d.q.Query(
		`SELECT ` + pinColumns + ` FROM pinned_users
		 WHERE is_active = 1 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPins(rows)
}

// ActivePinFor returns the live pin record targeting a task's owner, or nil.
func (d *DB) ActivePinFor(taskID string) (*domain.PinnedUser, error) {
	row := d.q.QueryRow(
		`SELECT `+pinColumns+` FROM pinned_users
		 WHERE task_id = ? AND is_active = 1 LIMIT 1`, taskID,
	)
	p, err := scanPin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// UpdatePinSlot stores a rebalance outcome for one record.
func (d *DB) UpdatePinSlot(id string, position int, isActive bool, activatedAt time.Time) error {
	var pos any
	if position > 0 {
		pos = position
	}
	_, err := d.q.Exec(
		`UPDATE pinned_users SET position = ?, is_active = ?, activated_at = ? WHERE id = ?`,
		pos, isActive, nullableUnix(activatedAt), id,
	)
	return err
}

// IsUserPinned reports whether the user currently occupies an active slot.
func (d *DB) IsUserPinned(userID string) (bool, error) {
	var n int
	err := d.q.QueryRow(
		`SELECT COUNT(*) FROM pinned_users
		 WHERE pinned_user_id = ? AND is_active = 1 AND position IS NOT NULL`,
		userID,
	).Scan(&n)
	return n > 0, err
}

func scanPin(s scanner) (*domain.PinnedUser, error) {
	var p domain.PinnedUser
	var keyHolder sql.NullString
	var position, activatedAt sql.NullInt64
	var createdAt, expiresAt int64

	err := s.Scan(&p.ID, &p.TaskID, &p.PinnedUser, &keyHolder, &p.CoinsSpent,
		&p.DurationMinutes, &p.IsActive, &position, &createdAt, &expiresAt, &activatedAt)
	if err != nil {
		return nil, err
	}
	p.KeyHolder = strFromNull(keyHolder)
	p.Position = int(position.Int64)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	p.ActivatedAt = timeFromNull(activatedAt)
	return &p, nil
}

func scanPins(rows *sql.Rows) ([]domain.PinnedUser, error) {
	var pins []domain.PinnedUser
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, *p)
	}
	return pins, rows.Err()
}
