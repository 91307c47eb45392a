package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Item Repository ────────────────────────────────────────────────────────
// Items are the store app's generic inventory objects. The key component
// only ever reads them by (item_type='key', properties_task_id, status).

const itemColumns = `id, item_type, owner_id, status, properties, properties_task_id, created_at, used_at`

// InsertItem creates a store item. The task binding, when present in the
// properties bag, is denormalized into its own column for key lookups.
func (d *DB) InsertItem(it domain.Item) error {
	_, err := d.q.Exec(
		`INSERT INTO items (`+itemColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		it.ID, it.TypeName, it.OwnerID, string(it.Status),
		jsonMap(it.Properties), nullStr(it.TaskID()),
		it.CreatedAt.Unix(), nullableUnix(it.UsedAt),
	)
	return err
}

// GetItem retrieves an item by ID.
func (d *DB) GetItem(id string) (*domain.Item, error) {
	row := d.q.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	return it, err
}

// LiveKeyItems returns all available key items bound to a task. More than
// one only occurs in the stale-duplicate case the destroy pass de-dupes.
func (d *DB) LiveKeyItems(taskID string) ([]domain.Item, error) {
	rows, err := d.q.Query(
		`SELECT `+itemColumns+` FROM items
		 WHERE item_type = 'key' AND status = 'available' AND properties_task_id = ?
		 ORDER BY created_at`,
		taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// AvailableItemOfType returns the oldest available item of the given type
// owned by the user (used for universal-key consumption), or nil.
func (d *DB) AvailableItemOfType(ownerID, typeName string) (*domain.Item, error) {
	row := d.q.QueryRow(
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_id = ? AND item_type = ? AND status = 'available'
		 ORDER BY created_at LIMIT 1`,
		ownerID, typeName,
	)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

// MarkItemUsed burns an item: status used, detached timestamp recorded.
func (d *DB) MarkItemUsed(id string, at time.Time) error {
	res, err := d.q.Exec(
		`UPDATE items SET status = 'used', used_at = ? WHERE id = ? AND status = 'available'`,
		at.Unix(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrKeyUnusable
	}
	return nil
}

// KeyItemsHeldBy returns all available key items in a user's inventory.
func (d *DB) KeyItemsHeldBy(ownerID string) ([]domain.Item, error) {
	rows, err := d.q.Query(
		`SELECT `+itemColumns+` FROM items
		 WHERE owner_id = ? AND item_type = 'key' AND status = 'available'
		 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// CountForeignKeysHeld counts available key items the user holds that are
// bound to other users' tasks, the key-collection bonus input.
func (d *DB) CountForeignKeysHeld(userID string) (int, error) {
	var n int
	err := d.q.QueryRow(
		`SELECT COUNT(*) FROM items i
		 JOIN tasks t ON t.id = i.properties_task_id
		 WHERE i.item_type = 'key' AND i.status = 'available'
		   AND i.owner_id = ? AND t.user_id != ?`,
		userID, userID,
	).Scan(&n)
	return n, err
}

func scanItem(s scanner) (*domain.Item, error) {
	var it domain.Item
	var props string
	var taskID sql.NullString
	var createdAt int64
	var usedAt sql.NullInt64

	err := s.Scan(&it.ID, &it.TypeName, &it.OwnerID, &it.Status, &props, &taskID, &createdAt, &usedAt)
	if err != nil {
		return nil, err
	}
	it.Properties = mapFromJSON(props)
	it.CreatedAt = time.Unix(createdAt, 0).UTC()
	it.UsedAt = timeFromNull(usedAt)
	return &it, nil
}

// ─── Legacy TaskKey Records ─────────────────────────────────────────────────

// InsertTaskKey creates the legacy one-to-one key record.
// Fails if the task already has one (unique task_id).
func (d *DB) InsertTaskKey(k domain.TaskKey) error {
	_, err := d.q.Exec(
		`INSERT INTO task_keys (id, task_id, holder_id, status, created_at, used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, k.TaskID, k.HolderID, string(k.Status), k.CreatedAt.Unix(), nullableUnix(k.UsedAt),
	)
	return err
}

// GetTaskKey returns the legacy key record for a task, if one exists.
func (d *DB) GetTaskKey(taskID string) (*domain.TaskKey, error) {
	var k domain.TaskKey
	var createdAt int64
	var usedAt sql.NullInt64
	err := d.q.QueryRow(
		`SELECT id, task_id, holder_id, status, created_at, used_at
		 FROM task_keys WHERE task_id = ?`, taskID,
	).Scan(&k.ID, &k.TaskID, &k.HolderID, &k.Status, &createdAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	k.CreatedAt = time.Unix(createdAt, 0).UTC()
	k.UsedAt = timeFromNull(usedAt)
	return &k, nil
}

// MarkTaskKeyUsed retires the legacy key record alongside item destruction.
func (d *DB) MarkTaskKeyUsed(taskID string, at time.Time) error {
	_, err := d.q.Exec(
		`UPDATE task_keys SET status = 'used', used_at = ? WHERE task_id = ? AND status = 'active'`,
		at.Unix(), taskID,
	)
	return err
}
