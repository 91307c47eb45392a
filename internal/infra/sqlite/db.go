// Package sqlite provides SQLite-based persistent storage for Lockup.
// Uses WAL mode for concurrent reads and crash-safe writes. All mutation
// paths run through Transact, which serializes writers so per-task state
// transitions and their timeline events commit atomically.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// DB wraps a SQLite connection with WAL mode and migrations.
// A tx-scoped DB (inside Transact) shares the same methods but routes
// through the open transaction.
type DB struct {
	root *sql.DB // nil inside a transaction scope
	q    dbtx
	mu   *sync.Mutex
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{root: db, q: db, mu: &sync.Mutex{}}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.root.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.root.Ping()
}

// Transact runs fn inside a serialized write transaction. The DB handle
// passed to fn routes every repository method through the transaction, so a
// state mutation and the timeline event explaining it commit together.
// Must not be nested.
func (d *DB) Transact(fn func(tx *DB) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.root.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&DB{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WriteTx runs fn transactionally. On a tx-scoped handle it runs fn inline,
// so services built over a transaction compose without nesting; on the root
// handle it opens a fresh Transact.
func (d *DB) WriteTx(fn func(tx *DB) error) error {
	if d.root == nil {
		return fn(d)
	}
	return d.Transact(fn)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Tasks: one row per lock/board task, both variants share the table.
		`CREATE TABLE IF NOT EXISTS tasks (
			id                    TEXT PRIMARY KEY,
			user_id               TEXT NOT NULL,
			task_type             TEXT NOT NULL,
			title                 TEXT NOT NULL,
			description           TEXT NOT NULL DEFAULT '',
			status                TEXT NOT NULL,
			duration_type         TEXT,
			duration_value        INTEGER,
			duration_max          INTEGER,
			difficulty            TEXT,
			unlock_type           TEXT,
			strict_mode           BOOLEAN DEFAULT 0,
			vote_threshold        INTEGER,
			vote_agreement_ratio  REAL,
			voting_duration       INTEGER DEFAULT 10,
			voting_start_time     INTEGER,
			voting_end_time       INTEGER,
			reward                INTEGER,
			deadline              INTEGER,
			max_duration          INTEGER,
			max_participants      INTEGER,
			taker_id              TEXT,
			taken_at              INTEGER,
			completion_proof      TEXT,
			start_time            INTEGER,
			end_time              INTEGER,
			completed_at          INTEGER,
			is_frozen             BOOLEAN DEFAULT 0,
			frozen_at             INTEGER,
			frozen_end_time       INTEGER,
			total_frozen_seconds  INTEGER NOT NULL DEFAULT 0,
			last_hourly_reward_at INTEGER,
			total_hourly_rewards  INTEGER NOT NULL DEFAULT 0,
			created_at            INTEGER NOT NULL,
			updated_at            INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_type_status ON tasks(task_type, status)`,

		// Store items: generic inventory objects with a JSON properties bag.
		// The key component finds a task's live key via properties_task_id.
		`CREATE TABLE IF NOT EXISTS items (
			id                 TEXT PRIMARY KEY,
			item_type          TEXT NOT NULL,
			owner_id           TEXT NOT NULL,
			status             TEXT NOT NULL DEFAULT 'available',
			properties         TEXT NOT NULL DEFAULT '{}',
			properties_task_id TEXT,
			created_at         INTEGER NOT NULL,
			used_at            INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_items_task ON items(properties_task_id, status)`,

		// Legacy one-to-one key records, kept in sync for vote-unlock tasks.
		`CREATE TABLE IF NOT EXISTS task_keys (
			id         TEXT PRIMARY KEY,
			task_id    TEXT NOT NULL UNIQUE,
			holder_id  TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL,
			used_at    INTEGER
		)`,

		// Votes: one per (task, voter).
		`CREATE TABLE IF NOT EXISTS task_votes (
			id         TEXT PRIMARY KEY,
			task_id    TEXT NOT NULL,
			voter_id   TEXT NOT NULL,
			agree      BOOLEAN NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(task_id, voter_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_task ON task_votes(task_id)`,

		// Timeline: append-only audit log, totally ordered per task.
		`CREATE TABLE IF NOT EXISTS timeline_events (
			id                  TEXT PRIMARY KEY,
			task_id             TEXT NOT NULL,
			event_type          TEXT NOT NULL,
			user_id             TEXT,
			time_change_minutes INTEGER,
			previous_end_time   INTEGER,
			new_end_time        INTEGER,
			description         TEXT NOT NULL DEFAULT '',
			metadata            TEXT NOT NULL DEFAULT '{}',
			created_at          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_task ON timeline_events(task_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_type ON timeline_events(event_type, created_at)`,

		// Time rollbacks: one row per 30-minute restore.
		`CREATE TABLE IF NOT EXISTS time_rollbacks (
			id                  TEXT PRIMARY KEY,
			task_id             TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			rollback_start_time INTEGER NOT NULL,
			rollback_end_time   INTEGER NOT NULL,
			original_end_time   INTEGER,
			restored_end_time   INTEGER,
			reverted_events     TEXT NOT NULL DEFAULT '[]',
			created_at          INTEGER NOT NULL
		)`,

		// Hourly rewards: one immutable row per (task, hour_count).
		`CREATE TABLE IF NOT EXISTS hourly_rewards (
			id            TEXT PRIMARY KEY,
			task_id       TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			reward_amount INTEGER NOT NULL,
			hour_count    INTEGER NOT NULL,
			created_at    INTEGER NOT NULL,
			UNIQUE(task_id, hour_count)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hourly_task ON hourly_rewards(task_id, created_at)`,

		// Coin ledger: double-entry bookkeeping per account.
		`CREATE TABLE IF NOT EXISTS coin_ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			type        TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			task_id     TEXT,
			description TEXT,
			balance     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON coin_ledger(account)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_ts ON coin_ledger(timestamp)`,

		// Pinning queue: bounded slots, FIFO admission, history kept.
		`CREATE TABLE IF NOT EXISTS pinned_users (
			id               TEXT PRIMARY KEY,
			task_id          TEXT NOT NULL,
			pinned_user_id   TEXT NOT NULL,
			key_holder_id    TEXT,
			coins_spent      INTEGER NOT NULL DEFAULT 0,
			duration_minutes INTEGER NOT NULL,
			is_active        BOOLEAN NOT NULL DEFAULT 1,
			position         INTEGER,
			created_at       INTEGER NOT NULL,
			expires_at       INTEGER NOT NULL,
			activated_at     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_active ON pinned_users(is_active, position)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_expires ON pinned_users(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pins_user ON pinned_users(pinned_user_id, is_active)`,

		// Peer overtime rate-limit trail.
		`CREATE TABLE IF NOT EXISTS overtime_actions (
			id               TEXT PRIMARY KEY,
			task_id          TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			publisher_id     TEXT NOT NULL,
			overtime_minutes INTEGER NOT NULL,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_overtime_pair ON overtime_actions(user_id, publisher_id, created_at)`,

		// Board task participants (multi-taker variant).
		`CREATE TABLE IF NOT EXISTS task_participants (
			id              TEXT PRIMARY KEY,
			task_id         TEXT NOT NULL,
			participant_id  TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'joined',
			submission_text TEXT NOT NULL DEFAULT '',
			submitted_at    INTEGER,
			reviewed_at     INTEGER,
			review_comment  TEXT NOT NULL DEFAULT '',
			reward_amount   INTEGER,
			joined_at       INTEGER NOT NULL,
			UNIQUE(task_id, participant_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_task ON task_participants(task_id, status)`,

		// Active user effects (lucky charm, influence crown, ...).
		`CREATE TABLE IF NOT EXISTS user_effects (
			user_id    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			multiplier REAL NOT NULL DEFAULT 0,
			boost      REAL NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY(user_id, kind)
		)`,

		// Notification log (best-effort side channel).
		`CREATE TABLE IF NOT EXISTS notifications (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			recipient_id TEXT NOT NULL,
			actor_id     TEXT,
			type         TEXT NOT NULL,
			title        TEXT NOT NULL,
			message      TEXT NOT NULL,
			related_type TEXT,
			related_id   TEXT,
			extra        TEXT NOT NULL DEFAULT '{}',
			priority     TEXT NOT NULL DEFAULT 'normal',
			created_at   INTEGER NOT NULL,
			read         BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_recipient ON notifications(recipient_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.q.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// nullableUnix converts a time to a nullable Unix timestamp.
func nullableUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

// timeFromNull converts a nullable Unix timestamp back to a time.
func timeFromNull(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

// nullStr converts an empty string to NULL.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// strFromNull unwraps a nullable string.
func strFromNull(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

// jsonMap marshals a string map for storage; nil becomes "{}".
func jsonMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// mapFromJSON unmarshals a stored JSON object, tolerating junk.
func mapFromJSON(s string) map[string]string {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
