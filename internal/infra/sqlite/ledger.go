package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── Coin Ledger ────────────────────────────────────────────────────────────
// Double-entry: each movement writes matched DEBIT/CREDIT rows and carries
// the account's running balance.

// InsertLedgerEntry adds one side of a coin movement.
func (d *DB) InsertLedgerEntry(entry domain.LedgerEntry) (int64, error) {
	result, err := d.q.Exec(
		`INSERT INTO coin_ledger (timestamp, type, entry_type, account, amount, task_id, description, balance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.Unix(), string(entry.Type), string(entry.EntryType),
		entry.Account, entry.Amount, nullStr(entry.TaskID), entry.Description, entry.Balance,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// AccountBalance returns the latest running balance for an account.
// Unknown accounts start at zero.
func (d *DB) AccountBalance(account string) (int64, error) {
	var balance sql.NullInt64
	err := d.q.QueryRow(
		`SELECT balance FROM coin_ledger WHERE account = ? ORDER BY id DESC LIMIT 1`,
		account,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Int64, nil
}

// LedgerEntries returns recent entries for an account, newest first.
func (d *DB) LedgerEntries(account string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := d.q.Query(
		`SELECT id, timestamp, type, entry_type, account, amount, task_id, description, balance
		 FROM coin_ledger WHERE account = ? ORDER BY id DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts int64
		var taskID, desc sql.NullString
		err := rows.Scan(&e.ID, &ts, &e.Type, &e.EntryType, &e.Account,
			&e.Amount, &taskID, &desc, &e.Balance)
		if err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		e.TaskID = strFromNull(taskID)
		e.Description = strFromNull(desc)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
