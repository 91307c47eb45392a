package domain

import "time"

// HourlyReward is one immutable disbursement record per (task, hour_count).
// Hour numbers are never re-disbursed; together with the task's
// total_hourly_rewards watermark this makes each hour a single-payment event.
type HourlyReward struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"reward_amount"`
	HourCount  int       `json:"hour_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// TxType categorizes ledger movements.
type TxType string

const (
	TxHourlyReward    TxType = "hourly_reward"
	TxCompletionBonus TxType = "completion_bonus"
	TxBoardReward     TxType = "board_reward"
	TxFreezeFee       TxType = "freeze_fee"
	TxUnfreezeFee     TxType = "unfreeze_fee"
	TxPinPurchase     TxType = "pin_purchase"
	TxAdjustment      TxType = "adjustment"
)

// EntryType marks a double-entry ledger side.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// LedgerEntry is one side of a double-entry coin movement. Every operation
// creates matched DEBIT/CREDIT rows; SUM(debits) == SUM(credits) is an
// invariant of the ledger.
type LedgerEntry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Type        TxType    `json:"type"`
	EntryType   EntryType `json:"entry_type"`
	Account     string    `json:"account"` // "user:<id>" or "system_pool"
	Amount      int64     `json:"amount"`
	TaskID      string    `json:"task_id,omitempty"`
	Description string    `json:"description,omitempty"`
	Balance     int64     `json:"balance"` // account balance after this entry
}
