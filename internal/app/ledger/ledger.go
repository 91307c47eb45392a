// Package ledger implements the double-entry coin ledger.
// Every coin operation creates matched DEBIT/CREDIT entries against a user
// account and the system pool. SUM(debits) == SUM(credits) is an invariant.
package ledger

import (
	"fmt"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// SystemPool is the counter-account for every user movement.
const SystemPool = "system_pool"

// Service manages the coin economy. It satisfies domain.CoinLedger. A
// Service built over a tx-scoped DB joins the caller's transaction, so
// coin movements commit atomically with the state transition that caused
// them.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a ledger service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func userAccount(userID string) string {
	return "user:" + userID
}

// Balance returns a user's current coin balance.
func (s *Service) Balance(userID string) (int64, error) {
	return s.db.AccountBalance(userAccount(userID))
}

// History returns recent ledger entries for a user, newest first.
func (s *Service) History(userID string, limit int) ([]domain.LedgerEntry, error) {
	return s.db.LedgerEntries(userAccount(userID), limit)
}

// AddCoins credits a user from the system pool and returns the new balance.
// Both ledger sides commit atomically.
func (s *Service) AddCoins(userID string, amount int64, txType domain.TxType, taskID, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("add %d coins: %w", amount, domain.ErrNonPositiveAmount)
	}

	var newBal int64
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		now := s.now()

		poolBal, err := tx.AccountBalance(SystemPool)
		if err != nil {
			return fmt.Errorf("get pool balance: %w", err)
		}
		userBal, err := tx.AccountBalance(userAccount(userID))
		if err != nil {
			return fmt.Errorf("get user balance: %w", err)
		}

		// DEBIT system_pool (source of coins)
		_, err = tx.InsertLedgerEntry(domain.LedgerEntry{
			Timestamp:   now,
			Type:        txType,
			EntryType:   domain.EntryDebit,
			Account:     SystemPool,
			Amount:      amount,
			TaskID:      taskID,
			Description: description,
			Balance:     poolBal - amount,
		})
		if err != nil {
			return fmt.Errorf("debit system_pool: %w", err)
		}

		// CREDIT user account (destination)
		newBal = userBal + amount
		_, err = tx.InsertLedgerEntry(domain.LedgerEntry{
			Timestamp:   now,
			Type:        txType,
			EntryType:   domain.EntryCredit,
			Account:     userAccount(userID),
			Amount:      amount,
			TaskID:      taskID,
			Description: description,
			Balance:     newBal,
		})
		if err != nil {
			return fmt.Errorf("credit user account: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.CoinsMoved.WithLabelValues(string(txType), "credit").Add(float64(amount))
	return newBal, nil
}

// DeductCoins debits a user into the system pool and returns the new
// balance. Fails with ErrInsufficientCoins before writing anything.
func (s *Service) DeductCoins(userID string, amount int64, txType domain.TxType, taskID, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct %d coins: %w", amount, domain.ErrNonPositiveAmount)
	}

	var newBal int64
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		userBal, err := tx.AccountBalance(userAccount(userID))
		if err != nil {
			return fmt.Errorf("get user balance: %w", err)
		}
		if userBal < amount {
			return fmt.Errorf("have %d, need %d: %w", userBal, amount, domain.ErrInsufficientCoins)
		}
		poolBal, err := tx.AccountBalance(SystemPool)
		if err != nil {
			return fmt.Errorf("get pool balance: %w", err)
		}

		now := s.now()

		// DEBIT user account
		newBal = userBal - amount
		_, err = tx.InsertLedgerEntry(domain.LedgerEntry{
			Timestamp:   now,
			Type:        txType,
			EntryType:   domain.EntryDebit,
			Account:     userAccount(userID),
			Amount:      amount,
			TaskID:      taskID,
			Description: description,
			Balance:     newBal,
		})
		if err != nil {
			return fmt.Errorf("debit user account: %w", err)
		}

		// CREDIT system_pool
		_, err = tx.InsertLedgerEntry(domain.LedgerEntry{
			Timestamp:   now,
			Type:        txType,
			EntryType:   domain.EntryCredit,
			Account:     SystemPool,
			Amount:      amount,
			TaskID:      taskID,
			Description: description,
			Balance:     poolBal + amount,
		})
		if err != nil {
			return fmt.Errorf("credit system_pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.CoinsMoved.WithLabelValues(string(txType), "debit").Add(float64(amount))
	return newBal, nil
}
