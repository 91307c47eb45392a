package domain

import "time"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// Boundaries between the engines and their collaborators. The reward and
// vote engines receive these injected so they stay pure given a provider,
// rather than reaching for ambient lookups.

// EffectProvider answers "does this user have an active effect of this kind
// right now". Effects are time-boxed and externally managed by the store.
type EffectProvider interface {
	ActiveModifier(userID string, kind EffectKind, now time.Time) (*Modifier, error)
}

// Notifier delivers best-effort user notifications. Implementations must
// never fail the calling business transaction; errors are logged and
// swallowed by callers.
type Notifier interface {
	Notify(n Notification) error
}

// CoinLedger is the currency collaborator: atomic add/deduct with audit
// entries. Deduct returns ErrInsufficientCoins without mutating on shortfall.
type CoinLedger interface {
	AddCoins(userID string, amount int64, txType TxType, taskID, description string) (int64, error)
	DeductCoins(userID string, amount int64, txType TxType, taskID, description string) (int64, error)
	Balance(userID string) (int64, error)
}
