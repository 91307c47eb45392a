package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
)

// ─── User effects ───────────────────────────────────────────────────────────

// UpsertEffect grants or refreshes a time-boxed effect, one row per
// (user, kind).
func (d *DB) UpsertEffect(m domain.Modifier) error {
	_, err := d.q.Exec(
		`INSERT INTO user_effects (user_id, kind, multiplier, boost, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, kind) DO UPDATE SET
			multiplier = excluded.multiplier,
			boost = excluded.boost,
			expires_at = excluded.expires_at`,
		m.UserID, string(m.Kind), m.Multiplier, m.Boost, m.ExpiresAt.Unix(),
	)
	return err
}

// ActiveEffect returns the user's effect of the given kind if it has not
// expired. Returns (nil, nil) when absent or lapsed.
func (d *DB) ActiveEffect(userID string, kind domain.EffectKind, now time.Time) (*domain.Modifier, error) {
	var m domain.Modifier
	var expires int64
	err := d.q.QueryRow(
		`SELECT user_id, kind, multiplier, boost, expires_at
		 FROM user_effects WHERE user_id = ? AND kind = ? AND expires_at > ?`,
		userID, string(kind), now.Unix(),
	).Scan(&m.UserID, &m.Kind, &m.Multiplier, &m.Boost, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ExpiresAt = time.Unix(expires, 0).UTC()
	return &m, nil
}
