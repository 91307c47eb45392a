// Package effects looks up active, time-boxed user modifiers (lucky charm,
// influence crown). The vote and reward engines take this as an injected
// domain.EffectProvider so they stay pure given a provider.
package effects

import (
	"time"

	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// Service answers active-effect queries. Satisfies domain.EffectProvider.
type Service struct {
	db *sqlite.DB
}

// NewService creates an effects service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db}
}

// ActiveModifier returns the user's live effect of the given kind, or nil.
func (s *Service) ActiveModifier(userID string, kind domain.EffectKind, now time.Time) (*domain.Modifier, error) {
	return s.db.ActiveEffect(userID, kind, now)
}

// Grant gives or refreshes an effect lasting the given duration from now.
func (s *Service) Grant(userID string, kind domain.EffectKind, multiplier, boost float64, until time.Time) error {
	return s.db.UpsertEffect(domain.Modifier{
		UserID:     userID,
		Kind:       kind,
		Multiplier: multiplier,
		Boost:      boost,
		ExpiresAt:  until,
	})
}

// InfluenceWeight returns the voter's current vote weight: the influence
// crown multiplier when one is active, otherwise 1.
func InfluenceWeight(p domain.EffectProvider, voterID string, now time.Time) (float64, error) {
	mod, err := p.ActiveModifier(voterID, domain.EffectInfluenceCrown, now)
	if err != nil {
		return 0, err
	}
	if mod == nil {
		return 1, nil
	}
	if mod.Multiplier <= 0 {
		return domain.DefaultInfluenceMultiplier, nil
	}
	return mod.Multiplier, nil
}

// LuckyBoost returns the user's bonus-coin probability in [0,1], zero when
// no lucky charm is active.
func LuckyBoost(p domain.EffectProvider, userID string, now time.Time) (float64, error) {
	mod, err := p.ActiveModifier(userID, domain.EffectLuckyCharm, now)
	if err != nil {
		return 0, err
	}
	if mod == nil {
		return 0, nil
	}
	if mod.Boost > 1 {
		return 1, nil
	}
	return mod.Boost, nil
}
