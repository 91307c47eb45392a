package domain

import "time"

// EffectKind is the closed set of time-boxed user modifiers the engine
// consumes. New kinds require a new constant and explicit handling; there
// is no open string registry.
type EffectKind string

const (
	EffectLuckyCharm     EffectKind = "lucky_charm"     // probability boost on hourly rewards
	EffectInfluenceCrown EffectKind = "influence_crown" // vote weight multiplier
	EffectEnergyPotion   EffectKind = "energy_potion"   // reserved by the store app
)

// Modifier is an active, time-boxed effect on a user.
type Modifier struct {
	UserID     string     `json:"user_id"`
	Kind       EffectKind `json:"kind"`
	Multiplier float64    `json:"multiplier"` // influence crown: vote weight
	Boost      float64    `json:"boost"`      // lucky charm: probability [0,1]
	ExpiresAt  time.Time  `json:"expires_at"`
}

// ActiveAt reports whether the modifier is live at the given instant.
func (m *Modifier) ActiveAt(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}

// DefaultInfluenceMultiplier is the vote weight granted by an influence
// crown when the effect does not carry its own multiplier.
const DefaultInfluenceMultiplier = 3.0
