// Package metrics provides Prometheus metrics for Lockup.
// Counters, gauges, and histograms covering the task state machine, the
// coin ledger, voting, rewards, and the pinning queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCreated tracks created tasks by type.
var TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "tasks_created_total",
	Help:      "Total tasks created.",
}, []string{"type"})

// TasksCompleted tracks completed tasks by type.
var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
}, []string{"type"})

// TasksFailed tracks failed tasks by type and reason.
var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "tasks_failed_total",
	Help:      "Total failed tasks.",
}, []string{"type", "reason"})

// TasksRunning tracks lock tasks currently accruing time.
var TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lockup",
	Name:      "tasks_running",
	Help:      "Number of lock tasks currently running.",
})

// TimeAdjustments tracks countdown changes by event type.
var TimeAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "time_adjustments_total",
	Help:      "Total countdown adjustments applied.",
}, []string{"event"})

// ─── Coins ──────────────────────────────────────────────────────────────────

// CoinsMoved tracks coin flow by transaction type and direction.
var CoinsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "coins_moved_total",
	Help:      "Total coins moved through the ledger.",
}, []string{"type", "direction"})

// HourlyRewardsPaid tracks hourly reward disbursements.
var HourlyRewardsPaid = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "hourly_rewards_paid_total",
	Help:      "Total hourly reward disbursements.",
})

// ─── Voting ─────────────────────────────────────────────────────────────────

// VotesCast tracks cast votes by agreement.
var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "votes_cast_total",
	Help:      "Total votes cast.",
}, []string{"agree"})

// VotesResolved tracks resolved voting rounds by outcome.
var VotesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "votes_resolved_total",
	Help:      "Total voting rounds resolved.",
}, []string{"outcome"})

// ─── Pinning ────────────────────────────────────────────────────────────────

// PinsActive tracks occupied pinning slots.
var PinsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lockup",
	Name:      "pins_active",
	Help:      "Number of occupied pinning slots.",
})

// PinsQueued tracks users waiting for a pinning slot.
var PinsQueued = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lockup",
	Name:      "pins_queued",
	Help:      "Number of users queued for a pinning slot.",
})

// PinsExpired tracks pins deactivated by the queue sweep.
var PinsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "pins_expired_total",
	Help:      "Total pins expired by the queue sweep.",
})

// ─── Sweeps ─────────────────────────────────────────────────────────────────

// SweepDuration tracks background sweep duration by sweep name.
var SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lockup",
	Name:      "sweep_duration_seconds",
	Help:      "Background sweep duration.",
	Buckets:   prometheus.DefBuckets,
}, []string{"sweep"})

// SweepErrors tracks background sweep failures by sweep name.
var SweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lockup",
	Name:      "sweep_errors_total",
	Help:      "Total background sweep failures.",
}, []string{"sweep"})
