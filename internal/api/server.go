// Package api provides the HTTP server for Lockup.
// Conventional authenticated JSON endpoints over the task engine; business
// rejections surface as 4xx with a human-readable reason, never as silent
// no-ops.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lockup-labs/lockup/internal/app/accounting"
	"github.com/lockup-labs/lockup/internal/app/keyring"
	"github.com/lockup-labs/lockup/internal/app/ledger"
	"github.com/lockup-labs/lockup/internal/app/lifecycle"
	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/app/pinning"
	"github.com/lockup-labs/lockup/internal/app/reward"
	"github.com/lockup-labs/lockup/internal/app/timeline"
	"github.com/lockup-labs/lockup/internal/app/voting"
	"github.com/lockup-labs/lockup/internal/domain"
)

// Server is the Lockup HTTP API server.
type Server struct {
	Lifecycle  *lifecycle.Service
	Accounting *accounting.Service
	Voting     *voting.Service
	Reward     *reward.Service
	Pinning    *pinning.Service
	Timeline   *timeline.Service
	Keyring    *keyring.Service
	Ledger     *ledger.Service
	Notify     *notify.Service

	metricsEnabled bool
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.handleCreateTask)
			r.Get("/", s.handleListTasks)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Post("/start", s.handleStartTask)
				r.Post("/complete", s.handleCompleteTask)
				r.Post("/stop", s.handleStopTask)
				r.Post("/freeze", s.handleFreeze)
				r.Post("/unfreeze", s.handleUnfreeze)
				r.Post("/overtime", s.handleOvertime)
				r.Post("/adjust", s.handleAdjust)
				r.Post("/start-voting", s.handleStartVoting)
				r.Post("/vote", s.handleVote)
				r.Post("/rollback", s.handleRollback)
				r.Get("/timeline", s.handleTimeline)
				r.Post("/take", s.handleTake)
				r.Post("/join", s.handleJoin)
				r.Post("/submit", s.handleSubmit)
				r.Post("/approve", s.handleApprove)
				r.Post("/reject", s.handleReject)
				r.Get("/participants", s.handleParticipants)
				r.Post("/participants/{uid}/review", s.handleReviewParticipant)
				r.Post("/universal-key", s.handleUniversalKey)
			})
		})

		r.Route("/pins", func(r chi.Router) {
			r.Post("/", s.handleAddPin)
			r.Get("/queue", s.handlePinQueue)
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/keys", s.handleHeldKeys)
			r.Get("/ledger", s.handleLedger)
			r.Get("/notifications", s.handleNotifications)
		})

		r.Post("/sweep", s.handleSweep)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// actor extracts the calling user from the request. Authentication itself
// is terminated upstream; the gateway forwards the identity header.
func actor(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to its HTTP status with the reason string.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"type":    "error",
		},
	})
}

// errStatus classifies domain errors onto 4xx codes; anything unknown is a
// server error.
func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrKeyNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrPinNotFound),
		errors.Is(err, domain.ErrNotParticipant):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotTaker),
		errors.Is(err, domain.ErrNotKeyHolder):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrAlreadyPinned),
		errors.Is(err, domain.ErrAlreadyJoined),
		errors.Is(err, domain.ErrKeyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWrongStatus),
		errors.Is(err, domain.ErrNotLockTask),
		errors.Is(err, domain.ErrNotBoardTask),
		errors.Is(err, domain.ErrTaskFrozen),
		errors.Is(err, domain.ErrTaskNotFrozen),
		errors.Is(err, domain.ErrCountdownRunning),
		errors.Is(err, domain.ErrCountdownFinished),
		errors.Is(err, domain.ErrNotVoteUnlock),
		errors.Is(err, domain.ErrVotingNotOpen),
		errors.Is(err, domain.ErrVotingStillOpen),
		errors.Is(err, domain.ErrVotingClosed),
		errors.Is(err, domain.ErrVoteNotPassed),
		errors.Is(err, domain.ErrOwnTaskVote),
		errors.Is(err, domain.ErrKeyUnusable),
		errors.Is(err, domain.ErrInsufficientCoins),
		errors.Is(err, domain.ErrNonPositiveAmount),
		errors.Is(err, domain.ErrOwnTaskOvertime),
		errors.Is(err, domain.ErrOvertimeCooldown),
		errors.Is(err, domain.ErrOwnBoardTask),
		errors.Is(err, domain.ErrBoardTaskFull),
		errors.Is(err, domain.ErrProofRequired),
		errors.Is(err, domain.ErrNothingToRollback):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
