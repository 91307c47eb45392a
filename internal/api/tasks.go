package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lockup-labs/lockup/internal/app/lifecycle"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// ─── Task handlers ──────────────────────────────────────────────────────────

type createTaskRequest struct {
	Type        string `json:"task_type"`
	Title       string `json:"title"`
	Description string `json:"description"`

	DurationType  string `json:"duration_type"`
	DurationValue int    `json:"duration_value"`
	DurationMax   int    `json:"duration_max"`
	Difficulty    string `json:"difficulty"`
	UnlockType    string `json:"unlock_type"`
	StrictMode    bool   `json:"strict_mode"`
	Pending       bool   `json:"pending"`

	VoteThreshold      int     `json:"vote_threshold"`
	VoteAgreementRatio float64 `json:"vote_agreement_ratio"`
	VotingDuration     int     `json:"voting_duration"`

	Reward          int64  `json:"reward"`
	Deadline        string `json:"deadline"` // RFC 3339
	MaxDuration     int    `json:"max_duration"`
	MaxParticipants int    `json:"max_participants"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}

	params := lifecycle.CreateParams{
		UserID:             actor(r),
		Type:               domain.TaskType(req.Type),
		Title:              req.Title,
		Description:        req.Description,
		DurationType:       domain.DurationType(req.DurationType),
		DurationValue:      req.DurationValue,
		DurationMax:        req.DurationMax,
		Difficulty:         domain.Difficulty(req.Difficulty),
		UnlockType:         domain.UnlockType(req.UnlockType),
		StrictMode:         req.StrictMode,
		Pending:            req.Pending,
		VoteThreshold:      req.VoteThreshold,
		VoteAgreementRatio: req.VoteAgreementRatio,
		VotingDuration:     req.VotingDuration,
		Reward:             req.Reward,
		MaxDuration:        req.MaxDuration,
		MaxParticipants:    req.MaxParticipants,
	}
	if req.Deadline != "" {
		dl, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeError(w, err)
			return
		}
		params.Deadline = dl
	}

	task, err := s.Lifecycle.Create(params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleListTasks also runs the due-resolution sweeps first, so listings
// never show a stale vote or board outcome.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.resolveDue()

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	tasks, err := s.Lifecycle.List(sqlite.TaskFilter{
		Type:   domain.TaskType(q.Get("type")),
		Status: domain.TaskStatus(q.Get("status")),
		UserID: q.Get("user_id"),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	s.resolveDue()

	task, err := s.Lifecycle.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.Start(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.Complete(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.Stop(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUniversalKey(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.UseUniversalKey(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ─── Time accounting handlers ───────────────────────────────────────────────

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	if err := s.Accounting.Freeze(chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "frozen"})
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	if err := s.Accounting.Unfreeze(chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handleOvertime(w http.ResponseWriter, r *http.Request) {
	minutes, err := s.Accounting.PeerOvertime(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"overtime_minutes": minutes})
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Accounting.ManualAdjust(chi.URLParam(r, "id"), actor(r), req.Minutes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"minutes": req.Minutes})
}

// ─── Voting handlers ────────────────────────────────────────────────────────

func (s *Server) handleStartVoting(w http.ResponseWriter, r *http.Request) {
	if err := s.Voting.StartVoting(chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "voting"})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agree bool `json:"agree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Voting.CastVote(chi.URLParam(r, "id"), actor(r), req.Agree); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"agree": req.Agree})
}

// ─── Timeline handlers ──────────────────────────────────────────────────────

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.Timeline.Events(chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	rb, err := s.Timeline.Rollback(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rb)
}

// ─── Board handlers ─────────────────────────────────────────────────────────

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.Take(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if err := s.Lifecycle.Join(chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Proof string `json:"completion_proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Lifecycle.Submit(chi.URLParam(r, "id"), actor(r), req.Proof); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.Approve(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	task, err := s.Lifecycle.Reject(chi.URLParam(r, "id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	parts, err := s.Lifecycle.Participants(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": parts})
}

func (s *Server) handleReviewParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approve bool   `json:"approve"`
		Comment string `json:"comment"`
		Reward  int64  `json:"reward_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	err := s.Lifecycle.ReviewParticipant(chi.URLParam(r, "id"), actor(r),
		chi.URLParam(r, "uid"), req.Approve, req.Comment, req.Reward)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

// ─── Pinning handlers ───────────────────────────────────────────────────────

func (s *Server) handleAddPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID          string `json:"task_id"`
		Coins           int64  `json:"coins"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	pin, err := s.Pinning.AddToQueue(req.TaskID, actor(r), req.Coins,
		time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pin)
}

func (s *Server) handlePinQueue(w http.ResponseWriter, r *http.Request) {
	pins, err := s.Pinning.Queue()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queue": pins})
}

// ─── User handlers ──────────────────────────────────────────────────────────

func (s *Server) handleHeldKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Keyring.HeldKeys(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	balance, err := s.Ledger.Balance(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.Ledger.History(userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"balance": balance,
		"entries": entries,
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	ns, err := s.Notify.For(chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": ns})
}

// ─── Sweep handler ──────────────────────────────────────────────────────────

// handleSweep runs every due sweep once: vote resolution, hourly rewards,
// pin queue rebalance, board settlement.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	votes, err := s.Voting.ResolveDue()
	if err != nil {
		writeError(w, err)
		return
	}
	hours, err := s.Reward.ProcessHourly()
	if err != nil {
		writeError(w, err)
		return
	}
	pins, err := s.Pinning.UpdateQueue()
	if err != nil {
		writeError(w, err)
		return
	}
	boards, err := s.Lifecycle.SettleDue()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"votes_resolved":  votes,
		"hours_disbursed": hours,
		"pin_queue":       pins,
		"boards_settled":  boards,
	})
}

// resolveDue opportunistically settles due votes and board tasks before a
// read, so outcomes are never stale. Errors are ignored; the periodic
// sweeps will retry.
func (s *Server) resolveDue() {
	s.Voting.ResolveDue()
	s.Lifecycle.SettleDue()
}
