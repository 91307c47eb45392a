// Package voting runs the time-boxed vote windows that gate vote-unlock
// tasks. Resolution is lazy and idempotent: outcomes are pure functions of
// wall-clock time and stored votes, and a resolved task leaves the 'voting'
// status that the due-query filters on, so redundant sweeps no-op.
package voting

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/effects"
	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// DefaultVotingDuration applies when the task carries none.
const DefaultVotingDuration = 10 * time.Minute

// Service manages voting windows, vote casting, and resolution.
type Service struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewService creates a voting service.
func NewService(db *sqlite.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StartVoting opens a voting window on a vote-unlock task. Owner only, and
// only after the nominal countdown has lapsed. Votes from any prior round
// are cleared.
func (s *Service) StartVoting(taskID, actorID string) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != actorID {
			return domain.ErrNotOwner
		}
		if task.UnlockType != domain.UnlockVote {
			return domain.ErrNotVoteUnlock
		}
		if task.Status != domain.StatusActive {
			return domain.ErrWrongStatus
		}
		if task.IsFrozen {
			return domain.ErrTaskFrozen
		}

		now := s.now()
		if !task.CountdownLapsed(now) {
			return domain.ErrCountdownRunning
		}

		if _, err := tx.DeleteVotesForTask(taskID); err != nil {
			return fmt.Errorf("clear prior votes: %w", err)
		}

		window := time.Duration(task.VotingDuration) * time.Minute
		if window <= 0 {
			window = DefaultVotingDuration
		}
		task.Status = domain.StatusVoting
		task.VotingStartTime = now
		task.VotingEndTime = now.Add(window)
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:          uuid.NewString(),
			TaskID:      taskID,
			Type:        domain.EventVotingStarted,
			UserID:      actorID,
			Description: fmt.Sprintf("voting open for %d min", int(window.Minutes())),
			CreatedAt:   now,
		})
	})
}

// CastVote records one agree/disagree vote. One vote per (task, voter);
// owners cannot vote on their own task.
func (s *Service) CastVote(taskID, voterID string, agree bool) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Status != domain.StatusVoting {
			return domain.ErrVotingNotOpen
		}
		if task.UserID == voterID {
			return domain.ErrOwnTaskVote
		}

		now := s.now()
		if !task.VotingEndTime.IsZero() && !now.Before(task.VotingEndTime) {
			return domain.ErrVotingClosed
		}

		voted, err := tx.HasVoted(taskID, voterID)
		if err != nil {
			return fmt.Errorf("check prior vote: %w", err)
		}
		if voted {
			return domain.ErrAlreadyVoted
		}

		err = tx.InsertVote(domain.TaskVote{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			VoterID:   voterID,
			Agree:     agree,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}

		err = tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Type:      domain.EventTaskVoted,
			UserID:    voterID,
			Metadata:  map[string]string{"agree": strconv.FormatBool(agree)},
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		metrics.VotesCast.WithLabelValues(strconv.FormatBool(agree)).Inc()
		return nil
	})
}

// Tally computes the weighted count at one instant. Each vote counts 1, or
// the voter's active influence multiplier. Weight is deliberately
// recomputed at tally time rather than snapshotted at cast time.
func Tally(task *domain.LockTask, votes []domain.TaskVote, provider domain.EffectProvider, at time.Time) (*domain.VoteTally, error) {
	t := &domain.VoteTally{TaskID: task.ID, VoterCount: len(votes), ResolvedAt: at}
	for _, v := range votes {
		w, err := effects.InfluenceWeight(provider, v.VoterID, at)
		if err != nil {
			return nil, fmt.Errorf("weight for voter %s: %w", v.VoterID, err)
		}
		t.TotalWeight += w
		if v.Agree {
			t.AgreeWeight += w
		}
	}
	if t.TotalWeight > 0 {
		t.AgreementPct = t.AgreeWeight / t.TotalWeight
	}
	t.ThresholdMet = t.TotalWeight >= float64(task.VoteThreshold)
	t.AgreementMet = t.AgreementPct >= task.VoteAgreementRatio
	t.Passed = t.ThresholdMet && t.AgreementMet
	return t, nil
}

// ResolveDue resolves every voting task whose window has closed. Safe to
// run redundantly: resolution moves the task out of 'voting', excluding it
// from the due query. Returns how many tasks were resolved.
func (s *Service) ResolveDue() (int, error) {
	due, err := s.db.VotingDueTasks(s.now())
	if err != nil {
		return 0, fmt.Errorf("list due votes: %w", err)
	}

	resolved := 0
	for i := range due {
		if err := s.resolve(due[i].ID); err != nil {
			log.Printf("voting: resolve task %s: %v", due[i].ID, err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (s *Service) resolve(taskID string) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		// Re-check under the transaction; a concurrent sweep may have won.
		if task.Status != domain.StatusVoting {
			return nil
		}

		now := s.now()
		if task.VotingEndTime.IsZero() || now.Before(task.VotingEndTime) {
			return nil
		}

		votes, err := tx.VotesForTask(taskID)
		if err != nil {
			return err
		}
		tally, err := Tally(task, votes, effects.NewService(tx), now)
		if err != nil {
			return err
		}

		mail := notify.NewService(tx).WithClock(s.now)
		if tally.Passed {
			task.Status = domain.StatusVotingPassed
			task.UpdatedAt = now
			if err := tx.UpdateTask(*task); err != nil {
				return err
			}
			err = tx.InsertTimelineEvent(domain.TimelineEvent{
				ID:     uuid.NewString(),
				TaskID: taskID,
				Type:   domain.EventVotePassed,
				Metadata: map[string]string{
					"total_weight": fmt.Sprintf("%.1f", tally.TotalWeight),
					"agree_weight": fmt.Sprintf("%.1f", tally.AgreeWeight),
				},
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			if err := mail.Notify(domain.Notification{
				RecipientID: task.UserID,
				Type:        "vote_passed",
				RelatedType: "task",
				RelatedID:   taskID,
			}); err != nil {
				log.Printf("voting: notify pass for task %s: %v", taskID, err)
			}
			metrics.VotesResolved.WithLabelValues("passed").Inc()
			return nil
		}

		// Fail: back to active with a difficulty-scaled penalty, window
		// cleared so a new round cannot start until the penalty elapses.
		penalty := task.VotePenaltyMinutes()
		prev := task.EndTime
		if task.IsFrozen {
			prev = task.FrozenEndTime
			task.FrozenEndTime = task.FrozenEndTime.Add(time.Duration(penalty) * time.Minute)
		} else {
			task.EndTime = now.Add(time.Duration(penalty) * time.Minute)
		}
		next := task.EndTime
		if task.IsFrozen {
			next = task.FrozenEndTime
		}

		task.Status = domain.StatusActive
		task.VotingStartTime = time.Time{}
		task.VotingEndTime = time.Time{}
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		err = tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:                uuid.NewString(),
			TaskID:            taskID,
			Type:              domain.EventVoteFailed,
			TimeChangeMinutes: penalty,
			PreviousEndTime:   prev,
			NewEndTime:        next,
			Description:       fmt.Sprintf("vote failed, +%d min penalty", penalty),
			CreatedAt:         now,
		})
		if err != nil {
			return err
		}
		if err := mail.Notify(domain.Notification{
			RecipientID: task.UserID,
			Type:        "vote_failed",
			RelatedType: "task",
			RelatedID:   taskID,
		}); err != nil {
			log.Printf("voting: notify fail for task %s: %v", taskID, err)
		}
		metrics.VotesResolved.WithLabelValues("failed").Inc()
		return nil
	})
}

// VerifyPassed re-checks the weighted tally for a vote-gated completion,
// defending against effect changes after the lazy resolution.
func (s *Service) VerifyPassed(task *domain.LockTask) error {
	if task.Status != domain.StatusVotingPassed && task.VotingEndTime.IsZero() {
		return domain.ErrVoteNotPassed
	}
	votes, err := s.db.VotesForTask(task.ID)
	if err != nil {
		return err
	}
	tally, err := Tally(task, votes, effects.NewService(s.db), s.now())
	if err != nil {
		return err
	}
	if !tally.Passed {
		return domain.ErrVoteNotPassed
	}
	return nil
}
