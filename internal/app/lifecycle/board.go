package lifecycle

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/notify"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/metrics"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

// ─── Board tasks ────────────────────────────────────────────────────────────
// Single-taker boards flow open → taken → submitted → completed|failed on
// the task row itself. Multi-participant boards keep the row open and track
// each taker through task_participants.

// Take claims an open single-taker board task. The taker's working deadline
// is clamped to max_duration hours from now when that is sooner than the
// posted deadline.
func (s *Service) Take(taskID, takerID string) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Type != domain.TaskBoard {
			return domain.ErrNotBoardTask
		}
		if task.UserID == takerID {
			return domain.ErrOwnBoardTask
		}
		if task.Status != domain.StatusOpen {
			return domain.ErrWrongStatus
		}
		if task.MaxParticipants > 1 {
			return fmt.Errorf("multi-participant board: %w", domain.ErrWrongStatus)
		}

		now := s.now()
		task.Status = domain.StatusTaken
		task.TakerID = takerID
		task.TakenAt = now
		if task.MaxDuration > 0 {
			working := now.Add(time.Duration(task.MaxDuration) * time.Hour)
			if task.Deadline.IsZero() || working.Before(task.Deadline) {
				task.Deadline = working
			}
		}
		task.UpdatedAt = now
		if err := tx.UpdateTask(*task); err != nil {
			return err
		}

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Type:      domain.EventBoardTaskTaken,
			UserID:    takerID,
			CreatedAt: now,
		})
	})
	return task, err
}

// Join adds a participant to a multi-participant board task.
func (s *Service) Join(taskID, userID string) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Type != domain.TaskBoard {
			return domain.ErrNotBoardTask
		}
		if task.UserID == userID {
			return domain.ErrOwnBoardTask
		}
		if task.Status != domain.StatusOpen {
			return domain.ErrWrongStatus
		}
		if task.MaxParticipants <= 1 {
			return fmt.Errorf("single-taker board: %w", domain.ErrWrongStatus)
		}

		if _, err := tx.GetParticipant(taskID, userID); err == nil {
			return domain.ErrAlreadyJoined
		}
		count, err := tx.CountParticipants(taskID)
		if err != nil {
			return err
		}
		if count >= task.MaxParticipants {
			return domain.ErrBoardTaskFull
		}

		now := s.now()
		err = tx.InsertParticipant(domain.TaskParticipant{
			ID:       uuid.NewString(),
			TaskID:   taskID,
			UserID:   userID,
			Status:   domain.ParticipantJoined,
			JoinedAt: now,
		})
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}

		return tx.InsertTimelineEvent(domain.TimelineEvent{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Type:      domain.EventBoardTaskTaken,
			UserID:    userID,
			CreatedAt: now,
		})
	})
}

// Submit turns in the taker's work. Completion proof is required. On a
// multi-participant board the submission lands on the caller's participant
// record instead of the task row.
func (s *Service) Submit(taskID, takerID, proof string) error {
	if proof == "" {
		return domain.ErrProofRequired
	}
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.Type != domain.TaskBoard {
			return domain.ErrNotBoardTask
		}

		now := s.now()
		if task.MaxParticipants > 1 {
			p, err := tx.GetParticipant(taskID, takerID)
			if err != nil {
				return err
			}
			if p.Status != domain.ParticipantJoined {
				return domain.ErrWrongStatus
			}
			p.Status = domain.ParticipantSubmitted
			p.Submission = proof
			p.SubmittedAt = now
			if err := tx.UpdateParticipant(*p); err != nil {
				return err
			}
		} else {
			if task.Status != domain.StatusTaken {
				return domain.ErrWrongStatus
			}
			if task.TakerID != takerID {
				return domain.ErrNotTaker
			}
			task.Status = domain.StatusSubmitted
			task.CompletionProof = proof
			task.UpdatedAt = now
			if err := tx.UpdateTask(*task); err != nil {
				return err
			}
		}

		mail := notify.NewService(tx).WithClock(s.now)
		if err := mail.Notify(domain.Notification{
			RecipientID: task.UserID,
			ActorID:     takerID,
			Type:        "board_submitted",
			RelatedType: "task",
			RelatedID:   taskID,
		}); err != nil {
			log.Printf("lifecycle: notify submission on %s: %v", taskID, err)
		}
		return nil
	})
}

// Approve accepts a single-taker submission and pays the escrowed reward to
// the taker.
func (s *Service) Approve(taskID, publisherID string) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != publisherID {
			return domain.ErrNotOwner
		}
		if task.Status != domain.StatusSubmitted {
			return domain.ErrWrongStatus
		}
		return s.settleSingle(tx, task, true, "submission approved")
	})
	return task, err
}

// Reject declines a single-taker submission; the task fails and the escrow
// returns to the publisher.
func (s *Service) Reject(taskID, publisherID string) (*domain.LockTask, error) {
	var task *domain.LockTask
	err := s.db.WriteTx(func(tx *sqlite.DB) error {
		var err error
		task, err = tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != publisherID {
			return domain.ErrNotOwner
		}
		if task.Status != domain.StatusSubmitted {
			return domain.ErrWrongStatus
		}
		return s.settleSingle(tx, task, false, "submission rejected")
	})
	return task, err
}

// ReviewParticipant accepts or declines one participant's submission on a
// multi-participant board, paying the given reward amount on approval.
func (s *Service) ReviewParticipant(taskID, publisherID, participantID string, approve bool, comment string, rewardAmount int64) error {
	return s.db.WriteTx(func(tx *sqlite.DB) error {
		task, err := tx.GetTask(taskID)
		if err != nil {
			return err
		}
		if task.UserID != publisherID {
			return domain.ErrNotOwner
		}
		p, err := tx.GetParticipant(taskID, participantID)
		if err != nil {
			return err
		}
		if p.Status != domain.ParticipantSubmitted {
			return domain.ErrWrongStatus
		}

		now := s.now()
		p.ReviewedAt = now
		p.ReviewComment = comment
		notice := "board_rejected"
		if approve {
			p.Status = domain.ParticipantApproved
			p.RewardAmount = rewardAmount
			notice = "board_approved"
			if rewardAmount > 0 {
				_, err := s.coins(tx).AddCoins(participantID, rewardAmount, domain.TxBoardReward, taskID, "board task reward")
				if err != nil {
					return err
				}
			}
		} else {
			p.Status = domain.ParticipantRejected
		}
		if err := tx.UpdateParticipant(*p); err != nil {
			return err
		}

		mail := notify.NewService(tx).WithClock(s.now)
		if err := mail.Notify(domain.Notification{
			RecipientID: participantID,
			ActorID:     publisherID,
			Type:        notice,
			RelatedType: "task",
			RelatedID:   taskID,
		}); err != nil {
			log.Printf("lifecycle: notify review on %s: %v", taskID, err)
		}
		return nil
	})
}

// settleSingle finishes a single-taker board task one way or the other.
// Runs inside the caller's transaction.
func (s *Service) settleSingle(tx *sqlite.DB, task *domain.LockTask, approve bool, reason string) error {
	now := s.now()
	pay := s.coins(tx)
	mail := notify.NewService(tx).WithClock(s.now)

	event := domain.EventTaskFailed
	notice := "board_rejected"
	recipient := task.TakerID
	if approve {
		task.Status = domain.StatusCompleted
		event = domain.EventTaskCompleted
		notice = "board_approved"
		if task.Reward > 0 && task.TakerID != "" {
			if _, err := pay.AddCoins(task.TakerID, task.Reward, domain.TxBoardReward, task.ID, "board task reward"); err != nil {
				return err
			}
		}
		metrics.TasksCompleted.WithLabelValues(string(domain.TaskBoard)).Inc()
	} else {
		task.Status = domain.StatusFailed
		// Refund the escrow to the publisher.
		if task.Reward > 0 {
			if _, err := pay.AddCoins(task.UserID, task.Reward, domain.TxBoardReward, task.ID, "board task escrow refund"); err != nil {
				return err
			}
		}
		metrics.TasksFailed.WithLabelValues(string(domain.TaskBoard), reason).Inc()
	}

	task.CompletedAt = now
	task.UpdatedAt = now
	if err := tx.UpdateTask(*task); err != nil {
		return err
	}

	err := tx.InsertTimelineEvent(domain.TimelineEvent{
		ID:          uuid.NewString(),
		TaskID:      task.ID,
		Type:        event,
		UserID:      task.UserID,
		Description: reason,
		CreatedAt:   now,
	})
	if err != nil {
		return err
	}

	if recipient != "" {
		if err := mail.Notify(domain.Notification{
			RecipientID: recipient,
			ActorID:     task.UserID,
			Type:        notice,
			RelatedType: "task",
			RelatedID:   task.ID,
		}); err != nil {
			log.Printf("lifecycle: notify settlement of %s: %v", task.ID, err)
		}
	}
	return nil
}

// SettleDue auto-settles board tasks whose deadline passed: a taken task
// with no submission fails and refunds the publisher; a submitted task the
// publisher never reviewed settles in the taker's favor. Idempotent: a
// settled task leaves the statuses the due query filters on.
func (s *Service) SettleDue() (int, error) {
	due, err := s.db.BoardTasksPastDeadline(s.now())
	if err != nil {
		return 0, fmt.Errorf("list due board tasks: %w", err)
	}

	settled := 0
	for i := range due {
		id := due[i].ID
		err := s.db.WriteTx(func(tx *sqlite.DB) error {
			task, err := tx.GetTask(id)
			if err != nil {
				return err
			}
			switch task.Status {
			case domain.StatusTaken:
				err := tx.InsertTimelineEvent(domain.TimelineEvent{
					ID:        uuid.NewString(),
					TaskID:    id,
					Type:      domain.EventDeadlinePassed,
					CreatedAt: s.now(),
				})
				if err != nil {
					return err
				}
				return s.settleSingle(tx, task, false, "deadline passed without submission")
			case domain.StatusSubmitted:
				return s.settleSingle(tx, task, true, "deadline passed with submission pending")
			default:
				return nil
			}
		})
		if err != nil {
			log.Printf("lifecycle: settle board task %s: %v", id, err)
			continue
		}
		settled++
	}
	return settled, nil
}

// Participants lists a board task's takers.
func (s *Service) Participants(taskID string) ([]domain.TaskParticipant, error) {
	return s.db.Participants(taskID)
}
