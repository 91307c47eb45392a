package voting

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/effects"
	"github.com/lockup-labs/lockup/internal/domain"
	"github.com/lockup-labs/lockup/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ at time.Time }

func (c *fakeClock) Now() time.Time { return c.at }

func (c *fakeClock) Advance(d time.Duration) { c.at = c.at.Add(d) }

// seedVoteTask inserts an active vote-unlock task whose countdown lapsed
// a minute ago.
func seedVoteTask(t *testing.T, db *sqlite.DB, threshold int, ratio float64) *domain.LockTask {
	t.Helper()
	task := domain.LockTask{
		ID:                 uuid.NewString(),
		UserID:             "alice",
		Type:               domain.TaskLock,
		Title:              "release me",
		Status:             domain.StatusActive,
		Difficulty:         domain.DifficultyNormal,
		UnlockType:         domain.UnlockVote,
		VoteThreshold:      threshold,
		VoteAgreementRatio: ratio,
		VotingDuration:     10,
		StartTime:          t0.Add(-time.Hour),
		EndTime:            t0.Add(-time.Minute),
		CreatedAt:          t0.Add(-time.Hour),
		UpdatedAt:          t0.Add(-time.Hour),
	}
	if err := db.InsertTask(task); err != nil {
		t.Fatalf("InsertTask() error: %v", err)
	}
	return &task
}

// ─── Voting Window ──────────────────────────────────────────────────────────

func TestService_StartVoting(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 2, 0.6)

	if err := svc.StartVoting(task.ID, "alice"); err != nil {
		t.Fatalf("StartVoting() error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if got.Status != domain.StatusVoting {
		t.Errorf("status = %s, want voting", got.Status)
	}
	if want := t0.Add(10 * time.Minute); !got.VotingEndTime.Equal(want) {
		t.Errorf("voting end = %v, want %v", got.VotingEndTime, want)
	}
}

func TestService_StartVotingGuards(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 2, 0.6)

	if err := svc.StartVoting(task.ID, "bob"); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("non-owner StartVoting() error = %v, want ErrNotOwner", err)
	}

	// Countdown still running: no vote yet.
	task.EndTime = t0.Add(time.Hour)
	if err := db.UpdateTask(*task); err != nil {
		t.Fatalf("UpdateTask() error: %v", err)
	}
	if err := svc.StartVoting(task.ID, "alice"); !errors.Is(err, domain.ErrCountdownRunning) {
		t.Errorf("early StartVoting() error = %v, want ErrCountdownRunning", err)
	}

	task.UnlockType = domain.UnlockTime
	task.EndTime = t0.Add(-time.Minute)
	db.UpdateTask(*task)
	if err := svc.StartVoting(task.ID, "alice"); !errors.Is(err, domain.ErrNotVoteUnlock) {
		t.Errorf("time-unlock StartVoting() error = %v, want ErrNotVoteUnlock", err)
	}
}

func TestService_CastVote(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 2, 0.6)
	svc.StartVoting(task.ID, "alice")

	if err := svc.CastVote(task.ID, "bob", true); err != nil {
		t.Fatalf("CastVote() error: %v", err)
	}
	if err := svc.CastVote(task.ID, "bob", false); !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Errorf("duplicate CastVote() error = %v, want ErrAlreadyVoted", err)
	}
	if err := svc.CastVote(task.ID, "alice", true); !errors.Is(err, domain.ErrOwnTaskVote) {
		t.Errorf("owner CastVote() error = %v, want ErrOwnTaskVote", err)
	}

	clock.Advance(11 * time.Minute)
	if err := svc.CastVote(task.ID, "carol", true); !errors.Is(err, domain.ErrVotingClosed) {
		t.Errorf("late CastVote() error = %v, want ErrVotingClosed", err)
	}
}

// ─── Tally and Resolution ───────────────────────────────────────────────────

func TestService_ResolvePass(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 2, 0.6)
	svc.StartVoting(task.ID, "alice")

	// 2 agree, 1 disagree at weight 1: total 3 ≥ 2, agreement 0.67 ≥ 0.6.
	svc.CastVote(task.ID, "bob", true)
	svc.CastVote(task.ID, "carol", true)
	svc.CastVote(task.ID, "dave", false)

	clock.Advance(11 * time.Minute)
	n, err := svc.ResolveDue()
	if err != nil {
		t.Fatalf("ResolveDue() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("resolved = %d, want 1", n)
	}
	got, _ := db.GetTask(task.ID)
	if got.Status != domain.StatusVotingPassed {
		t.Errorf("status = %s, want voting_passed", got.Status)
	}

	// Already resolved: the due query no longer matches.
	n, _ = svc.ResolveDue()
	if n != 0 {
		t.Errorf("second ResolveDue() = %d, want 0", n)
	}
}

func TestService_ResolveFailAppliesPenalty(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 2, 0.6)
	svc.StartVoting(task.ID, "alice")

	// 1 agree, 2 disagree: threshold met, agreement 0.33 misses 0.6.
	svc.CastVote(task.ID, "bob", true)
	svc.CastVote(task.ID, "carol", false)
	svc.CastVote(task.ID, "dave", false)

	clock.Advance(11 * time.Minute)
	if _, err := svc.ResolveDue(); err != nil {
		t.Fatalf("ResolveDue() error: %v", err)
	}

	got, _ := db.GetTask(task.ID)
	if got.Status != domain.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	// Normal difficulty: 20 minute penalty from the resolution instant,
	// so the next round cannot open until it elapses.
	if want := clock.Now().Add(20 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", got.EndTime, want)
	}
	if !got.VotingEndTime.IsZero() {
		t.Errorf("voting end = %v, want cleared", got.VotingEndTime)
	}
}

func TestService_ResolveBelowThreshold(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 3, 0.5)
	svc.StartVoting(task.ID, "alice")

	// Unanimous but too few voters.
	svc.CastVote(task.ID, "bob", true)
	svc.CastVote(task.ID, "carol", true)

	clock.Advance(11 * time.Minute)
	svc.ResolveDue()

	got, _ := db.GetTask(task.ID)
	if got.Status != domain.StatusActive {
		t.Errorf("status = %s, want active (threshold unmet)", got.Status)
	}
}

func TestService_InfluenceWeight(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 3, 0.5)
	svc.StartVoting(task.ID, "alice")

	// Bob's crown triples his vote: 3 agree weight vs 1 disagree clears
	// both gates where plain weights would miss the threshold.
	err := effects.NewService(db).Grant("bob", domain.EffectInfluenceCrown, 3, 0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Grant() error: %v", err)
	}
	svc.CastVote(task.ID, "bob", true)
	svc.CastVote(task.ID, "carol", false)

	votes, err := db.VotesForTask(task.ID)
	if err != nil {
		t.Fatalf("VotesForTask() error: %v", err)
	}
	tally, err := Tally(task, votes, effects.NewService(db), clock.Now())
	if err != nil {
		t.Fatalf("Tally() error: %v", err)
	}
	if tally.TotalWeight != 4 || tally.AgreeWeight != 3 {
		t.Errorf("weights = %.0f/%.0f, want 3/4", tally.AgreeWeight, tally.TotalWeight)
	}
	if !tally.Passed {
		t.Error("tally should pass with the crown active")
	}
}

func TestService_RestartClearsPriorVotes(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedVoteTask(t, db, 2, 0.6)

	svc.StartVoting(task.ID, "alice")
	svc.CastVote(task.ID, "bob", false)
	svc.CastVote(task.ID, "carol", false)
	clock.Advance(11 * time.Minute)
	svc.ResolveDue()

	// After the penalty lapses a fresh round opens with a clean slate.
	clock.Advance(21 * time.Minute)
	if err := svc.StartVoting(task.ID, "alice"); err != nil {
		t.Fatalf("second StartVoting() error: %v", err)
	}
	votes, _ := db.VotesForTask(task.ID)
	if len(votes) != 0 {
		t.Errorf("carried votes = %d, want 0", len(votes))
	}
	if err := svc.CastVote(task.ID, "bob", true); err != nil {
		t.Errorf("re-vote after restart error: %v", err)
	}
}
