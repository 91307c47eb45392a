package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/app/ledger"
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

func seedCoins(t *testing.T, db *sqlite.DB, userID string, amount int64) {
	t.Helper()
	_, err := ledger.NewService(db).AddCoins(userID, amount, domain.TxAdjustment, "", "seed")
	if err != nil {
		t.Fatalf("seed coins: %v", err)
	}
}

// ─── Lock Task Lifecycle ────────────────────────────────────────────────────

func TestService_CreateStartsImmediately(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)

	task, err := svc.Create(CreateParams{
		UserID:        "alice",
		Type:          domain.TaskLock,
		Title:         "write the report",
		DurationValue: 90,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if task.Status != domain.StatusActive {
		t.Errorf("status = %s, want active", task.Status)
	}
	if want := t0.Add(90 * time.Minute); !task.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", task.EndTime, want)
	}
	// Defaults fill the unset lock fields.
	if task.Difficulty != domain.DifficultyNormal || task.UnlockType != domain.UnlockTime {
		t.Errorf("defaults = %s/%s, want normal/time", task.Difficulty, task.UnlockType)
	}

	// The key was issued to the owner at start.
	live, err := db.LiveKeyItems(task.ID)
	if err != nil {
		t.Fatalf("LiveKeyItems() error: %v", err)
	}
	if len(live) != 1 || live[0].OwnerID != "alice" {
		t.Fatalf("live keys = %+v, want one held by alice", live)
	}
}

func TestService_CreatePendingThenStart(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)

	task, err := svc.Create(CreateParams{
		UserID:        "alice",
		Type:          domain.TaskLock,
		Title:         "later",
		DurationValue: 60,
		Pending:       true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if task.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", task.Status)
	}
	if live, _ := db.LiveKeyItems(task.ID); len(live) != 0 {
		t.Errorf("pending task has %d keys, want 0", len(live))
	}

	if _, err := svc.Start(task.ID, "bob"); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("Start() by non-owner error = %v, want ErrNotOwner", err)
	}

	clock.Advance(time.Hour)
	started, err := svc.Start(task.ID, "alice")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !started.StartTime.Equal(clock.Now()) {
		t.Errorf("start time = %v, want %v", started.StartTime, clock.Now())
	}
}

func TestService_CreateRandomDuration(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now).WithRand(func() float64 { return 0.5 })

	task, err := svc.Create(CreateParams{
		UserID:        "alice",
		Type:          domain.TaskLock,
		Title:         "mystery box",
		DurationType:  domain.DurationRandom,
		DurationValue: 60,
		DurationMax:   120,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// spread 60, rand 0.5 → 60 + int(0.5*61) = 90 minutes.
	if want := t0.Add(90 * time.Minute); !task.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", task.EndTime, want)
	}
}

func TestService_CompleteGates(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskLock, Title: "deep work", DurationValue: 60,
	})

	if _, err := svc.Complete(task.ID, "alice"); !errors.Is(err, domain.ErrCountdownRunning) {
		t.Errorf("early Complete() error = %v, want ErrCountdownRunning", err)
	}

	clock.Advance(61 * time.Minute)
	if _, err := svc.Complete(task.ID, "bob"); !errors.Is(err, domain.ErrNotKeyHolder) {
		t.Errorf("non-holder Complete() error = %v, want ErrNotKeyHolder", err)
	}

	done, err := svc.Complete(task.ID, "alice")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}

	// One hour elapsed: hour 1 paid plus the normal completion bonus.
	bal, _ := ledger.NewService(db).Balance("alice")
	if bal != 3 {
		t.Errorf("balance = %d, want 3 (1 hourly + 2 bonus)", bal)
	}

	if _, err := svc.Complete(task.ID, "alice"); !errors.Is(err, domain.ErrWrongStatus) {
		t.Errorf("double Complete() error = %v, want ErrWrongStatus", err)
	}
}

func TestService_UseUniversalKey(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskLock, Title: "lost my key", DurationValue: 30,
	})

	// Hand the task key to someone else; alice falls back to a universal.
	live, _ := db.LiveKeyItems(task.ID)
	if err := db.MarkItemUsed(live[0].ID, t0); err != nil {
		t.Fatalf("MarkItemUsed() error: %v", err)
	}

	clock.Advance(31 * time.Minute)
	if _, err := svc.UseUniversalKey(task.ID, "alice"); !errors.Is(err, domain.ErrKeyUnusable) {
		t.Errorf("UseUniversalKey() without item error = %v, want ErrKeyUnusable", err)
	}

	if err := db.InsertItem(domain.Item{
		ID:        uuid.NewString(),
		TypeName:  "universal_key",
		OwnerID:   "alice",
		Status:    domain.ItemAvailable,
		CreatedAt: t0,
	}); err != nil {
		t.Fatalf("InsertItem() error: %v", err)
	}
	done, err := svc.UseUniversalKey(task.ID, "alice")
	if err != nil {
		t.Fatalf("UseUniversalKey() error: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
}

func TestService_Stop(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskLock, Title: "give up", DurationValue: 120,
	})

	clock.Advance(2 * time.Hour)
	stopped, err := svc.Stop(task.ID, "alice")
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if stopped.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", stopped.Status)
	}
	if live, _ := db.LiveKeyItems(task.ID); len(live) != 0 {
		t.Errorf("stopped task still has %d live keys", len(live))
	}
	// No rewards on failure.
	bal, _ := ledger.NewService(db).Balance("alice")
	if bal != 0 {
		t.Errorf("balance after stop = %d, want 0", bal)
	}
}

// ─── Board Task Lifecycle ───────────────────────────────────────────────────

func TestService_BoardEscrowFlow(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	seedCoins(t, db, "alice", 100)

	task, err := svc.Create(CreateParams{
		UserID:   "alice",
		Type:     domain.TaskBoard,
		Title:    "fix my bug",
		Reward:   40,
		Deadline: t0.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	bal, _ := ledger.NewService(db).Balance("alice")
	if bal != 60 {
		t.Fatalf("publisher balance after escrow = %d, want 60", bal)
	}

	if _, err := svc.Take(task.ID, "alice"); !errors.Is(err, domain.ErrOwnBoardTask) {
		t.Errorf("own Take() error = %v, want ErrOwnBoardTask", err)
	}
	if _, err := svc.Take(task.ID, "bob"); err != nil {
		t.Fatalf("Take() error: %v", err)
	}

	if err := svc.Submit(task.ID, "bob", ""); !errors.Is(err, domain.ErrProofRequired) {
		t.Errorf("empty Submit() error = %v, want ErrProofRequired", err)
	}
	if err := svc.Submit(task.ID, "carol", "https://pr/1"); !errors.Is(err, domain.ErrNotTaker) {
		t.Errorf("stranger Submit() error = %v, want ErrNotTaker", err)
	}
	if err := svc.Submit(task.ID, "bob", "https://pr/1"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	done, err := svc.Approve(task.ID, "alice")
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	bal, _ = ledger.NewService(db).Balance("bob")
	if bal != 40 {
		t.Errorf("taker balance = %d, want 40", bal)
	}
}

func TestService_BoardCreateInsufficientEscrow(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db).WithClock((&fakeClock{at: t0}).Now)
	seedCoins(t, db, "alice", 10)

	_, err := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskBoard, Title: "too rich", Reward: 40,
	})
	if !errors.Is(err, domain.ErrInsufficientCoins) {
		t.Fatalf("Create() error = %v, want ErrInsufficientCoins", err)
	}
	// The failed escrow rolled the whole create back.
	tasks, _ := svc.List(sqlite.TaskFilter{UserID: "alice"})
	if len(tasks) != 0 {
		t.Errorf("tasks after failed create = %d, want 0", len(tasks))
	}
}

func TestService_BoardRejectRefunds(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	seedCoins(t, db, "alice", 100)

	task, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskBoard, Title: "bounty", Reward: 40,
		Deadline: t0.Add(48 * time.Hour),
	})
	svc.Take(task.ID, "bob")
	svc.Submit(task.ID, "bob", "half done")

	done, err := svc.Reject(task.ID, "alice")
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if done.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", done.Status)
	}
	bal, _ := ledger.NewService(db).Balance("alice")
	if bal != 100 {
		t.Errorf("publisher balance after refund = %d, want 100", bal)
	}
}

func TestService_BoardTakeClampsDeadline(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	seedCoins(t, db, "alice", 100)

	task, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskBoard, Title: "quick one", Reward: 10,
		Deadline: t0.Add(96 * time.Hour), MaxDuration: 24,
	})
	taken, err := svc.Take(task.ID, "bob")
	if err != nil {
		t.Fatalf("Take() error: %v", err)
	}
	if want := t0.Add(24 * time.Hour); !taken.Deadline.Equal(want) {
		t.Errorf("working deadline = %v, want clamped %v", taken.Deadline, want)
	}
}

func TestService_SettleDue(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	seedCoins(t, db, "alice", 100)

	// Two boards: one abandoned after take, one submitted but unreviewed.
	abandoned, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskBoard, Title: "ghosted", Reward: 20,
		Deadline: t0.Add(24 * time.Hour),
	})
	pending, _ := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskBoard, Title: "ignored", Reward: 30,
		Deadline: t0.Add(24 * time.Hour),
	})
	svc.Take(abandoned.ID, "bob")
	svc.Take(pending.ID, "carol")
	svc.Submit(pending.ID, "carol", "done, see attached")

	clock.Advance(25 * time.Hour)
	settled, err := svc.SettleDue()
	if err != nil {
		t.Fatalf("SettleDue() error: %v", err)
	}
	if settled != 2 {
		t.Fatalf("settled = %d, want 2", settled)
	}

	got, _ := svc.Get(abandoned.ID)
	if got.Status != domain.StatusFailed {
		t.Errorf("abandoned status = %s, want failed", got.Status)
	}
	got, _ = svc.Get(pending.ID)
	if got.Status != domain.StatusCompleted {
		t.Errorf("unreviewed status = %s, want completed (taker's favor)", got.Status)
	}

	// Ghosted escrow refunded, unreviewed reward paid out.
	bal, _ := ledger.NewService(db).Balance("alice")
	if bal != 70 { // 100 - 20 - 30 + 20 refund
		t.Errorf("publisher balance = %d, want 70", bal)
	}
	bal, _ = ledger.NewService(db).Balance("carol")
	if bal != 30 {
		t.Errorf("taker balance = %d, want 30", bal)
	}

	// Idempotent: nothing left to settle.
	settled, _ = svc.SettleDue()
	if settled != 0 {
		t.Errorf("second SettleDue() = %d, want 0", settled)
	}
}

func TestService_MultiParticipantBoard(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	seedCoins(t, db, "alice", 100)

	task, err := svc.Create(CreateParams{
		UserID: "alice", Type: domain.TaskBoard, Title: "translate docs", Reward: 60,
		Deadline: t0.Add(48 * time.Hour), MaxParticipants: 2,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := svc.Join(task.ID, "bob"); err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if err := svc.Join(task.ID, "bob"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Errorf("double Join() error = %v, want ErrAlreadyJoined", err)
	}
	if err := svc.Join(task.ID, "carol"); err != nil {
		t.Fatalf("second Join() error: %v", err)
	}
	if err := svc.Join(task.ID, "dave"); !errors.Is(err, domain.ErrBoardTaskFull) {
		t.Errorf("overflow Join() error = %v, want ErrBoardTaskFull", err)
	}

	if err := svc.Submit(task.ID, "bob", "chapter 1"); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	err = svc.ReviewParticipant(task.ID, "alice", "bob", true, "nice work", 30)
	if err != nil {
		t.Fatalf("ReviewParticipant() error: %v", err)
	}

	bal, _ := ledger.NewService(db).Balance("bob")
	if bal != 30 {
		t.Errorf("participant balance = %d, want 30", bal)
	}
	parts, _ := svc.Participants(task.ID)
	if len(parts) != 2 {
		t.Fatalf("participants = %d, want 2", len(parts))
	}
}
