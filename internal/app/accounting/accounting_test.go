package accounting

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

// fakeClock is a settable time source shared between services under test.
type fakeClock struct{ at time.Time }

func (c *fakeClock) Now() time.Time { return c.at }

func (c *fakeClock) Advance(d time.Duration) { c.at = c.at.Add(d) }

func seedTask(t *testing.T, db *sqlite.DB, minutes int, strict bool) *domain.LockTask {
	t.Helper()
	task := domain.LockTask{
		ID:         uuid.NewString(),
		UserID:     "alice",
		Type:       domain.TaskLock,
		Title:      "focus block",
		Status:     domain.StatusActive,
		Difficulty: domain.DifficultyNormal,
		UnlockType: domain.UnlockTime,
		StrictMode: strict,
		StartTime:  t0,
		EndTime:    t0.Add(time.Duration(minutes) * time.Minute),
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
	if err := db.InsertTask(task); err != nil {
		t.Fatalf("InsertTask() error: %v", err)
	}
	return &task
}

func seedCoins(t *testing.T, db *sqlite.DB, userID string, amount int64) {
	t.Helper()
	_, err := ledger.NewService(db).AddCoins(userID, amount, domain.TxAdjustment, "", "seed")
	if err != nil {
		t.Fatalf("seed coins: %v", err)
	}
}

// ─── Freeze / Unfreeze ──────────────────────────────────────────────────────

func TestService_FreezeConservation(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)
	seedCoins(t, db, "alice", 100)

	// Freeze 30 minutes in, with 30 minutes remaining.
	clock.Advance(30 * time.Minute)
	if err := svc.Freeze(task.ID, "alice"); err != nil {
		t.Fatalf("Freeze() error: %v", err)
	}

	// Stay frozen for 45 minutes, then resume.
	clock.Advance(45 * time.Minute)
	if err := svc.Unfreeze(task.ID, "alice"); err != nil {
		t.Fatalf("Unfreeze() error: %v", err)
	}

	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	wantEnd := clock.Now().Add(30 * time.Minute)
	if !got.EndTime.Equal(wantEnd) {
		t.Errorf("end time = %v, want %v (unfreeze + remaining)", got.EndTime, wantEnd)
	}
	if got.TotalFrozenDur != 45*time.Minute {
		t.Errorf("total frozen = %v, want 45m", got.TotalFrozenDur)
	}
	if got.IsFrozen {
		t.Error("task still frozen after Unfreeze()")
	}

	// The frozen span never counts toward elapsed time, so the first
	// full hour lands one freeze-length later on the wall clock.
	clock.Advance(31 * time.Minute)
	if h := got.ElapsedHours(clock.Now()); h != 1 {
		t.Errorf("elapsed hours at active minute 61 = %d, want 1", h)
	}
	if h := got.ElapsedHours(t0.Add(61 * time.Minute)); h != 0 {
		t.Errorf("elapsed hours at wall minute 61 = %d, want 0", h)
	}
}

func TestService_FreezeGuards(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)
	seedCoins(t, db, "alice", 100)

	if err := svc.Freeze(task.ID, "alice"); err != nil {
		t.Fatalf("Freeze() error: %v", err)
	}
	if err := svc.Freeze(task.ID, "alice"); !errors.Is(err, domain.ErrTaskFrozen) {
		t.Errorf("double Freeze() error = %v, want ErrTaskFrozen", err)
	}
	if err := svc.Unfreeze(task.ID, "alice"); err != nil {
		t.Fatalf("Unfreeze() error: %v", err)
	}
	if err := svc.Unfreeze(task.ID, "alice"); !errors.Is(err, domain.ErrTaskNotFrozen) {
		t.Errorf("double Unfreeze() error = %v, want ErrTaskNotFrozen", err)
	}
}

func TestService_FreezeInsufficientCoins(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db).WithClock((&fakeClock{at: t0}).Now)
	task := seedTask(t, db, 60, false)

	err := svc.Freeze(task.ID, "alice")
	if !errors.Is(err, domain.ErrInsufficientCoins) {
		t.Fatalf("Freeze() error = %v, want ErrInsufficientCoins", err)
	}

	// The fee failure aborted the whole transition.
	got, _ := db.GetTask(task.ID)
	if got.IsFrozen {
		t.Error("task frozen despite failed fee")
	}
}

func TestService_FreezeFees(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)
	seedCoins(t, db, "alice", 100)

	svc.Freeze(task.ID, "alice")
	svc.Unfreeze(task.ID, "alice")

	bal, _ := ledger.NewService(db).Balance("alice")
	want := int64(100) - DefaultFreezeFee - DefaultUnfreezeFee
	if bal != want {
		t.Errorf("balance after freeze cycle = %d, want %d", bal, want)
	}
}

// ─── Time Adjustments ───────────────────────────────────────────────────────

func TestService_AddTime(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)

	err := svc.AddTime(task.ID, 15, "alice", domain.EventManualAdjustment, "more focus")
	if err != nil {
		t.Fatalf("AddTime() error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if want := t0.Add(75 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", got.EndTime, want)
	}
}

func TestService_AddTimeStrictLapsed(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, true)

	// 90 minutes in, the 60-minute countdown lapsed half an hour ago.
	// Strict mode restarts the addition from now.
	clock.Advance(90 * time.Minute)
	if err := svc.AddTime(task.ID, 10, "alice", domain.EventManualAdjustment, ""); err != nil {
		t.Fatalf("AddTime() error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if want := clock.Now().Add(10 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("strict end time = %v, want %v", got.EndTime, want)
	}
}

func TestService_AddTimeNonStrictLapsed(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)

	// Non-strict: additions always extend from the recorded end time,
	// even when that lands in the past.
	clock.Advance(90 * time.Minute)
	if err := svc.AddTime(task.ID, 10, "alice", domain.EventManualAdjustment, ""); err != nil {
		t.Fatalf("AddTime() error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if want := t0.Add(70 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("non-strict end time = %v, want %v", got.EndTime, want)
	}
}

func TestService_SubtractTimeClamped(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)

	clock.Advance(30 * time.Minute)
	if err := svc.SubtractTime(task.ID, 300, "alice", domain.EventManualAdjustment, ""); err != nil {
		t.Fatalf("SubtractTime() error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if !got.EndTime.Equal(clock.Now()) {
		t.Errorf("end time = %v, want clamped to now %v", got.EndTime, clock.Now())
	}
}

func TestService_AddTimeFrozen(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)
	seedCoins(t, db, "alice", 100)

	svc.Freeze(task.ID, "alice")
	if err := svc.AddTime(task.ID, 20, "alice", domain.EventManualAdjustment, ""); err != nil {
		t.Fatalf("AddTime() on frozen error: %v", err)
	}

	// The live end time is untouched; the snapshot absorbs the change.
	got, _ := db.GetTask(task.ID)
	if want := t0.Add(80 * time.Minute); !got.FrozenEndTime.Equal(want) {
		t.Errorf("frozen end time = %v, want %v", got.FrozenEndTime, want)
	}
	if want := t0.Add(60 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("end time = %v, want untouched %v", got.EndTime, want)
	}
}

func TestService_AddTimeNonPositive(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	task := seedTask(t, db, 60, false)

	err := svc.AddTime(task.ID, 0, "alice", domain.EventManualAdjustment, "")
	if !errors.Is(err, domain.ErrNonPositiveAmount) {
		t.Errorf("AddTime(0) error = %v, want ErrNonPositiveAmount", err)
	}
}

// ─── Peer Overtime ──────────────────────────────────────────────────────────

func TestService_PeerOvertime(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now).WithRand(func() float64 { return 0.5 })
	task := seedTask(t, db, 60, false)

	minutes, err := svc.PeerOvertime(task.ID, "bob")
	if err != nil {
		t.Fatalf("PeerOvertime() error: %v", err)
	}
	// normal base 20, rand 0.5 → 20 * (0.5+0.5) = 20.
	if minutes != 20 {
		t.Errorf("overtime = %d min, want 20", minutes)
	}
	got, _ := db.GetTask(task.ID)
	if want := t0.Add(80 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", got.EndTime, want)
	}
}

func TestService_PeerOvertimeOwnTask(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db).WithClock((&fakeClock{at: t0}).Now)
	task := seedTask(t, db, 60, false)

	_, err := svc.PeerOvertime(task.ID, "alice")
	if !errors.Is(err, domain.ErrOwnTaskOvertime) {
		t.Errorf("own-task PeerOvertime() error = %v, want ErrOwnTaskOvertime", err)
	}
}

func TestService_PeerOvertimeCooldown(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now).WithRand(func() float64 { return 0 })
	task := seedTask(t, db, 600, false)

	if _, err := svc.PeerOvertime(task.ID, "bob"); err != nil {
		t.Fatalf("first PeerOvertime() error: %v", err)
	}

	clock.Advance(time.Hour)
	_, err := svc.PeerOvertime(task.ID, "bob")
	if !errors.Is(err, domain.ErrOvertimeCooldown) {
		t.Errorf("PeerOvertime() inside cooldown error = %v, want ErrOvertimeCooldown", err)
	}

	// A different publisher is not rate-limited.
	if _, err := svc.PeerOvertime(task.ID, "carol"); err != nil {
		t.Errorf("PeerOvertime() other publisher error: %v", err)
	}

	// The window clears after the cooldown elapses.
	clock.Advance(time.Hour + time.Minute)
	if _, err := svc.PeerOvertime(task.ID, "bob"); err != nil {
		t.Errorf("PeerOvertime() after cooldown error: %v", err)
	}
}

func TestService_PeerOvertimePinnedMultiplier(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now).WithRand(func() float64 { return 0.5 })
	task := seedTask(t, db, 60, false)

	pin := domain.PinnedUser{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		PinnedUser: "alice",
		KeyHolder:  "bob",
		IsActive:   true,
		CreatedAt:  t0,
		ExpiresAt:  t0.Add(time.Hour),
	}
	if err := db.InsertPin(pin); err != nil {
		t.Fatalf("InsertPin() error: %v", err)
	}
	if err := db.UpdatePinSlot(pin.ID, 1, true, t0); err != nil {
		t.Fatalf("UpdatePinSlot() error: %v", err)
	}

	minutes, err := svc.PeerOvertime(task.ID, "carol")
	if err != nil {
		t.Fatalf("PeerOvertime() error: %v", err)
	}
	if minutes != 200 {
		t.Errorf("pinned overtime = %d min, want 200 (20 × 10)", minutes)
	}
}

// ─── Manual Adjustment ──────────────────────────────────────────────────────

func TestService_ManualAdjustRequiresKeyHolder(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{at: t0}
	svc := NewService(db).WithClock(clock.Now)
	task := seedTask(t, db, 60, false)

	err := svc.ManualAdjust(task.ID, "bob", 10)
	if !errors.Is(err, domain.ErrNotKeyHolder) {
		t.Errorf("ManualAdjust() without key error = %v, want ErrNotKeyHolder", err)
	}

	if err := db.InsertItem(domain.Item{
		ID:         uuid.NewString(),
		TypeName:   "key",
		OwnerID:    "bob",
		Status:     domain.ItemAvailable,
		Properties: map[string]string{"task_id": task.ID},
		CreatedAt:  t0,
	}); err != nil {
		t.Fatalf("InsertItem() error: %v", err)
	}

	if err := svc.ManualAdjust(task.ID, "bob", 10); err != nil {
		t.Fatalf("ManualAdjust() with key error: %v", err)
	}
	got, _ := db.GetTask(task.ID)
	if want := t0.Add(70 * time.Minute); !got.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", got.EndTime, want)
	}
}
