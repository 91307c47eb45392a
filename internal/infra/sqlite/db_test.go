package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lockup-labs/lockup/internal/domain"
)

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Schema ─────────────────────────────────────────────────────────────────

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	task := domain.LockTask{
		ID: uuid.NewString(), UserID: "alice", Type: domain.TaskLock,
		Title: "survives reopen", Status: domain.StatusActive,
		CreatedAt: t0, UpdatedAt: t0,
	}
	if err := db.InsertTask(task); err != nil {
		t.Fatalf("InsertTask() error: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer db.Close()
	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask() after reopen error: %v", err)
	}
	if got.Title != "survives reopen" {
		t.Errorf("title = %q, want survives reopen", got.Title)
	}
}

// ─── Task Round Trip ────────────────────────────────────────────────────────

func TestDB_TaskRoundTrip(t *testing.T) {
	db := newTestDB(t)

	task := domain.LockTask{
		ID:                 uuid.NewString(),
		UserID:             "alice",
		Type:               domain.TaskLock,
		Title:              "everything set",
		Description:        "all fields",
		Status:             domain.StatusVoting,
		DurationType:       domain.DurationRandom,
		DurationValue:      60,
		DurationMax:        120,
		Difficulty:         domain.DifficultyHell,
		UnlockType:         domain.UnlockVote,
		StrictMode:         true,
		VoteThreshold:      5,
		VoteAgreementRatio: 0.75,
		VotingDuration:     15,
		VotingStartTime:    t0,
		VotingEndTime:      t0.Add(15 * time.Minute),
		StartTime:          t0.Add(-2 * time.Hour),
		EndTime:            t0.Add(-time.Minute),
		IsFrozen:           true,
		FrozenAt:           t0.Add(-30 * time.Minute),
		FrozenEndTime:      t0.Add(10 * time.Minute),
		TotalFrozenDur:     45 * time.Minute,
		LastHourlyRewardAt: t0.Add(-time.Hour),
		TotalHourlyRewards: 1,
		CreatedAt:          t0.Add(-2 * time.Hour),
		UpdatedAt:          t0,
	}
	if err := db.InsertTask(task); err != nil {
		t.Fatalf("InsertTask() error: %v", err)
	}

	got, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if got.Difficulty != domain.DifficultyHell || !got.StrictMode || !got.IsFrozen {
		t.Errorf("flags = %s/%v/%v, want hell/true/true", got.Difficulty, got.StrictMode, got.IsFrozen)
	}
	if got.TotalFrozenDur != 45*time.Minute {
		t.Errorf("frozen duration = %v, want 45m", got.TotalFrozenDur)
	}
	if !got.VotingEndTime.Equal(task.VotingEndTime) {
		t.Errorf("voting end = %v, want %v", got.VotingEndTime, task.VotingEndTime)
	}
	if got.VoteAgreementRatio != 0.75 {
		t.Errorf("agreement ratio = %v, want 0.75", got.VoteAgreementRatio)
	}
}

func TestDB_GetTaskNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetTask("no-such-task")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("GetTask() error = %v, want ErrTaskNotFound", err)
	}
}

func TestDB_ListTasksFilter(t *testing.T) {
	db := newTestDB(t)
	for i, seed := range []struct {
		user   string
		typ    domain.TaskType
		status domain.TaskStatus
	}{
		{"alice", domain.TaskLock, domain.StatusActive},
		{"alice", domain.TaskLock, domain.StatusCompleted},
		{"bob", domain.TaskBoard, domain.StatusOpen},
	} {
		err := db.InsertTask(domain.LockTask{
			ID: uuid.NewString(), UserID: seed.user, Type: seed.typ,
			Title: "t", Status: seed.status,
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
			UpdatedAt: t0,
		})
		if err != nil {
			t.Fatalf("InsertTask() error: %v", err)
		}
	}

	tasks, err := db.ListTasks(TaskFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListTasks() error: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("alice tasks = %d, want 2", len(tasks))
	}
	tasks, _ = db.ListTasks(TaskFilter{Status: domain.StatusOpen})
	if len(tasks) != 1 || tasks[0].UserID != "bob" {
		t.Errorf("open tasks = %+v, want bob's board", tasks)
	}
	tasks, _ = db.ListTasks(TaskFilter{Type: domain.TaskLock, Limit: 1})
	if len(tasks) != 1 {
		t.Errorf("limited tasks = %d, want 1", len(tasks))
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestDB_TransactRollsBack(t *testing.T) {
	db := newTestDB(t)
	id := uuid.NewString()

	wantErr := errors.New("boom")
	err := db.Transact(func(tx *DB) error {
		err := tx.InsertTask(domain.LockTask{
			ID: id, UserID: "alice", Type: domain.TaskLock,
			Title: "doomed", Status: domain.StatusActive,
			CreatedAt: t0, UpdatedAt: t0,
		})
		if err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Transact() error = %v, want boom", err)
	}
	if _, err := db.GetTask(id); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("task visible after rollback, err = %v", err)
	}
}

func TestDB_WriteTxJoinsTransaction(t *testing.T) {
	db := newTestDB(t)
	id := uuid.NewString()

	// A nested WriteTx must run inline in the outer transaction rather
	// than trying to open a second one over the single connection.
	err := db.Transact(func(tx *DB) error {
		return tx.WriteTx(func(inner *DB) error {
			return inner.InsertTask(domain.LockTask{
				ID: id, UserID: "alice", Type: domain.TaskLock,
				Title: "nested", Status: domain.StatusActive,
				CreatedAt: t0, UpdatedAt: t0,
			})
		})
	})
	if err != nil {
		t.Fatalf("nested WriteTx error: %v", err)
	}
	if _, err := db.GetTask(id); err != nil {
		t.Errorf("GetTask() after nested commit error: %v", err)
	}
}

// ─── Notifications ──────────────────────────────────────────────────────────

func TestDB_Notifications(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 3; i++ {
		_, err := db.InsertNotification(domain.Notification{
			RecipientID: "alice",
			Type:        "hourly_reward",
			Title:       "Hourly reward",
			Message:     "+1 coin",
			Priority:    domain.PriorityVeryLow,
			CreatedAt:   t0.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertNotification() error: %v", err)
		}
	}

	list, err := db.NotificationsFor("alice", 10)
	if err != nil {
		t.Fatalf("NotificationsFor() error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("notifications = %d, want 3", len(list))
	}
	if list[0].Read {
		t.Error("fresh notification should be unread")
	}

	if err := db.MarkNotificationsRead("alice"); err != nil {
		t.Fatalf("MarkNotificationsRead() error: %v", err)
	}
	list, _ = db.NotificationsFor("alice", 10)
	for _, n := range list {
		if !n.Read {
			t.Errorf("notification %d still unread", n.ID)
		}
	}
}
