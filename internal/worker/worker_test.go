package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeSheets struct {
	mu         sync.Mutex
	upserts    []string
	statuses   map[string]string
	replaced   int
	failUpsert error
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{statuses: make(map[string]string)}
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return f.failUpsert
	}
	f.upserts = append(f.upserts, booking.ID)
	return nil
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, bookingID string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[bookingID] = status
	return nil
}

func (f *fakeSheets) ReplaceAgenda(ctx context.Context, bookings []*models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = len(bookings)
	return nil
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", nopLogger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retries int) {
	t.Helper()
	row := db.QueryRow(`SELECT status, retry_count FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retries); err != nil {
		t.Fatalf("load task: %v", err)
	}
	return status, retries
}

func testBooking(id string) *models.Booking {
	return &models.Booking{
		ID:           id,
		ServiceID:    "gel",
		Date:         "2025-03-11",
		Time:         "09:00",
		CustomerName: "Ana",
		Status:       models.StatusPending,
	}
}

func enqueueAndTake(t *testing.T, w *SheetsWorker, taskType string, b *models.Booking) models.SyncTask {
	t.Helper()
	if err := w.EnqueueTask(context.Background(), taskType, b); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	return task
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := newFakeSheets()
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, 10, nopLogger())

	task := enqueueAndTake(t, w, TaskUpsert, testBooking("b-1"))
	w.processTask(context.Background(), &task)

	if len(sheets.upserts) != 1 || sheets.upserts[0] != "b-1" {
		t.Fatalf("unexpected upserts: %v", sheets.upserts)
	}
	if status, _ := loadTaskStatus(t, db, task.ID); status != models.SyncStatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
}

func TestProcessTaskStatusUpdate(t *testing.T) {
	db := newTestDB(t)
	sheets := newFakeSheets()
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, 10, nopLogger())

	b := testBooking("b-2")
	b.Status = models.StatusConfirmed
	task := enqueueAndTake(t, w, TaskUpdateStatus, b)
	w.processTask(context.Background(), &task)

	if got := sheets.statuses["b-2"]; got != models.StatusConfirmed {
		t.Fatalf("expected confirmed status in sheet, got %q", got)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := newFakeSheets()
	sheets.failUpsert = errors.New("quota exceeded")
	w := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Hour}, 10, nopLogger())

	task := enqueueAndTake(t, w, TaskUpsert, testBooking("b-3"))
	w.processTask(context.Background(), &task)

	status, retries := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusRetry || retries != 1 {
		t.Fatalf("expected retry/1, got %s/%d", status, retries)
	}

	// next_retry_at в будущем, задача не должна выбираться
	due, err := db.GetPendingSyncTasks(context.Background(), 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no due tasks, got %d", len(due))
	}
}

func TestProcessTaskFailPushesDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db := newTestDB(t)
	sheets := newFakeSheets()
	sheets.failUpsert = errors.New("permission denied")
	w := NewSheetsWorker(db, sheets, rdb, RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond}, 10, nopLogger())

	if err := w.EnqueueTask(context.Background(), TaskUpsert, testBooking("b-4")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := w.tryRedis(context.Background())
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	w.processTask(context.Background(), &task)

	if status, _ := loadTaskStatus(t, db, task.ID); status != models.SyncStatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	items, err := rdb.LRange(context.Background(), w.deadLetterKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(items))
	}
	var dead models.SyncTask
	if err := json.Unmarshal([]byte(items[0]), &dead); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if dead.BookingID != "b-4" {
		t.Fatalf("unexpected dead letter booking %q", dead.BookingID)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	store := NewMemoryTaskStore()
	w := NewSheetsWorker(store, newFakeSheets(), nil, RetryPolicy{}, 10, nopLogger())

	task := models.SyncTask{TaskType: TaskUpsert, BookingID: "b-5", Payload: "{"}
	if err := store.CreateSyncTask(context.Background(), &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	w.processTask(context.Background(), &task)

	due, _ := store.GetPendingSyncTasks(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("failed task should not be pending, got %d", len(due))
	}
}

func TestEnqueueTaskValidation(t *testing.T) {
	w := NewSheetsWorker(NewMemoryTaskStore(), newFakeSheets(), nil, RetryPolicy{}, 1, nopLogger())

	if err := w.EnqueueTask(context.Background(), "", testBooking("x")); err == nil {
		t.Fatalf("expected error for empty task type")
	}
	if err := w.EnqueueTask(context.Background(), TaskUpsert, &models.Booking{}); err == nil {
		t.Fatalf("expected error for empty booking id")
	}
}

func TestEnqueueTaskQueueFullLeavesTaskForPolling(t *testing.T) {
	store := NewMemoryTaskStore()
	w := NewSheetsWorker(store, newFakeSheets(), nil, RetryPolicy{}, 1, nopLogger())

	for _, id := range []string{"a", "b"} {
		if err := w.EnqueueTask(context.Background(), TaskUpsert, testBooking(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	due, err := store.GetPendingSyncTasks(context.Background(), 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected both tasks persisted, got %d", len(due))
	}
}

func TestStartDrainsQueue(t *testing.T) {
	store := NewMemoryTaskStore()
	sheets := newFakeSheets()
	w := NewSheetsWorker(store, sheets, nil, RetryPolicy{}, 10, nopLogger())
	w.pollInterval = 10 * time.Millisecond

	if err := w.EnqueueTask(context.Background(), TaskUpsert, testBooking("s-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sheets.mu.Lock()
		n := len(sheets.upserts)
		sheets.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if len(sheets.upserts) != 1 {
		t.Fatalf("expected one upsert, got %v", sheets.upserts)
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	cases := map[int]time.Duration{
		0: time.Second,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
	}
	for attempt, want := range cases {
		if got := p.NextDelay(attempt); got != want {
			t.Fatalf("attempt %d: want %s, got %s", attempt, want, got)
		}
	}
}
