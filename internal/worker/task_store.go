package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nailbook/internal/models"
)

// TaskStore persists sync tasks between enqueue and completion.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// MemoryTaskStore keeps tasks in process memory, for deployments whose
// ledger lives outside the local database.
type MemoryTaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*models.SyncTask
	now    func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[int64]*models.SyncTask), now: time.Now}
}

func (s *MemoryTaskStore) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	task.ID = s.nextID
	task.CreatedAt = s.now().UTC()
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

func (s *MemoryTaskStore) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []models.SyncTask
	for _, t := range s.tasks {
		if t.Status != models.SyncStatusPending && t.Status != models.SyncStatusRetry {
			continue
		}
		if t.NextRetryAt != nil && t.NextRetryAt.After(now) {
			continue
		}
		due = append(due, *t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryTaskStore) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("sync task %d not found", id)
	}
	switch status {
	case models.SyncStatusRetry:
		t.RetryCount++
		t.NextRetryAt = nextRetryAt
	case models.SyncStatusCompleted, models.SyncStatusFailed:
		now := s.now().UTC()
		t.ProcessedAt = &now
		t.NextRetryAt = nil
		// завершённые задачи больше не нужны
		defer delete(s.tasks, id)
	default:
		return fmt.Errorf("unsupported sync task status %q", status)
	}
	t.Status = status
	t.LastError = errMsg
	return nil
}
