package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nailbook/internal/domain"
	"nailbook/internal/metrics"
	"nailbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Task types understood by the agenda worker.
const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

const (
	agendaQueueKey      = "agenda:queue"
	agendaDeadLetterKey = "agenda:deadletter"
)

var (
	errTaskTypeRequired = errors.New("task type is required")
	errBookingRequired  = errors.New("booking id is required")
)

// agendaPayload is stored in SyncTask.Payload.
type agendaPayload struct {
	BookingID string          `json:"booking_id"`
	Booking   *models.Booking `json:"booking,omitempty"`
	Status    string          `json:"status,omitempty"`
}

func (p agendaPayload) apply(ctx context.Context, sheets domain.SheetsWriter, taskType string) error {
	switch taskType {
	case TaskUpsert:
		if p.Booking == nil {
			return errors.New("booking payload missing")
		}
		return sheets.UpsertBooking(ctx, p.Booking)
	case TaskUpdateStatus:
		if p.BookingID == "" || p.Status == "" {
			return errors.New("booking id or status missing")
		}
		return sheets.UpdateBookingStatus(ctx, p.BookingID, p.Status)
	}
	return fmt.Errorf("unknown task type: %s", taskType)
}

// SheetsWorker mirrors booking changes into the agenda sheet.
// Tasks are always persisted in the TaskStore first; redis and the local
// channel only speed up delivery, the store is polled for everything else.
type SheetsWorker struct {
	store  TaskStore
	sheets domain.SheetsWriter
	redis  *redis.Client
	retry  RetryPolicy
	queue  chan models.SyncTask
	logger *zerolog.Logger

	queueKey      string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	now           func() time.Time
}

// NewSheetsWorker creates the worker. redisClient may be nil.
func NewSheetsWorker(store TaskStore, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *SheetsWorker {
	if queueSize <= 0 {
		queueSize = models.WorkerQueueSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SheetsWorker{
		store:         store,
		sheets:        sheets,
		redis:         redisClient,
		retry:         retry.withDefaults(),
		queue:         make(chan models.SyncTask, queueSize),
		logger:        logger,
		queueKey:      agendaQueueKey,
		deadLetterKey: agendaDeadLetterKey,
		pollInterval:  2 * time.Second,
		batchSize:     20,
		now:           time.Now,
	}
}

// EnqueueTask records a sheet update for the booking.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	if taskType == "" {
		return errTaskTypeRequired
	}
	if booking == nil || booking.ID == "" {
		return errBookingRequired
	}

	payload := agendaPayload{BookingID: booking.ID, Booking: booking}
	if taskType == TaskUpdateStatus {
		payload.Status = booking.Status
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:  taskType,
		BookingID: booking.ID,
		Payload:   string(raw),
		Status:    models.SyncStatusPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		err := w.pushList(ctx, w.queueKey, &task)
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, using memory queue")
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("Memory queue full, task left to polling")
	}
	return nil
}

// Start processes tasks until ctx is cancelled.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Agenda worker started")
	defer w.logger.Info().Msg("Agenda worker stopped")

	for ctx.Err() == nil {
		batch := w.nextBatch(ctx)
		if len(batch) == 0 {
			w.wait(ctx)
			continue
		}
		for i := range batch {
			w.processTask(ctx, &batch[i])
		}
	}
}

// nextBatch: local channel, потом redis, потом таблица sync_queue.
func (w *SheetsWorker) nextBatch(ctx context.Context) []models.SyncTask {
	if t, ok := w.tryLocalQueue(); ok {
		return []models.SyncTask{t}
	}
	if t, ok := w.tryRedis(ctx); ok {
		return []models.SyncTask{t}
	}
	tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
	if err != nil && ctx.Err() == nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending sync tasks")
	}
	return tasks
}

func (w *SheetsWorker) wait(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	var payload agendaPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.fail(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}
	if err := payload.apply(ctx, w.sheets, task.TaskType); err != nil {
		attempt := task.RetryCount + 1
		if attempt >= w.retry.MaxRetries {
			w.fail(ctx, task, err)
			return
		}
		next := w.now().Add(w.retry.NextDelay(attempt))
		w.logger.Warn().Err(err).
			Int64("task_id", task.ID).
			Int("attempt", attempt).
			Time("next_retry_at", next).
			Msg("Sync task will be retried")
		w.settle(ctx, task, models.SyncStatusRetry, err, &next)
		return
	}
	w.settle(ctx, task, models.SyncStatusCompleted, nil, nil)
}

func (w *SheetsWorker) fail(ctx context.Context, task *models.SyncTask, cause error) {
	w.logger.Error().Err(cause).
		Int64("task_id", task.ID).
		Str("booking_id", task.BookingID).
		Msg("Sync task failed")
	w.settle(ctx, task, models.SyncStatusFailed, cause, nil)

	if w.redis == nil {
		return
	}
	if err := w.pushList(ctx, w.deadLetterKey, task); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}

func (w *SheetsWorker) settle(ctx context.Context, task *models.SyncTask, status string, cause error, next *time.Time) {
	metrics.IncSyncTask(status)
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, status, msg, next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Str("status", status).Msg("Failed to update sync task")
	}
}

func (w *SheetsWorker) pushList(ctx context.Context, key string, task *models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
