// Package confirmation polls the payment status of a booking after the
// customer returns from the payment page.
package confirmation

import (
	"context"
	"time"

	"nailbook/internal/domain"
	"nailbook/internal/metrics"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
)

type State string

const (
	StateChecking  State = "checking"
	StateConfirmed State = "confirmed"
	StatePending   State = "pending"
)

// Watcher repeats a status check until the payment succeeds or the budget runs out.
type Watcher struct {
	checker  domain.StatusChecker
	interval time.Duration
	budget   time.Duration
	logger   *zerolog.Logger
}

func NewWatcher(checker domain.StatusChecker, interval, budget time.Duration, logger *zerolog.Logger) *Watcher {
	if interval <= 0 {
		interval = models.DefaultPollIntervalSeconds * time.Second
	}
	if budget <= 0 {
		budget = models.DefaultPollBudgetSeconds * time.Second
	}
	return &Watcher{checker: checker, interval: interval, budget: budget, logger: logger}
}

// Watch checks immediately, then once per interval. It returns on success,
// when the budget measured from the first check elapses, or when ctx is done.
// onChange, if set, sees every state transition.
func (w *Watcher) Watch(ctx context.Context, bookingID string, onChange func(State)) State {
	state := StateChecking
	set := func(next State) {
		if next == state {
			return
		}
		state = next
		if onChange != nil {
			onChange(next)
		}
	}

	if bookingID == "" {
		set(StatePending)
		return state
	}
	if onChange != nil {
		onChange(StateChecking)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.budget)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log := w.logger.With().Str("booking_id", bookingID).Logger()
	polls := 0
poll:
	for {
		polls++
		if w.paid(ctx, bookingID, &log) {
			set(StateConfirmed)
			break
		}
		set(StatePending)

		if time.Since(start) >= w.budget {
			break
		}
		select {
		case <-ctx.Done():
			break poll
		case <-ticker.C:
		}
	}

	log.Debug().Str("state", string(state)).Int("polls", polls).Dur("elapsed", time.Since(start)).Msg("Payment watch finished")
	metrics.IncConfirmation(string(state))
	return state
}

func (w *Watcher) paid(ctx context.Context, bookingID string, log *zerolog.Logger) bool {
	status, err := w.checker.CheckPaymentStatus(ctx, bookingID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Payment status check failed")
		}
		return false
	}
	return status == models.PaymentStatusSucceeded
}
