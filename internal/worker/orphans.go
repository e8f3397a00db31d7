package worker

import (
	"context"
	"time"

	"nailbook/internal/domain"
	"nailbook/internal/metrics"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
)

// OrphanReporter logs pending bookings that never got a payment.
// They are left in place for the admin to reconcile.
type OrphanReporter struct {
	repo      domain.Repository
	olderThan time.Duration
	now       domain.Clock
	logger    *zerolog.Logger
}

func NewOrphanReporter(repo domain.Repository, olderThan time.Duration, logger *zerolog.Logger) *OrphanReporter {
	if olderThan <= 0 {
		olderThan = time.Hour
	}
	return &OrphanReporter{repo: repo, olderThan: olderThan, now: time.Now, logger: logger}
}

// Run finds the orphans, updates the gauge and returns them.
func (r *OrphanReporter) Run(ctx context.Context) ([]*models.Booking, error) {
	pending, err := r.repo.FetchBookings(ctx, models.BookingFilter{
		IncludePending: true,
		Status:         models.StatusPending,
	})
	if err != nil {
		return nil, err
	}

	cutoff := r.now().Add(-r.olderThan)
	var orphans []*models.Booking
	for _, b := range pending {
		if b.IsMaintenance || !b.CreatedAt.Before(cutoff) {
			continue
		}
		orphans = append(orphans, b)
		r.logger.Warn().
			Str("booking_id", b.ID).
			Str("date", b.Date).
			Str("time", b.Time).
			Time("created_at", b.CreatedAt).
			Msg("Pending booking without payment")
	}

	metrics.SetOrphanBookings(len(orphans))
	if len(orphans) > 0 {
		r.logger.Info().Int("count", len(orphans)).Msg("Orphan bookings found")
	}
	return orphans, nil
}

// Job adapts Run to the scheduler.
func (r *OrphanReporter) Job() Job {
	return func(ctx context.Context) error {
		_, err := r.Run(ctx)
		return err
	}
}

// AgendaResync rewrites the whole agenda sheet from the ledger.
func AgendaResync(repo domain.Repository, sheets domain.SheetsWriter) Job {
	return func(ctx context.Context) error {
		bookings, err := repo.FetchBookings(ctx, models.BookingFilter{})
		if err != nil {
			return err
		}
		return sheets.ReplaceAgenda(ctx, bookings)
	}
}
