// Package notify delivers booking messages to the studio and its customers.
package notify

import (
	"context"
	"sync"
	"time"

	"nailbook/internal/domain"
	"nailbook/internal/events"
	"nailbook/internal/metrics"

	"github.com/rs/zerolog"
)

const sendTimeout = 15 * time.Second

// NotifiedEvents are the booking events that trigger notifications.
var NotifiedEvents = []string{
	events.EventBookingConfirmed,
	events.EventBookingCancelled,
	events.EventMaintenanceScheduled,
}

// Dispatcher fans booking events out to every configured channel.
// Sends run in the background; Wait blocks until they finish.
type Dispatcher struct {
	notifiers []domain.Notifier
	logger    *zerolog.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(logger *zerolog.Logger, notifiers ...domain.Notifier) *Dispatcher {
	active := make([]domain.Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Dispatcher{notifiers: active, logger: logger}
}

// Subscribe registers the dispatcher on the bus.
func (d *Dispatcher) Subscribe(bus *events.EventBus) {
	for _, eventType := range NotifiedEvents {
		bus.Subscribe(eventType, d.handle)
	}
}

func (d *Dispatcher) handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	if payload.Booking == nil {
		return nil
	}

	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n domain.Notifier) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()

			if err := n.NotifyBooking(ctx, event.Type, payload.Booking); err != nil {
				metrics.IncNotification(n.Name(), "failed")
				d.logger.Error().Err(err).
					Str("channel", n.Name()).
					Str("event", event.Type).
					Str("booking_id", payload.Booking.ID).
					Msg("Notification failed")
				return
			}
			metrics.IncNotification(n.Name(), "sent")
		}(n)
	}
	return nil
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
