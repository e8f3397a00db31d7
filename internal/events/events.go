package events

import (
	"encoding/json"
	"sync"
	"time"

	"nailbook/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingConfirmed     = "booking_confirmed"
	EventBookingCompleted     = "booking_completed"
	EventBookingCancelled     = "booking_cancelled"
	EventMaintenanceScheduled = "maintenance_scheduled"
	EventAvailabilityChanged  = "availability_changed"
)

// EventForStatus maps a booking status to the event announcing it.
func EventForStatus(status string) string {
	switch status {
	case models.StatusConfirmed:
		return EventBookingConfirmed
	case models.StatusCompleted:
		return EventBookingCompleted
	case models.StatusCancelled:
		return EventBookingCancelled
	default:
		return ""
	}
}

// BookingEventPayload is the booking snapshot carried by booking events.
type BookingEventPayload struct {
	Booking   *models.Booking `json:"booking"`
	ChangedBy string          `json:"changed_by,omitempty"`
}

// AvailabilityEventPayload is carried by availability_changed.
type AvailabilityEventPayload struct {
	Day    *models.DayAvailability `json:"day"`
	Action string                  `json:"action"` // toggle_day, replace_slots, toggle_slot
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs subscribers synchronously; handler errors are logged, never returned.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
