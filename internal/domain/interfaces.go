package domain

import (
	"context"
	"time"

	"nailbook/internal/models"
)

// Repository is the availability store and booking ledger.
type Repository interface {
	FetchAvailability(ctx context.Context) (map[string]*models.DayAvailability, error)
	GetDayAvailability(ctx context.Context, date string) (*models.DayAvailability, error)
	UpsertAvailability(ctx context.Context, day *models.DayAvailability) error

	FetchBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	FetchBookedSlots(ctx context.Context) ([]models.BookedSlot, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id string, status string) error
	UpdatePaymentStatus(ctx context.Context, id string, paymentStatus string) error
	ScheduleMaintenance(ctx context.Context, day *models.DayAvailability, booking *models.Booking) error

	ListServices(ctx context.Context) ([]*models.Service, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
	InsertService(ctx context.Context, service *models.Service) error
	UpdateService(ctx context.Context, service *models.Service) error
	DeleteService(ctx context.Context, id string) error

	GetPriceMapping(ctx context.Context, serviceID string) (*models.PriceMapping, error)
	UpsertPriceMapping(ctx context.Context, mapping *models.PriceMapping) error

	Ping(ctx context.Context) error
}

// HoldStore keeps short-lived slot holds and attempt counters.
type HoldStore interface {
	AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseHold(ctx context.Context, key, owner string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PaymentLinkRequest is what the payment backend needs to build a checkout page.
type PaymentLinkRequest struct {
	PriceID    string
	BookingID  string
	SuccessURL string
}

type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (string, error)
}

// StatusChecker reports the payment status of a booking.
type StatusChecker interface {
	CheckPaymentStatus(ctx context.Context, bookingID string) (string, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a booking message over one channel.
type Notifier interface {
	Name() string
	NotifyBooking(ctx context.Context, eventType string, booking *models.Booking) error
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status string) error
	ReplaceAgenda(ctx context.Context, bookings []*models.Booking) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

// Clock returns the current instant; studio-local conversion happens in the caller.
type Clock func() time.Time
