package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/events"
	"nailbook/internal/metrics"
	"nailbook/internal/models"
	"nailbook/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	syncTaskUpsert       = "upsert"
	syncTaskUpdateStatus = "update_status"

	holdKeyPrefix      = "checkout:slot:"
	rateLimitKeyPrefix = "checkout:email:"
)

// Draft is the customer's booking form.
type Draft struct {
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	PaymentOption string `json:"payment_option"`
}

// CheckoutResult is returned once the payment redirect is ready.
type CheckoutResult struct {
	BookingID   string         `json:"booking_id"`
	RedirectURL string         `json:"redirect_url"`
	Amounts     models.Amounts `json:"amounts"`
}

// BookingOptions carries the schedule settings the intake needs.
type BookingOptions struct {
	PublicBaseURL string
	HoldTTL       time.Duration
	Location      *time.Location
	Projection    slots.Projection
	Window        slots.Window
}

// Stats aggregates the admin dashboard figures over non-cancelled bookings.
type Stats struct {
	Revenue           float64           `json:"revenue"`
	Received          float64           `json:"received"`
	PendingRevenue    float64           `json:"pending_revenue"`
	TotalAppointments int               `json:"total_appointments"`
	Today             string            `json:"today"`
	TodayBookings     []*models.Booking `json:"today_bookings"`
}

type BookingService struct {
	repo       domain.Repository
	holds      domain.HoldStore
	gateway    domain.PaymentGateway
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	opts       BookingOptions
	now        domain.Clock
	logger     *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	holds domain.HoldStore,
	gateway domain.PaymentGateway,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = models.DefaultSlotHoldTTL * time.Second
	}
	if opts.Projection.Days == 0 {
		opts.Projection = slots.DefaultProjection()
	}
	if opts.Window.Days == 0 {
		opts.Window = slots.DefaultWindow()
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &BookingService{
		repo:       repo,
		holds:      holds,
		gateway:    gateway,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		opts:       opts,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock replaces the time source, used by tests.
func (s *BookingService) WithClock(clock domain.Clock) *BookingService {
	s.now = clock
	return s
}

func (s *BookingService) today() time.Time {
	return s.now().In(s.opts.Location)
}

// Checkout validates the draft, records a pending booking and returns the
// payment redirect. Nothing is read or written before the policy gate and
// field validation pass.
func (s *BookingService) Checkout(ctx context.Context, draft Draft, policyAccepted bool) (*CheckoutResult, error) {
	if !policyAccepted {
		metrics.IncCheckout("policy_rejected")
		return nil, ErrPolicyNotAccepted
	}
	draft = normalizeDraft(draft)
	if err := validateDraft(draft); err != nil {
		metrics.IncCheckout("invalid")
		return nil, err
	}

	log := s.logger.With().
		Str("service_id", draft.ServiceID).
		Str("date", draft.Date).
		Str("time", draft.Time).
		Logger()

	if s.holds != nil {
		allowed, err := s.holds.CheckRateLimit(ctx, rateLimitKeyPrefix+strings.ToLower(draft.CustomerEmail),
			models.CheckoutAttemptsLimit, models.CheckoutAttemptsWindow*time.Second)
		if err != nil {
			log.Warn().Err(err).Msg("Checkout rate limit check failed")
		} else if !allowed {
			metrics.IncCheckout("rate_limited")
			return nil, ErrTooManyAttempts
		}
	}

	svc, err := s.repo.GetService(ctx, draft.ServiceID)
	if err != nil {
		metrics.IncCheckout("service_not_found")
		return nil, err
	}
	amounts := models.ComputeAmounts(svc.Price, draft.PaymentOption)

	holdKey := holdKeyPrefix + draft.Date + "T" + draft.Time
	owner := uuid.NewString()
	if s.holds != nil {
		ok, err := s.holds.AcquireHold(ctx, holdKey, owner, s.opts.HoldTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Slot hold unavailable, relying on store constraint")
		} else if !ok {
			metrics.IncCheckout("slot_unavailable")
			return nil, ErrSlotUnavailable
		}
		defer func() {
			if err := s.holds.ReleaseHold(context.WithoutCancel(ctx), holdKey, owner); err != nil {
				log.Warn().Err(err).Msg("Failed to release slot hold")
			}
		}()
	}

	open, err := s.slotOpen(ctx, draft.Date, draft.Time)
	if err != nil {
		metrics.IncCheckout("error")
		return nil, err
	}
	if !open {
		metrics.IncCheckout("slot_unavailable")
		return nil, ErrSlotUnavailable
	}

	now := s.now().UTC()
	booking := &models.Booking{
		ID:            uuid.NewString(),
		ServiceID:     svc.ID,
		Date:          draft.Date,
		Time:          draft.Time,
		CustomerName:  draft.CustomerName,
		CustomerEmail: draft.CustomerEmail,
		CustomerPhone: draft.CustomerPhone,
		PaymentOption: draft.PaymentOption,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   amounts.Total,
		DepositAmount: amounts.Deposit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.InsertBooking(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncCheckout("slot_unavailable")
			return nil, ErrSlotUnavailable
		}
		metrics.IncCheckout("error")
		return nil, err
	}
	log = log.With().Str("booking_id", booking.ID).Logger()
	log.Info().Msg("Pending booking created")

	s.publishBooking(events.EventBookingCreated, booking, "customer")
	s.enqueueSync(ctx, booking, syncTaskUpsert)

	mapping, err := s.repo.GetPriceMapping(ctx, svc.ID)
	if err != nil {
		log.Error().Err(err).Msg("Price reference lookup failed, booking left pending")
		metrics.IncCheckout("price_not_found")
		return nil, err
	}

	priceID := mapping.PriceFor(draft.PaymentOption)
	if priceID == "" {
		log.Error().Str("payment_option", draft.PaymentOption).Msg("No price reference for payment option, booking left pending")
		metrics.IncCheckout("price_not_found")
		return nil, fmt.Errorf("%w: no price for option %s", database.ErrPriceMappingNotFound, draft.PaymentOption)
	}

	link, err := s.gateway.CreatePaymentLink(ctx, domain.PaymentLinkRequest{
		PriceID:    priceID,
		BookingID:  booking.ID,
		SuccessURL: s.successURL(booking.ID),
	})
	if err != nil {
		log.Error().Err(err).Msg("Payment link request failed, booking left pending")
		metrics.IncCheckout("link_failed")
		return nil, fmt.Errorf("%w: %w", ErrPaymentLink, err)
	}

	metrics.IncCheckout("redirected")
	return &CheckoutResult{BookingID: booking.ID, RedirectURL: link, Amounts: amounts}, nil
}

func (s *BookingService) successURL(bookingID string) string {
	return fmt.Sprintf("%s/booking-success?appointment_id=%s", s.opts.PublicBaseURL, bookingID)
}

// slotOpen re-checks the slot against freshly loaded data. The date must be
// one of the rolling bookable dates shown to the customer.
func (s *BookingService) slotOpen(ctx context.Context, date, label string) (bool, error) {
	today := s.today()
	if date <= today.Format(models.DateLayout) {
		return false, nil
	}

	store, err := s.repo.FetchAvailability(ctx)
	if err != nil {
		return false, err
	}
	booked, err := s.repo.FetchBookedSlots(ctx)
	if err != nil {
		return false, err
	}
	view := slots.Project(store, today, s.opts.Projection)
	occ := slots.NewOccupancy(booked)

	inWindow := false
	for _, d := range slots.BookableDates(view, occ, today, s.opts.Window) {
		if d == date {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return false, nil
	}
	return slots.IsOpen(view, occ, date, label), nil
}

func normalizeDraft(d Draft) Draft {
	d.ServiceID = strings.TrimSpace(d.ServiceID)
	d.Date = strings.TrimSpace(d.Date)
	d.Time = strings.TrimSpace(d.Time)
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.CustomerEmail = strings.TrimSpace(d.CustomerEmail)
	d.CustomerPhone = strings.TrimSpace(d.CustomerPhone)
	d.PaymentOption = strings.TrimSpace(d.PaymentOption)
	return d
}

func validateDraft(d Draft) error {
	switch {
	case d.ServiceID == "":
		return invalid("service_id", "required")
	case !models.ValidDate(d.Date):
		return invalid("date", "must be YYYY-MM-DD")
	case !models.ValidTimeLabel(d.Time):
		return invalid("time", "must be HH:MM")
	case d.CustomerName == "":
		return invalid("customer_name", "required")
	case d.CustomerEmail == "":
		return invalid("customer_email", "required")
	case d.CustomerPhone == "":
		return invalid("customer_phone", "required")
	case !models.ValidPaymentOption(d.PaymentOption):
		return invalid("payment_option", "must be full or deposit")
	}
	if _, err := mail.ParseAddress(d.CustomerEmail); err != nil {
		return invalid("customer_email", "invalid address")
	}
	return nil
}

// ListBookings returns the admin view; pending orphans are hidden unless asked for.
func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	return s.repo.FetchBookings(ctx, filter)
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// UpdateStatus moves a booking along the status lifecycle.
func (s *BookingService) UpdateStatus(ctx context.Context, id, status, changedBy string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == status {
		return booking, nil
	}
	if !models.CanTransition(booking.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.Status, status)
	}

	if err := s.repo.UpdateBookingStatus(ctx, id, status); err != nil {
		return nil, err
	}
	booking.Status = status
	booking.UpdatedAt = s.now().UTC()

	s.logger.Info().Str("booking_id", id).Str("status", status).Str("changed_by", changedBy).Msg("Booking status changed")
	if eventType := events.EventForStatus(status); eventType != "" {
		s.publishBooking(eventType, booking, changedBy)
	}
	s.enqueueSync(ctx, booking, syncTaskUpdateStatus)
	return booking, nil
}

// ConfirmPayment records a successful payment and promotes a pending booking.
// Repeated calls are no-ops.
func (s *BookingService) ConfirmPayment(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.PaymentStatus != models.PaymentStatusSucceeded {
		if err := s.repo.UpdatePaymentStatus(ctx, id, models.PaymentStatusSucceeded); err != nil {
			return nil, err
		}
		booking.PaymentStatus = models.PaymentStatusSucceeded
	}

	if booking.Status != models.StatusPending {
		return booking, nil
	}
	return s.UpdateStatus(ctx, id, models.StatusConfirmed, "payment")
}

// Stats computes the dashboard figures. Today's bookings are matched by ISO date.
func (s *BookingService) Stats(ctx context.Context) (*Stats, error) {
	bookings, err := s.repo.FetchBookings(ctx, models.BookingFilter{})
	if err != nil {
		return nil, err
	}

	today := s.today().Format(models.DateLayout)
	stats := &Stats{Today: today, TodayBookings: []*models.Booking{}}
	for _, b := range bookings {
		if !b.Occupies() || b.IsMaintenance {
			continue
		}
		stats.TotalAppointments++
		stats.Revenue += b.TotalAmount
		stats.Received += received(b)
		if b.Date == today {
			stats.TodayBookings = append(stats.TodayBookings, b)
		}
	}
	stats.PendingRevenue = stats.Revenue - stats.Received
	return stats, nil
}

// received: завершённый визит оплачен полностью, иначе учитываем только сумму к оплате
func received(b *models.Booking) float64 {
	if b.Status == models.StatusCompleted {
		return b.TotalAmount
	}
	return b.AmountDue()
}

func (s *BookingService) publishBooking(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{Booking: booking, ChangedBy: changedBy}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
