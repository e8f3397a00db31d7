package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/events"
	"nailbook/internal/models"
	"nailbook/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScheduleOptions carries the editor's calendar settings.
type ScheduleOptions struct {
	Location       *time.Location
	Projection     slots.Projection
	AdminHourStart int
	AdminHourEnd   int
}

// MaintenanceRequest is an admin-entered, payment-free visit.
type MaintenanceRequest struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	Note          string `json:"note"`
}

// ScheduleService edits the availability store on behalf of the admin.
// Every mutation works against the load-time view (stored days plus the
// default projection) and is written back in one call.
type ScheduleService struct {
	repo       domain.Repository
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	opts       ScheduleOptions
	now        domain.Clock
	logger     *zerolog.Logger
}

func NewScheduleService(repo domain.Repository, eventBus domain.EventPublisher, syncWorker domain.SyncWorker, opts ScheduleOptions, logger *zerolog.Logger) *ScheduleService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Projection.Days == 0 {
		opts.Projection = slots.DefaultProjection()
	}
	if opts.AdminHourEnd == 0 {
		opts.AdminHourStart, opts.AdminHourEnd = 9, 22
	}
	return &ScheduleService{
		repo:       repo,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		opts:       opts,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *ScheduleService) WithClock(clock domain.Clock) *ScheduleService {
	s.now = clock
	return s
}

func (s *ScheduleService) Today() time.Time {
	return s.now().In(s.opts.Location)
}

// View loads the store and injects the default projection.
func (s *ScheduleService) View(ctx context.Context) (slots.Store, error) {
	store, err := s.repo.FetchAvailability(ctx)
	if err != nil {
		return nil, err
	}
	return slots.Project(store, s.Today(), s.opts.Projection), nil
}

// Window returns the next bookable dates for customers.
func (s *ScheduleService) Window(ctx context.Context, w slots.Window) ([]string, error) {
	view, occ, err := s.viewWithOccupancy(ctx)
	if err != nil {
		return nil, err
	}
	return slots.BookableDates(view, occ, s.Today(), w), nil
}

// OpenSlots returns a date's free labels for customers.
func (s *ScheduleService) OpenSlots(ctx context.Context, date string) ([]string, error) {
	if !models.ValidDate(date) {
		return nil, invalid("date", "must be YYYY-MM-DD")
	}
	view, occ, err := s.viewWithOccupancy(ctx)
	if err != nil {
		return nil, err
	}
	return slots.OpenSlots(view, occ, date), nil
}

func (s *ScheduleService) viewWithOccupancy(ctx context.Context) (slots.Store, slots.Occupancy, error) {
	view, err := s.View(ctx)
	if err != nil {
		return nil, nil, err
	}
	booked, err := s.repo.FetchBookedSlots(ctx)
	if err != nil {
		return nil, nil, err
	}
	return view, slots.NewOccupancy(booked), nil
}

// current returns a mutable copy of a day, or fallback when the date is unknown.
func (s *ScheduleService) current(ctx context.Context, date string, fallbackOpen bool) (*models.DayAvailability, error) {
	if !models.ValidDate(date) {
		return nil, invalid("date", "must be YYYY-MM-DD")
	}
	view, err := s.View(ctx)
	if err != nil {
		return nil, err
	}
	if day, ok := view[date]; ok && day != nil {
		day = day.Clone()
		day.Date = date
		return day, nil
	}
	return &models.DayAvailability{Date: date, Available: fallbackOpen, Slots: []string{}}, nil
}

// ToggleDay flips the open flag, keeping the slot list.
func (s *ScheduleService) ToggleDay(ctx context.Context, date string) (*models.DayAvailability, error) {
	day, err := s.current(ctx, date, false)
	if err != nil {
		return nil, err
	}
	day.Available = !day.Available
	return s.save(ctx, day, "toggle_day")
}

// ReplaceSlots sets the day's labels, keeping the open flag.
func (s *ScheduleService) ReplaceSlots(ctx context.Context, date string, labels []string) (*models.DayAvailability, error) {
	for _, label := range labels {
		if !models.ValidTimeLabel(label) {
			return nil, invalid("slots", fmt.Sprintf("invalid time %q", label))
		}
	}
	day, err := s.current(ctx, date, true)
	if err != nil {
		return nil, err
	}
	day.Slots = models.NormalizeSlots(labels)
	return s.save(ctx, day, "replace_slots")
}

// ToggleSlot adds the label when missing and removes it otherwise.
func (s *ScheduleService) ToggleSlot(ctx context.Context, date, label string) (*models.DayAvailability, error) {
	if !models.ValidTimeLabel(label) {
		return nil, invalid("time", "must be HH:MM")
	}
	day, err := s.current(ctx, date, true)
	if err != nil {
		return nil, err
	}
	if day.HasSlot(label) {
		day.Slots = day.WithoutSlot(label)
	} else {
		day.Slots = day.WithSlot(label)
	}
	return s.save(ctx, day, "toggle_slot")
}

func (s *ScheduleService) save(ctx context.Context, day *models.DayAvailability, action string) (*models.DayAvailability, error) {
	if err := s.repo.UpsertAvailability(ctx, day); err != nil {
		s.logger.Error().Err(err).Str("date", day.Date).Str("action", action).Msg("Availability update failed")
		return nil, err
	}
	s.logger.Info().Str("date", day.Date).Str("action", action).Bool("available", day.Available).Strs("slots", day.Slots).Msg("Availability updated")
	s.publish(events.EventAvailabilityChanged, events.AvailabilityEventPayload{Day: day, Action: action})
	return day, nil
}

// ScheduleMaintenance books a confirmed, free visit and makes sure the label
// is part of the day's slots, both in one store mutation.
func (s *ScheduleService) ScheduleMaintenance(ctx context.Context, req MaintenanceRequest) (*models.Booking, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if !models.ValidTimeLabel(req.Time) {
		return nil, invalid("time", "must be HH:MM")
	}
	if req.CustomerName == "" {
		return nil, invalid("customer_name", "required")
	}
	if err := s.checkAdminHours(req.Time); err != nil {
		return nil, err
	}

	day, err := s.current(ctx, req.Date, true)
	if err != nil {
		return nil, err
	}
	if !day.HasSlot(req.Time) {
		day.Slots = day.WithSlot(req.Time)
	}

	now := s.now().UTC()
	booking := &models.Booking{
		ID:            uuid.NewString(),
		ServiceID:     models.MaintenanceServiceID,
		Date:          req.Date,
		Time:          req.Time,
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		PaymentOption: models.PaymentOptionFull,
		Status:        models.StatusConfirmed,
		PaymentStatus: models.PaymentStatusSucceeded,
		IsMaintenance: true,
		Note:          strings.TrimSpace(req.Note),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.ScheduleMaintenance(ctx, day, booking); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		s.logger.Error().Err(err).Str("date", req.Date).Str("time", req.Time).Msg("Maintenance scheduling failed")
		return nil, err
	}

	s.logger.Info().Str("booking_id", booking.ID).Str("date", req.Date).Str("time", req.Time).Msg("Maintenance booking scheduled")
	s.publish(events.EventMaintenanceScheduled, events.BookingEventPayload{Booking: booking, ChangedBy: "admin"})
	s.publish(events.EventAvailabilityChanged, events.AvailabilityEventPayload{Day: day, Action: "maintenance"})
	if s.syncWorker != nil {
		if err := s.syncWorker.EnqueueTask(ctx, syncTaskUpsert, booking); err != nil {
			s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("sheets enqueue error")
		}
	}
	return booking, nil
}

// checkAdminHours limits maintenance labels to the admin picker range, end hour inclusive.
func (s *ScheduleService) checkAdminHours(label string) error {
	t, err := time.Parse(models.TimeLayout, label)
	if err != nil {
		return invalid("time", "must be HH:MM")
	}
	minutes := t.Hour()*60 + t.Minute()
	if minutes < s.opts.AdminHourStart*60 || minutes > s.opts.AdminHourEnd*60 {
		return invalid("time", fmt.Sprintf("must be between %02d:00 and %02d:00", s.opts.AdminHourStart, s.opts.AdminHourEnd))
	}
	return nil
}

func (s *ScheduleService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
