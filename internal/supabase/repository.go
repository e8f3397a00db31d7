package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	tableServices      = "services"
	tableAvailability  = "availability"
	tableAppointments  = "appointments"
	tablePublicBooked  = "public_appointments"
	tableStripeProduct = "stripe_products"
)

// restClient is the part of the Supabase client used here.
type restClient interface {
	From(table string) *postgrest.QueryBuilder
}

// Repository stores availability and bookings in Supabase tables via PostgREST.
type Repository struct {
	client restClient
	logger *zerolog.Logger
}

// NewClient opens a Supabase client with the service key.
func NewClient(url, serviceKey string) (*supa.Client, error) {
	client, err := supa.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}

func NewRepository(client restClient, logger *zerolog.Logger) *Repository {
	return &Repository{client: client, logger: logger}
}

type availabilityRow struct {
	Date      string   `json:"date"`
	Available bool     `json:"available"`
	Slots     []string `json:"slots"`
}

type appointmentRow struct {
	ID            string    `json:"id"`
	ServiceID     string    `json:"service_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	UserName      string    `json:"user_name"`
	UserEmail     string    `json:"user_email"`
	UserPhone     string    `json:"user_phone"`
	PaymentOption string    `json:"payment_option"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   float64   `json:"total_amount"`
	DepositAmount float64   `json:"deposit_amount"`
	Value         float64   `json:"value"`
	IsMaintenance bool      `json:"is_maintenance"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type serviceRow struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Popular     bool      `json:"popular"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

func toAppointmentRow(b *models.Booking) appointmentRow {
	return appointmentRow{
		ID:            b.ID,
		ServiceID:     b.ServiceID,
		Date:          b.Date,
		Time:          b.Time,
		UserName:      b.CustomerName,
		UserEmail:     b.CustomerEmail,
		UserPhone:     b.CustomerPhone,
		PaymentOption: b.PaymentOption,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		TotalAmount:   b.TotalAmount,
		DepositAmount: b.DepositAmount,
		Value:         b.TotalAmount,
		IsMaintenance: b.IsMaintenance,
		Note:          b.Note,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func (r appointmentRow) toModel() *models.Booking {
	total := r.TotalAmount
	if total == 0 {
		total = r.Value
	}
	option := r.PaymentOption
	if option == "" {
		option = models.PaymentOptionFull
	}
	return &models.Booking{
		ID:            r.ID,
		ServiceID:     r.ServiceID,
		Date:          r.Date,
		Time:          r.Time,
		CustomerName:  r.UserName,
		CustomerEmail: r.UserEmail,
		CustomerPhone: r.UserPhone,
		PaymentOption: option,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		TotalAmount:   total,
		DepositAmount: r.DepositAmount,
		IsMaintenance: r.IsMaintenance,
		Note:          r.Note,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r serviceRow) toModel() *models.Service {
	return &models.Service{
		ID:          r.ID,
		Name:        r.Name,
		Price:       int64(r.Price),
		Description: r.Description,
		Image:       r.Image,
		Popular:     r.Popular,
		CreatedAt:   r.CreatedAt,
	}
}

// isConflict recognizes a PostgREST unique violation.
func isConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

func decode(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode supabase response: %w", err)
	}
	return nil
}

func (r *Repository) FetchAvailability(ctx context.Context) (map[string]*models.DayAvailability, error) {
	data, _, err := r.client.From(tableAvailability).Select("*", "", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch availability: %w", err)
	}
	var rows []availabilityRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	days := make(map[string]*models.DayAvailability, len(rows))
	for _, row := range rows {
		days[row.Date] = &models.DayAvailability{
			Date:      row.Date,
			Available: row.Available,
			Slots:     models.NormalizeSlots(row.Slots),
		}
	}
	return days, nil
}

func (r *Repository) GetDayAvailability(ctx context.Context, date string) (*models.DayAvailability, error) {
	data, _, err := r.client.From(tableAvailability).Select("*", "", false).Eq("date", date).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get availability for %s: %w", date, err)
	}
	var rows []availabilityRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return &models.DayAvailability{Date: rows[0].Date, Available: rows[0].Available, Slots: models.NormalizeSlots(rows[0].Slots)}, nil
}

func (r *Repository) UpsertAvailability(ctx context.Context, day *models.DayAvailability) error {
	row := availabilityRow{Date: day.Date, Available: day.Available, Slots: models.NormalizeSlots(day.Slots)}
	if _, _, err := r.client.From(tableAvailability).Upsert(row, "date", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to upsert availability for %s: %w", day.Date, err)
	}
	return nil
}

func (r *Repository) FetchBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	q := r.client.From(tableAppointments).Select("*", "", false)
	if !filter.IncludePending {
		q = q.Neq("status", models.StatusPending)
	}
	if filter.Status != "" {
		q = q.Eq("status", filter.Status)
	}
	if filter.DateFrom != "" {
		q = q.Gte("date", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Lte("date", filter.DateTo)
	}
	q = q.Order("date", &postgrest.OrderOpts{Ascending: true}).Order("time", &postgrest.OrderOpts{Ascending: true})

	data, _, err := q.Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	var rows []appointmentRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	bookings := make([]*models.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toModel())
	}
	return bookings, nil
}

func (r *Repository) FetchBookedSlots(ctx context.Context) ([]models.BookedSlot, error) {
	data, _, err := r.client.From(tablePublicBooked).Select("*", "", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booked slots: %w", err)
	}
	var slots []models.BookedSlot
	if err := decode(data, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *Repository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	data, _, err := r.client.From(tableAppointments).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	var rows []appointmentRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return rows[0].toModel(), nil
}

func (r *Repository) InsertBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now
	if _, _, err := r.client.From(tableAppointments).Insert(toAppointmentRow(booking), false, "", "", "").Execute(); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%s %s: %w", booking.Date, booking.Time, database.ErrSlotTaken)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (r *Repository) UpdateBookingStatus(ctx context.Context, id string, status string) error {
	return r.updateAppointment(id, map[string]interface{}{"status": status})
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id string, paymentStatus string) error {
	return r.updateAppointment(id, map[string]interface{}{"payment_status": paymentStatus})
}

func (r *Repository) updateAppointment(id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	data, _, err := r.client.From(tableAppointments).Update(fields, "representation", "").Eq("id", id).Execute()
	if err != nil {
		if isConflict(err) {
			return database.ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking: %w", err)
	}
	var rows []appointmentRow
	if err := decode(data, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ScheduleMaintenance upserts the day then inserts the booking; a failed insert
// restores the previous day record.
func (r *Repository) ScheduleMaintenance(ctx context.Context, day *models.DayAvailability, booking *models.Booking) error {
	previous, err := r.GetDayAvailability(ctx, day.Date)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}

	if err := r.UpsertAvailability(ctx, day); err != nil {
		return err
	}

	insertErr := r.InsertBooking(ctx, booking)
	if insertErr == nil {
		return nil
	}

	var restoreErr error
	if previous != nil {
		restoreErr = r.UpsertAvailability(ctx, previous)
	} else {
		_, _, restoreErr = r.client.From(tableAvailability).Delete("", "").Eq("date", day.Date).Execute()
	}
	if restoreErr != nil {
		r.logger.Error().Err(restoreErr).Str("date", day.Date).Msg("Failed to restore availability after maintenance insert failure")
	}
	return insertErr
}

func (r *Repository) ListServices(ctx context.Context) ([]*models.Service, error) {
	data, _, err := r.client.From(tableServices).Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	var rows []serviceRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	services := make([]*models.Service, 0, len(rows))
	for _, row := range rows {
		services = append(services, row.toModel())
	}
	return services, nil
}

func (r *Repository) GetService(ctx context.Context, id string) (*models.Service, error) {
	data, _, err := r.client.From(tableServices).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	var rows []serviceRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, database.ErrServiceNotFound
	}
	return rows[0].toModel(), nil
}

func (r *Repository) InsertService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	service.CreatedAt = time.Now().UTC()
	row := serviceRow{
		ID:          service.ID,
		Name:        service.Name,
		Price:       float64(service.Price),
		Description: service.Description,
		Image:       service.Image,
		Popular:     service.Popular,
		CreatedAt:   service.CreatedAt,
	}
	if _, _, err := r.client.From(tableServices).Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}
	return nil
}

func (r *Repository) UpdateService(ctx context.Context, service *models.Service) error {
	fields := map[string]interface{}{
		"name":        service.Name,
		"price":       service.Price,
		"description": service.Description,
		"image":       service.Image,
		"popular":     service.Popular,
	}
	data, _, err := r.client.From(tableServices).Update(fields, "representation", "").Eq("id", service.ID).Execute()
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	var rows []serviceRow
	if err := decode(data, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return database.ErrServiceNotFound
	}
	return nil
}

func (r *Repository) DeleteService(ctx context.Context, id string) error {
	data, _, err := r.client.From(tableServices).Delete("representation", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	var rows []serviceRow
	if err := decode(data, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return database.ErrServiceNotFound
	}
	return nil
}

type stripeProductRow struct {
	ServiceID      string `json:"service_id"`
	ProductID      string `json:"stripe_product_id"`
	PriceFullID    string `json:"stripe_price_full_id"`
	PriceDepositID string `json:"stripe_price_deposit_id"`
}

func (r *Repository) GetPriceMapping(ctx context.Context, serviceID string) (*models.PriceMapping, error) {
	data, _, err := r.client.From(tableStripeProduct).Select("*", "", false).Eq("service_id", serviceID).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get price mapping: %w", err)
	}
	var rows []stripeProductRow
	if err := decode(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, database.ErrPriceMappingNotFound
	}
	m := models.PriceMapping(rows[0])
	return &m, nil
}

func (r *Repository) UpsertPriceMapping(ctx context.Context, m *models.PriceMapping) error {
	row := stripeProductRow(*m)
	if _, _, err := r.client.From(tableStripeProduct).Upsert(row, "service_id", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to upsert price mapping: %w", err)
	}
	return nil
}

// Ping issues a cheap HEAD count on services.
func (r *Repository) Ping(ctx context.Context) error {
	if _, _, err := r.client.From(tableServices).Select("id", "exact", true).Limit(1, "").Execute(); err != nil {
		return fmt.Errorf("failed to ping supabase: %w", err)
	}
	return nil
}
