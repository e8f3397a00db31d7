package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/events"
	"nailbook/internal/models"
	"nailbook/internal/payments"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckout_PolicyGate(t *testing.T) {
	gw := &mockGateway{}
	svc := newTestBookingService(t, zeroRepo{t: t}, gw, &recorder{})

	res, err := svc.Checkout(context.Background(), validDraft(), false)
	assert.ErrorIs(t, err, ErrPolicyNotAccepted)
	assert.Nil(t, res)
	gw.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything)
}

func TestCheckout_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(d *Draft)
		field string
	}{
		{"missing service", func(d *Draft) { d.ServiceID = " " }, "service_id"},
		{"bad date", func(d *Draft) { d.Date = "11/03/2025" }, "date"},
		{"bad time", func(d *Draft) { d.Time = "9h" }, "time"},
		{"missing name", func(d *Draft) { d.CustomerName = "" }, "customer_name"},
		{"missing email", func(d *Draft) { d.CustomerEmail = "" }, "customer_email"},
		{"bad email", func(d *Draft) { d.CustomerEmail = "not-an-email" }, "customer_email"},
		{"missing phone", func(d *Draft) { d.CustomerPhone = "" }, "customer_phone"},
		{"bad option", func(d *Draft) { d.PaymentOption = "pix" }, "payment_option"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestBookingService(t, zeroRepo{t: t}, &mockGateway{}, nil)
			d := validDraft()
			tt.edit(&d)

			_, err := svc.Checkout(context.Background(), d, true)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCheckout_Success(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)
	ctx := context.Background()

	gw := &mockGateway{}
	gw.On("CreatePaymentLink", mock.Anything, mock.MatchedBy(func(req domain.PaymentLinkRequest) bool {
		// запись уже должна существовать к моменту запроса ссылки
		b, err := db.GetBooking(ctx, req.BookingID)
		return err == nil && b.Status == models.StatusPending &&
			req.PriceID == "price_dep" &&
			req.SuccessURL == "https://studio.example/booking-success?appointment_id="+req.BookingID
	})).Return("https://pay.example/s/1", nil).Once()

	bus := &recorder{}
	svc := newTestBookingService(t, db, gw, bus)

	res, err := svc.Checkout(ctx, validDraft(), true)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/s/1", res.RedirectURL)
	assert.Equal(t, models.Amounts{Total: 180, Deposit: 36, Due: 36}, res.Amounts)
	gw.AssertExpectations(t)

	b, err := db.GetBooking(ctx, res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.PaymentStatusPending, b.PaymentStatus)
	assert.Equal(t, 180.0, b.TotalAmount)
	assert.Equal(t, 36.0, b.DepositAmount)
	assert.Equal(t, []string{events.EventBookingCreated}, bus.types())
}

func TestCheckout_LinkFailureLeavesPending(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)
	ctx := context.Background()

	gw := &mockGateway{}
	gw.On("CreatePaymentLink", mock.Anything, mock.Anything).
		Return("", &payments.LinkError{StatusCode: 400, Message: "No such price"}).Once()

	svc := newTestBookingService(t, db, gw, nil)
	_, err := svc.Checkout(ctx, validDraft(), true)

	assert.ErrorIs(t, err, ErrPaymentLink)
	var linkErr *payments.LinkError
	require.True(t, errors.As(err, &linkErr))
	assert.Equal(t, "No such price", linkErr.Message)

	bookings, err := db.FetchBookings(ctx, models.BookingFilter{IncludePending: true})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.StatusPending, bookings[0].Status)
}

func TestCheckout_PriceMappingMissing(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, false)
	ctx := context.Background()

	gw := &mockGateway{}
	svc := newTestBookingService(t, db, gw, nil)

	_, err := svc.Checkout(ctx, validDraft(), true)
	assert.ErrorIs(t, err, database.ErrPriceMappingNotFound)
	gw.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything)

	bookings, err := db.FetchBookings(ctx, models.BookingFilter{IncludePending: true, Status: models.StatusPending})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestCheckout_PriceMissingForOption(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, false)
	ctx := context.Background()
	require.NoError(t, db.UpsertPriceMapping(ctx, &models.PriceMapping{
		ServiceID: "gel", ProductID: "prod_1", PriceFullID: "price_full",
	}))

	gw := &mockGateway{}
	svc := newTestBookingService(t, db, gw, nil)

	_, err := svc.Checkout(ctx, validDraft(), true)
	assert.ErrorIs(t, err, database.ErrPriceMappingNotFound)
	gw.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything)

	bookings, err := db.FetchBookings(ctx, models.BookingFilter{IncludePending: true, Status: models.StatusPending})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestCheckout_OutsideBookableWindow(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)
	ctx := context.Background()

	gw := &mockGateway{}
	svc := newTestBookingService(t, db, gw, nil)

	// 11..15, 17, 18 марта: 19 уже за окном, 1 апреля внутри 30-дневной проекции
	for _, date := range []string{"2025-03-19", "2025-04-01"} {
		d := validDraft()
		d.Date = date
		_, err := svc.Checkout(ctx, d, true)
		assert.ErrorIs(t, err, ErrSlotUnavailable, date)
	}
	gw.AssertNotCalled(t, "CreatePaymentLink", mock.Anything, mock.Anything)

	bookings, err := db.FetchBookings(ctx, models.BookingFilter{IncludePending: true})
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestCheckout_UnknownService(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestBookingService(t, db, &mockGateway{}, nil)

	_, err := svc.Checkout(context.Background(), validDraft(), true)
	assert.ErrorIs(t, err, database.ErrServiceNotFound)
}

func TestCheckout_SlotUnavailable(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)
	ctx := context.Background()

	gw := &mockGateway{}
	gw.On("CreatePaymentLink", mock.Anything, mock.Anything).Return("https://pay.example/x", nil)
	svc := newTestBookingService(t, db, gw, nil)

	_, err := svc.Checkout(ctx, validDraft(), true)
	require.NoError(t, err)

	// тот же слот второй раз
	second := validDraft()
	second.CustomerEmail = "bia@example.com"
	_, err = svc.Checkout(ctx, second, true)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// не из дефолтного набора
	offGrid := validDraft()
	offGrid.Time = "11:15"
	_, err = svc.Checkout(ctx, offGrid, true)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// сегодня и воскресенье не бронируются
	today := validDraft()
	today.Date = "2025-03-10"
	_, err = svc.Checkout(ctx, today, true)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	sunday := validDraft()
	sunday.Date = "2025-03-16"
	_, err = svc.Checkout(ctx, sunday, true)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestCheckout_ClosedDay(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)
	ctx := context.Background()
	require.NoError(t, db.UpsertAvailability(ctx, &models.DayAvailability{
		Date: "2025-03-11", Available: false, Slots: []string{"09:00"},
	}))

	svc := newTestBookingService(t, db, &mockGateway{}, nil)
	_, err := svc.Checkout(ctx, validDraft(), true)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

type heldStore struct{}

func (heldStore) AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return false, nil
}
func (heldStore) ReleaseHold(ctx context.Context, key, owner string) error { return nil }
func (heldStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func TestCheckout_SlotHeldElsewhere(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)
	logger := zerolog.Nop()

	svc := NewBookingService(db, heldStore{}, &mockGateway{}, nil, nil, BookingOptions{}, &logger).WithClock(fixedClock)
	_, err := svc.Checkout(context.Background(), validDraft(), true)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	bookings, err := db.FetchBookings(context.Background(), models.BookingFilter{IncludePending: true})
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestCheckout_RateLimited(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, false)
	svc := newTestBookingService(t, db, &mockGateway{}, nil)
	ctx := context.Background()

	for i := 0; i < models.CheckoutAttemptsLimit; i++ {
		d := validDraft()
		d.Time = models.DefaultSlots[i%len(models.DefaultSlots)]
		d.Date = fmt.Sprintf("2025-03-%02d", 11+i/len(models.DefaultSlots))
		_, err := svc.Checkout(ctx, d, true)
		require.NotErrorIs(t, err, ErrTooManyAttempts)
	}

	_, err := svc.Checkout(ctx, validDraft(), true)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestCheckout_ConcurrentSameSlot(t *testing.T) {
	db := setupTestDB(t)
	seedService(t, db, true)

	gw := &mockGateway{}
	gw.On("CreatePaymentLink", mock.Anything, mock.Anything).Return("https://pay.example/x", nil)
	svc := newTestBookingService(t, db, gw, nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := validDraft()
			d.CustomerEmail = fmt.Sprintf("c%d@example.com", i)
			if _, err := svc.Checkout(context.Background(), d, true); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, ErrSlotUnavailable)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
}

func seedBooking(t *testing.T, db *database.DB, id, date, clock, status string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID: id, ServiceID: "gel", Date: date, Time: clock,
		CustomerName: "Ana", CustomerEmail: "ana@example.com", CustomerPhone: "1",
		PaymentOption: models.PaymentOptionDeposit, Status: status,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount: 180, DepositAmount: 36,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, db.InsertBooking(context.Background(), b))
	return b
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, "b-1", "2025-03-11", "09:00", models.StatusPending)

	bus := &recorder{}
	svc := newTestBookingService(t, db, &mockGateway{}, bus)

	_, err := svc.UpdateStatus(ctx, "b-1", models.StatusCompleted, "admin")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	b, err := svc.UpdateStatus(ctx, "b-1", models.StatusConfirmed, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)

	b, err = svc.UpdateStatus(ctx, "b-1", models.StatusCompleted, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, b.Status)

	_, err = svc.UpdateStatus(ctx, "b-1", models.StatusCancelled, "admin")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{events.EventBookingConfirmed, events.EventBookingCompleted}, bus.types())

	_, err = svc.UpdateStatus(ctx, "missing", models.StatusConfirmed, "admin")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, "b-1", "2025-03-11", "09:00", models.StatusPending)

	bus := &recorder{}
	svc := newTestBookingService(t, db, &mockGateway{}, bus)

	b, err := svc.ConfirmPayment(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, models.PaymentStatusSucceeded, b.PaymentStatus)

	b, err = svc.ConfirmPayment(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)
	assert.Equal(t, []string{events.EventBookingConfirmed}, bus.types())
}

func TestConfirmPayment_CancelledStaysCancelled(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, "b-1", "2025-03-11", "09:00", models.StatusCancelled)

	svc := newTestBookingService(t, db, &mockGateway{}, nil)
	b, err := svc.ConfirmPayment(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)
	assert.Equal(t, models.PaymentStatusSucceeded, b.PaymentStatus)
}

func TestListBookings_HidesPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, "p", "2025-03-11", "09:00", models.StatusPending)
	seedBooking(t, db, "c", "2025-03-11", "10:30", models.StatusConfirmed)

	svc := newTestBookingService(t, db, &mockGateway{}, nil)
	list, err := svc.ListBookings(ctx, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, "confirmed-deposit", "2025-03-10", "09:00", models.StatusConfirmed)
	seedBooking(t, db, "completed", "2025-03-08", "09:00", models.StatusCompleted)
	seedBooking(t, db, "cancelled", "2025-03-10", "10:30", models.StatusCancelled)
	seedBooking(t, db, "pending-full", "2025-03-12", "09:00", models.StatusPending)
	require.NoError(t, db.InsertBooking(ctx, &models.Booking{
		ID: "maint", ServiceID: models.MaintenanceServiceID, Date: "2025-03-10", Time: "13:00",
		CustomerName: "Ana", PaymentOption: models.PaymentOptionFull,
		Status: models.StatusConfirmed, IsMaintenance: true, CreatedAt: testNow, UpdatedAt: testNow,
	}))

	svc := newTestBookingService(t, db, &mockGateway{}, nil)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	// pending скрыт из админского списка, отменённые и обслуживание не считаются
	assert.Equal(t, 2, stats.TotalAppointments)
	assert.Equal(t, 360.0, stats.Revenue)
	assert.Equal(t, 216.0, stats.Received)
	assert.Equal(t, 144.0, stats.PendingRevenue)
	assert.Equal(t, "2025-03-10", stats.Today)
	require.Len(t, stats.TodayBookings, 1)
	assert.Equal(t, "confirmed-deposit", stats.TodayBookings[0].ID)
}
