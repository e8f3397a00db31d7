package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/models"
	"nailbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 2025-03-10 is a Monday
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockSyncWorker struct {
	mu    sync.Mutex
	tasks []string
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, taskType+":"+booking.ID)
	return nil
}

// recorder collects published event types.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishJSON(eventType string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// zeroRepo fails the test on any call.
type zeroRepo struct {
	domain.Repository
	t *testing.T
}

func (z zeroRepo) GetService(ctx context.Context, id string) (*models.Service, error) {
	z.t.Fatalf("unexpected GetService(%s)", id)
	return nil, nil
}

func (z zeroRepo) InsertBooking(ctx context.Context, b *models.Booking) error {
	z.t.Fatalf("unexpected InsertBooking")
	return nil
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedService(t *testing.T, db *database.DB, withMapping bool) *models.Service {
	t.Helper()
	ctx := context.Background()
	svc := &models.Service{ID: "gel", Name: "Alongamento em gel", Price: 180}
	require.NoError(t, db.InsertService(ctx, svc))
	if withMapping {
		require.NoError(t, db.UpsertPriceMapping(ctx, &models.PriceMapping{
			ServiceID: "gel", ProductID: "prod_1", PriceFullID: "price_full", PriceDepositID: "price_dep",
		}))
	}
	return svc
}

func newTestBookingService(t *testing.T, repo domain.Repository, gw domain.PaymentGateway, bus domain.EventPublisher) *BookingService {
	t.Helper()
	logger := zerolog.Nop()
	return NewBookingService(repo, repository.NewMemoryHoldStore(), gw, bus, &mockSyncWorker{}, BookingOptions{
		PublicBaseURL: "https://studio.example/",
		HoldTTL:       time.Minute,
	}, &logger).WithClock(fixedClock)
}

func validDraft() Draft {
	return Draft{
		ServiceID:     "gel",
		Date:          "2025-03-11",
		Time:          "09:00",
		CustomerName:  "Ana Souza",
		CustomerEmail: "ana@example.com",
		CustomerPhone: "+55 11 99999-0000",
		PaymentOption: models.PaymentOptionDeposit,
	}
}
