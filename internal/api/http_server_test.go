package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"nailbook/internal/config"
	"nailbook/internal/confirmation"
	"nailbook/internal/database"
	"nailbook/internal/domain"
	"nailbook/internal/export"
	"nailbook/internal/models"
	"nailbook/internal/payments"
	"nailbook/internal/repository"
	"nailbook/internal/service"
	"nailbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testWebhookSecret = "whsec_test"
	testPassword      = "s3nha-forte"
	testAPIKey        = "reports-key"
)

// 2025-03-10 is a Monday
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fakeGateway struct {
	mu       sync.Mutex
	requests []domain.PaymentLinkRequest
	err      error
}

func (g *fakeGateway) CreatePaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return "https://pay.example/session/" + req.BookingID, nil
}

type testEnv struct {
	db      *database.DB
	gateway *fakeGateway
	server  *HTTPServer
	ts      *httptest.Server
	ready   error
}

func newTestEnv(t *testing.T, mutate func(*config.APIConfig)) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.InsertService(ctx, &models.Service{ID: "gel", Name: "Alongamento em gel", Price: 180}))
	require.NoError(t, db.UpsertPriceMapping(ctx, &models.PriceMapping{
		ServiceID: "gel", ProductID: "prod_1", PriceFullID: "price_full", PriceDepositID: "price_dep",
	}))

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: testAPIKey, Name: "reports", Permissions: []string{permReadBookings, permExport}},
			},
		},
		Session: config.APISessionConfig{
			Secret:            "session-secret",
			TTL:               time.Hour,
			AdminPasswordHash: string(hash),
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1000, Burst: 1000},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{db: db, gateway: &fakeGateway{}}
	bookings := service.NewBookingService(db, repository.NewMemoryHoldStore(), env.gateway, nil, nil,
		service.BookingOptions{PublicBaseURL: "https://studio.example", HoldTTL: time.Minute}, &logger).WithClock(fixedClock)
	schedule := service.NewScheduleService(db, nil, nil, service.ScheduleOptions{}, &logger).WithClock(fixedClock)
	checker := payments.NewRepositoryStatusChecker(db)

	env.server = NewHTTPServer(cfg, Deps{
		Bookings:      bookings,
		Schedule:      schedule,
		Catalog:       service.NewCatalogService(db, &logger),
		Watcher:       confirmation.NewWatcher(checker, 10*time.Millisecond, 50*time.Millisecond, &logger),
		Status:        checker,
		Exporter:      export.NewExporter(db, t.TempDir()),
		Window:        slots.DefaultWindow(),
		WebhookSecret: testWebhookSecret,
		Ready:         func(context.Context) error { return env.ready },
	}, &logger)

	env.ts = httptest.NewServer(env.server.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, resp, &body)
	return body.Error
}

func checkoutBody() map[string]any {
	return map[string]any{
		"service_id":      "gel",
		"date":            "2025-03-11",
		"time":            "09:00",
		"customer_name":   "Ana Souza",
		"customer_email":  "ana@example.com",
		"customer_phone":  "+55 11 99999-0000",
		"payment_option":  models.PaymentOptionDeposit,
		"policy_accepted": true,
	}
}

func (e *testEnv) checkout(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body checkoutResponse
	decode(t, resp, &body)
	return body.BookingID
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": testPassword}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"token"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func signedWebhook(t *testing.T, payload []byte) map[string]string {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return map[string]string{payments.SignatureHeader: fmt.Sprintf("t=%s,v1=%s", ts, payments.Sign(testWebhookSecret, ts, payload))}
}

func completedEvent(bookingID string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":"paid","metadata":{"appointment_id":%q}}}}`, bookingID))
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.ready = errors.New("redis down")
	resp = env.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListServices(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/services", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Services []models.Service `json:"services"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Services, 1)
	assert.Equal(t, int64(180), body.Services[0].Price)
}

func TestAvailabilityWindowAndSlots(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/availability/window", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var window struct {
		Dates []string `json:"dates"`
	}
	decode(t, resp, &window)
	assert.Equal(t, []string{
		"2025-03-11", "2025-03-12", "2025-03-13", "2025-03-14", "2025-03-15", "2025-03-17", "2025-03-18",
	}, window.Dates)

	resp = env.do(t, http.MethodGet, "/api/v1/availability/2025-03-11/slots", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var day struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}
	decode(t, resp, &day)
	assert.Equal(t, models.DefaultSlots, day.Slots)

	resp = env.do(t, http.MethodGet, "/api/v1/availability/11-03-2025/slots", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgInvalidDate, errorMessage(t, resp))
}

func TestCheckoutSuccess(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body checkoutResponse
	decode(t, resp, &body)
	assert.Equal(t, 180.0, body.Total)
	assert.Equal(t, 36.0, body.Deposit)
	assert.Equal(t, 36.0, body.Due)
	assert.Equal(t, "https://pay.example/session/"+body.BookingID, body.RedirectURL)

	require.Len(t, env.gateway.requests, 1)
	assert.Equal(t, "price_dep", env.gateway.requests[0].PriceID)

	booking, err := env.db.GetBooking(context.Background(), body.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, booking.Status)

	// занятый слот пропадает из выдачи
	resp = env.do(t, http.MethodGet, "/api/v1/availability/2025-03-11/slots", nil, nil)
	var day struct {
		Slots []string `json:"slots"`
	}
	decode(t, resp, &day)
	assert.NotContains(t, day.Slots, "09:00")

	resp = env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, msgSlotUnavailable, errorMessage(t, resp))
}

func TestCheckoutErrors(t *testing.T) {
	t.Run("PolicyNotAccepted", func(t *testing.T) {
		env := newTestEnv(t, nil)
		body := checkoutBody()
		body["policy_accepted"] = false
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, msgPolicyRequired, errorMessage(t, resp))
		assert.Empty(t, env.gateway.requests)
	})

	t.Run("InvalidEmail", func(t *testing.T) {
		env := newTestEnv(t, nil)
		body := checkoutBody()
		body["customer_email"] = "not-an-email"
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", body, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Campo inválido: e-mail.", errorMessage(t, resp))
	})

	t.Run("MalformedBody", func(t *testing.T) {
		env := newTestEnv(t, nil)
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", []byte("{"), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("BackendMessageVerbatim", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gateway.err = &payments.LinkError{StatusCode: http.StatusBadRequest, Message: "Preço inativo"}
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "Preço inativo", errorMessage(t, resp))
	})

	t.Run("GenericLinkFailure", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gateway.err = errors.New("connection refused")
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, msgPaymentLink, errorMessage(t, resp))

		// запись остаётся pending
		list, err := env.db.FetchBookings(context.Background(), models.BookingFilter{IncludePending: true})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.StatusPending, list[0].Status)
	})

	t.Run("StoreOutage", func(t *testing.T) {
		env := newTestEnv(t, nil)
		require.NoError(t, env.db.Close())
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(), nil)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, msgInternal, errorMessage(t, resp))
		assert.Empty(t, env.gateway.requests)
	})

	t.Run("PriceMappingMissing", func(t *testing.T) {
		env := newTestEnv(t, nil)
		require.NoError(t, env.db.InsertService(context.Background(), &models.Service{ID: "spa", Name: "Spa dos pés", Price: 90}))
		body := checkoutBody()
		body["service_id"] = "spa"
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", body, nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, msgPriceNotFound, errorMessage(t, resp))
	})

	t.Run("UnknownService", func(t *testing.T) {
		env := newTestEnv(t, nil)
		body := checkoutBody()
		body["service_id"] = "nope"
		resp := env.do(t, http.MethodPost, "/api/v1/checkout", body, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, msgServiceNotFound, errorMessage(t, resp))
	})
}

func TestWebhookConfirmsBooking(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.checkout(t)
	payload := completedEvent(id)

	resp := env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, map[string]string{
		payments.SignatureHeader: "t=1,v1=deadbeef",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, signedWebhook(t, payload))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	booking, err := env.db.GetBooking(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, models.PaymentStatusSucceeded, booking.PaymentStatus)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings/"+id+"/payment-status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status map[string]string
	decode(t, resp, &status)
	assert.Equal(t, models.PaymentStatusSucceeded, status["payment_status"])
}

func TestWebhookUnknownBookingAcknowledged(t *testing.T) {
	env := newTestEnv(t, nil)
	payload := completedEvent("missing")
	resp := env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, signedWebhook(t, payload))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfirmation(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.checkout(t)

	resp := env.do(t, http.MethodGet, "/api/v1/bookings/"+id+"/confirmation", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending struct {
		State string `json:"state"`
	}
	decode(t, resp, &pending)
	assert.Equal(t, string(confirmation.StatePending), pending.State)

	payload := completedEvent(id)
	env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, signedWebhook(t, payload))

	resp = env.do(t, http.MethodGet, "/api/v1/bookings/"+id+"/confirmation", nil, nil)
	var confirmed struct {
		State   string         `json:"state"`
		Booking bookingSummary `json:"booking"`
	}
	decode(t, resp, &confirmed)
	assert.Equal(t, string(confirmation.StateConfirmed), confirmed.State)
	assert.Equal(t, "09:00", confirmed.Booking.Time)
	assert.Equal(t, 36.0, confirmed.Booking.AmountDue)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/v1/admin/bookings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"password": "errada"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, msgWrongPassword, errorMessage(t, resp))

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings", nil, bearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := env.login(t)
	resp = env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, bearer(token))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// ключ без read:stats
	resp = env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, map[string]string{"x-api-key": testAPIKey})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings", nil, map[string]string{"x-api-key": testAPIKey})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings", nil, map[string]string{"x-api-key": "other"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token := env.login(t)
	env.server.auth.now = time.Now

	resp := env.do(t, http.MethodGet, "/api/v1/admin/bookings", nil, bearer(token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.checkout(t)
	token := env.login(t)

	var list struct {
		Bookings []models.Booking `json:"bookings"`
	}
	resp := env.do(t, http.MethodGet, "/api/v1/admin/bookings", nil, bearer(token))
	decode(t, resp, &list)
	assert.Empty(t, list.Bookings)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings?include_pending=true", nil, bearer(token))
	decode(t, resp, &list)
	require.Len(t, list.Bookings, 1)

	path := "/api/v1/admin/bookings/" + id + "/status"
	resp = env.do(t, http.MethodPatch, path, map[string]string{"status": models.StatusCompleted}, bearer(token))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, path, map[string]string{"status": models.StatusConfirmed}, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodPatch, path, map[string]string{"status": models.StatusCompleted}, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, path, map[string]string{"status": "paid"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/api/v1/admin/bookings/missing/status", map[string]string{"status": models.StatusCancelled}, bearer(token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var stats service.Stats
	resp = env.do(t, http.MethodGet, "/api/v1/admin/stats", nil, bearer(token))
	decode(t, resp, &stats)
	assert.Equal(t, 180.0, stats.Revenue)
	assert.Equal(t, 180.0, stats.Received)
	assert.Equal(t, 1, stats.TotalAppointments)
}

func TestAdminScheduleEditing(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/v1/admin/availability/2025-03-12/toggle", nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var day models.DayAvailability
	decode(t, resp, &day)
	assert.False(t, day.Available)

	resp = env.do(t, http.MethodPut, "/api/v1/admin/availability/2025-03-11/slots",
		map[string][]string{"slots": {"10:00", "08:00"}}, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &day)
	assert.Equal(t, []string{"08:00", "10:00"}, day.Slots)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/availability/2025-03-11/slots/10:00/toggle", nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &day)
	assert.Equal(t, []string{"08:00"}, day.Slots)

	resp = env.do(t, http.MethodPut, "/api/v1/admin/availability/2025-03-11/slots",
		map[string][]string{"slots": {"8h"}}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/maintenance", map[string]string{
		"date": "2025-03-13", "time": "20:00", "customer_name": "Bia",
	}, bearer(token))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var booking models.Booking
	decode(t, resp, &booking)
	assert.True(t, booking.IsMaintenance)
	assert.Equal(t, models.StatusConfirmed, booking.Status)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/maintenance", map[string]string{
		"date": "2025-03-13", "time": "20:00", "customer_name": "Cris",
	}, bearer(token))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/availability", nil, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		Availability map[string]models.DayAvailability `json:"availability"`
	}
	decode(t, resp, &view)
	assert.Contains(t, view.Availability["2025-03-13"].Slots, "20:00")
}

func TestAdminServices(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/v1/admin/services",
		map[string]any{"id": "spa", "name": "Spa dos pés", "price": 90}, bearer(token))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/admin/services/spa",
		map[string]any{"name": "Spa dos pés", "price": 95}, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/admin/services/spa/price-mapping", map[string]string{
		"stripe_price_full_id": "price_spa_full", "stripe_price_deposit_id": "price_spa_dep",
	}, bearer(token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mapping, err := env.db.GetPriceMapping(context.Background(), "spa")
	require.NoError(t, err)
	assert.Equal(t, "price_spa_dep", mapping.PriceDepositID)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/services",
		map[string]any{"id": "maintenance", "name": "x", "price": 1}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/admin/services/spa", nil, bearer(token))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/v1/admin/services/spa", nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// ключ отчётов не может менять каталог
	resp = env.do(t, http.MethodDelete, "/api/v1/admin/services/gel", nil, map[string]string{"x-api-key": testAPIKey})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminExport(t *testing.T) {
	env := newTestEnv(t, nil)
	env.checkout(t)

	resp := env.do(t, http.MethodGet, "/api/v1/admin/export.xlsx?from=2025-03-01", nil, map[string]string{"x-api-key": testAPIKey})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	resp = env.do(t, http.MethodGet, "/api/v1/admin/export.xlsx?from=01-03-2025", nil, map[string]string{"x-api-key": testAPIKey})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) {
		cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodGet, "/api/v1/services", nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := env.do(t, http.MethodGet, "/api/v1/services", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// health не ограничивается
	resp = env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.APIConfig) {
		cfg.AllowedOrigins = []string{"https://studio.example"}
	})

	resp := env.do(t, http.MethodOptions, "/api/v1/checkout", nil, map[string]string{
		"Origin":                        "https://studio.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://studio.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = env.do(t, http.MethodGet, "/api/v1/services", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
