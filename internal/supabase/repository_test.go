package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"nailbook/internal/database"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/postgrest-go"
)

func setupRepo(t *testing.T, handler http.HandlerFunc) *Repository {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	client := postgrest.NewClient(server.URL+"/rest/v1", "public", map[string]string{"apikey": "test"})
	return NewRepository(client, &logger)
}

func TestFetchAvailability(t *testing.T) {
	repo := setupRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/availability", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"date":"2025-03-10","available":true,"slots":["13:00","09:00"]},
			{"date":"2025-03-11","available":false,"slots":null}]`))
	})

	days, err := repo.FetchAvailability(context.Background())
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, []string{"09:00", "13:00"}, days["2025-03-10"].Slots)
	assert.False(t, days["2025-03-11"].Available)
}

func TestInsertBooking_Conflict(t *testing.T) {
	var body map[string]interface{}
	repo := setupRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"appointments_active_slot\""}`))
	})

	err := repo.InsertBooking(context.Background(), &models.Booking{
		ID: "b-1", ServiceID: "svc", Date: "2025-03-10", Time: "09:00",
		CustomerName: "Ana", CustomerEmail: "ana@example.com", Status: models.StatusPending, TotalAmount: 180,
	})
	assert.ErrorIs(t, err, database.ErrSlotTaken)
	assert.Equal(t, "Ana", body["user_name"])
	assert.Equal(t, 180.0, body["value"])
}

func TestGetPriceMapping_NotFound(t *testing.T) {
	repo := setupRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/stripe_products", r.URL.Path)
		assert.Equal(t, "eq.svc-1", r.URL.Query().Get("service_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := repo.GetPriceMapping(context.Background(), "svc-1")
	assert.ErrorIs(t, err, database.ErrPriceMappingNotFound)
}

func TestUpdateBookingStatus_NotFound(t *testing.T) {
	repo := setupRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	err := repo.UpdateBookingStatus(context.Background(), "ghost", models.StatusConfirmed)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestGetBooking_MapsColumns(t *testing.T) {
	repo := setupRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"b-1","service_id":"svc","date":"2025-03-10","time":"09:00",
			"user_name":"Ana","user_email":"ana@example.com","user_phone":"1199",
			"status":"confirmed","payment_status":"succeeded","value":150,"deposit_amount":30,
			"created_at":"2025-03-01T10:00:00Z","updated_at":"2025-03-01T10:00:00Z"}]`))
	})

	b, err := repo.GetBooking(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", b.CustomerName)
	assert.Equal(t, 150.0, b.TotalAmount) // legacy value column
	assert.Equal(t, models.PaymentOptionFull, b.PaymentOption)
}
