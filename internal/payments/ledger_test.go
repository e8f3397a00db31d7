package payments

import (
	"context"
	"os"
	"testing"
	"time"

	"nailbook/internal/database"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryStatusChecker(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, db.InsertBooking(ctx, &models.Booking{
		ID: "b-1", ServiceID: "s", Date: "2025-03-11", Time: "09:00",
		CustomerName: "Ana", CustomerEmail: "ana@example.com", CustomerPhone: "1",
		PaymentOption: models.PaymentOptionFull, Status: models.StatusPending,
		PaymentStatus: models.PaymentStatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	checker := NewRepositoryStatusChecker(db)
	status, err := checker.CheckPaymentStatus(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, status)

	require.NoError(t, db.UpdatePaymentStatus(ctx, "b-1", models.PaymentStatusSucceeded))
	status, err = checker.CheckPaymentStatus(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, status)

	_, err = checker.CheckPaymentStatus(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
