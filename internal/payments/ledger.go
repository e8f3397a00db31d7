package payments

import (
	"context"
	"fmt"

	"nailbook/internal/domain"
	"nailbook/internal/models"
)

// RepositoryStatusChecker answers payment status straight from the booking ledger.
type RepositoryStatusChecker struct {
	repo domain.Repository
}

func NewRepositoryStatusChecker(repo domain.Repository) *RepositoryStatusChecker {
	return &RepositoryStatusChecker{repo: repo}
}

func (c *RepositoryStatusChecker) CheckPaymentStatus(ctx context.Context, bookingID string) (string, error) {
	b, err := c.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	if b.PaymentStatus == "" {
		return models.PaymentStatusPending, nil
	}
	return b.PaymentStatus, nil
}
