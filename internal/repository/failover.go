package repository

import (
	"context"
	"sync/atomic"
	"time"

	"nailbook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverHoldStore uses primary until it errors, then serves from fallback
// and retries primary once per recoveryInterval.
type FailoverHoldStore struct {
	primary   domain.HoldStore
	fallback  domain.HoldStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverHoldStore(primary, fallback domain.HoldStore, logger *zerolog.Logger) *FailoverHoldStore {
	return &FailoverHoldStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// tryPrimary reports whether the call should go to primary.
func (r *FailoverHoldStore) tryPrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverHoldStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary hold store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverHoldStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary hold store recovered")
	}
}

func (r *FailoverHoldStore) AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if r.tryPrimary() {
		ok, err := r.primary.AcquireHold(ctx, key, owner, ttl)
		if err == nil {
			r.markUp()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.AcquireHold(ctx, key, owner, ttl)
}

// ReleaseHold releases on both stores since the hold may live in either.
func (r *FailoverHoldStore) ReleaseHold(ctx context.Context, key, owner string) error {
	if r.tryPrimary() {
		if err := r.primary.ReleaseHold(ctx, key, owner); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.ReleaseHold(ctx, key, owner)
}

func (r *FailoverHoldStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.tryPrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
