package order

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
)

// Expirer fails a stale order
type Expirer interface {
	Expire(ctx context.Context, ref string) (bool, error)
}

// Sweeper periodically fails AwaitingPayment orders older than the payment window.
// Candidates come from the read model; the aggregate has the final say.
type Sweeper struct {
	orders   store.OrderReadStore
	expirer  Expirer
	expiry   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

func NewSweeper(orders store.OrderReadStore, expirer Expirer, expiry, interval time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		expirer:  expirer,
		expiry:   expiry,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logging.Component("sweeper"),
	}
}

// Run sweeps until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires every overdue order and returns how many were expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.expiry)
	candidates, err := s.orders.ListByStatusBefore(ctx, string(StatusAwaitingPayment), cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, o := range candidates {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := s.expirer.Expire(ctx, o.Ref)
		if err != nil {
			s.logger.Warn().Err(err).Str("order_ref", o.Ref).Msg("could not expire order")
			continue
		}
		if ok {
			expired++
			s.logger.Info().Str("order_ref", o.Ref).Time("created_at", o.CreatedAt).Msg("order expired")
		}
	}
	return expired, nil
}
