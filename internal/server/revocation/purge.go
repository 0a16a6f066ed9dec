package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
)

// Purger periodically removes revocation entries whose token has expired.
type Purger struct {
	store    auth.RevocationStore
	interval time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   logging.Logger
}

func NewPurger(store auth.RevocationStore, interval time.Duration, m *metrics.Metrics, l logging.Logger) *Purger {
	return &Purger{
		store:    store,
		interval: interval,
		now:      time.Now,
		metrics:  m,
		logger:   l.With("module", "revocation_purger"),
	}
}

// PurgeOnce runs a single purge pass.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	n, err := p.store.PurgeExpired(ctx, p.now())
	if err != nil {
		return n, err
	}
	p.metrics.ObservePurged(n)
	if n > 0 {
		p.logger.Info(ctx, "purged expired revocations", "count", n)
	}
	return n, nil
}

// Run purges every interval until ctx is done. A non-positive interval
// disables the worker and Run returns immediately.
func (p *Purger) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PurgeOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn(ctx, "revocation purge failed", "error", err)
			}
		}
	}
}
