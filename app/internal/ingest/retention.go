package ingest

import (
	"context"
	"time"

	"storewatch/app/internal/database"
	"storewatch/app/internal/logging"
	"storewatch/app/internal/metrics"
)

// Retention prunes old samples, telemetry and jitter events on a schedule
type Retention struct {
	rec      database.Recorder
	keep     time.Duration
	interval time.Duration
	metrics  *metrics.Collector
	log      logging.Logger
	now      func() time.Time
}

// NewRetention keeps rows for the given number of days, pruning every interval
func NewRetention(rec database.Recorder, days int, interval time.Duration, m *metrics.Collector, log logging.Logger) *Retention {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Retention{
		rec:      rec,
		keep:     time.Duration(days) * 24 * time.Hour,
		interval: interval,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// PruneOnce deletes rows older than the retention period
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.keep)
	n, err := r.rec.Prune(ctx, cutoff)
	if r.metrics != nil {
		r.metrics.Pruned(n)
	}
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.log.WithField("rows", n).WithField("cutoff", cutoff.Format(time.RFC3339)).Info("pruned old rows")
	}
	return n, nil
}

// Run prunes once immediately and then every interval until ctx is done
func (r *Retention) Run(ctx context.Context) {
	if r.keep <= 0 {
		r.log.Info("retention disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.PruneOnce(ctx); err != nil {
			r.log.WithError(err).Warn("retention prune failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
