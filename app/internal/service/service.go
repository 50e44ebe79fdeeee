package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"storewatch/app/internal/cache"
	"storewatch/app/internal/config"
	"storewatch/app/internal/database"
	"storewatch/app/internal/logging"
	"storewatch/app/internal/metrics"
	"storewatch/app/internal/status"
)

// RecentWindow is how far back the current-state views look for polled samples
const RecentWindow = 5 * time.Minute

// Service answers the dashboard status queries on top of a Source
type Service struct {
	src         database.Source
	cache       *cache.Cache
	metrics     *metrics.Collector
	log         logging.Logger
	display     status.DisplayFunc
	minDowntime time.Duration
	thresholds  status.Thresholds
	attempts    int
	backoff     time.Duration
	now         func() time.Time
}

// Options configure a Service. Zero values fall back to defaults.
type Options struct {
	Cache       *cache.Cache
	Metrics     *metrics.Collector
	Logger      logging.Logger
	Display     status.DisplayFunc
	// MinDowntime nil means status.DefaultMinDowntime. Zero reports every outage.
	MinDowntime *time.Duration
	Thresholds  status.Thresholds
	Attempts    int
	Backoff     time.Duration
	Now         func() time.Time
}

// OptionsFromConfig builds Options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	display, err := status.DisplayIn(cfg.DisplayTZ)
	if err != nil {
		return Options{}, fmt.Errorf("display timezone: %w", err)
	}
	minDowntime := cfg.MinDowntime
	return Options{
		Display:     display,
		MinDowntime: &minDowntime,
		Thresholds: status.Thresholds{
			MinFPS:      cfg.MinFPS,
			MinBitrate:  cfg.MinBitrate,
			FrameWidth:  cfg.FrameWidth,
			FrameHeight: cfg.FrameHeight,
		},
		Attempts: cfg.FetchAttempts,
		Backoff:  cfg.FetchBackoff,
	}, nil
}

// New creates a Service reading from src
func New(src database.Source, opts Options) *Service {
	s := &Service{
		src:         src,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		display:     opts.Display,
		minDowntime: status.DefaultMinDowntime,
		thresholds:  opts.Thresholds,
		attempts:    opts.Attempts,
		backoff:     opts.Backoff,
		now:         opts.Now,
	}
	if s.cache == nil {
		s.cache = cache.New(30 * time.Second)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.display == nil {
		s.display = status.LondonDisplay
	}
	if opts.MinDowntime != nil {
		s.minDowntime = *opts.MinDowntime
	}
	if s.thresholds == (status.Thresholds{}) {
		s.thresholds = status.DefaultThresholds
	}
	if s.attempts < 1 {
		s.attempts = 1
	}
	if s.backoff <= 0 {
		s.backoff = 100 * time.Millisecond
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Close stops the response cache
func (s *Service) Close() {
	s.cache.Stop()
}

// Ping checks the underlying source
func (s *Service) Ping(ctx context.Context) error {
	return s.src.Ping(ctx)
}

// sharedLoadTimeout bounds a cached load that may outlive the request that started it
const sharedLoadTimeout = 30 * time.Second

// remember loads key through the response cache. Concurrent callers share one load,
// so it runs detached from the cancellation of whichever request started it.
func remember[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	v, err := s.cache.Remember(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return load(lctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// fetch runs one data-access call under the retry policy. Cancelled or expired
// contexts are not retried.
func fetch[T any](ctx context.Context, s *Service, source string, fn func(context.Context) (T, error)) (T, error) {
	policy := retrypolicy.NewBuilder[T]().
		WithMaxRetries(s.attempts-1).
		WithBackoff(s.backoff, 10*s.backoff).
		HandleIf(func(_ T, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		ReturnLastFailure().
		Build()

	v, err := failsafe.With(policy).WithContext(ctx).Get(func() (T, error) {
		return fn(ctx)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.FetchFailure(source)
		}
		s.log.WithError(err).WithField("source", source).Warn("data fetch failed")
		return v, fmt.Errorf("%s: %w", source, err)
	}
	return v, nil
}
