package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storewatch/app/internal/cache"
	"storewatch/app/internal/config"
	"storewatch/app/internal/database"
	"storewatch/app/internal/handlers"
	"storewatch/app/internal/ingest"
	"storewatch/app/internal/logging"
	"storewatch/app/internal/metrics"
	"storewatch/app/internal/ratelimit"
	"storewatch/app/internal/service"
)

const serviceName = "storewatch"

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("Failed to load config")
	}

	log := logging.NewWithService(serviceName, cfg.LogLevel)

	// Initialize database
	src, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer src.Close()

	m := metrics.New(serviceName)

	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		log.WithError(err).Error("Invalid status engine settings")
		return 1
	}
	responses := cache.New(cfg.CacheTTL)
	opts.Cache = responses
	opts.Metrics = m
	opts.Logger = log
	svc := service.New(src, opts)
	defer svc.Close()

	proxies, err := ratelimit.ParseProxies(cfg.TrustedProxies)
	if err != nil {
		log.WithError(err).Error("Invalid TRUSTED_PROXIES")
		return 1
	}
	limiter := ratelimit.New(ratelimit.Config{
		TokensPerMinute: cfg.APIRatePerMin,
		ErrorMessage:    "Too many requests. Please slow down.",
		TrustedProxies:  proxies,
	})
	defer limiter.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ingest and retention only run against a writable local store
	if rec, ok := src.(database.Recorder); ok {
		if cfg.EnableIngest {
			h := ingest.NewHandler(rec, cfg.MQTT.TopicPrefix, m, log).Invalidate(responses)
			sub, err := ingest.Connect(cfg.MQTT, h, log)
			if err != nil {
				log.WithError(err).Error("Failed to start MQTT ingest")
				return 1
			}
			defer sub.Close()
			log.WithField("broker", cfg.MQTT.BrokerURL()).Info("Ingest started")
		}
		go ingest.NewRetention(rec, cfg.RetentionDays, cfg.PruneInterval, m, log).Run(ctx)
	} else if cfg.EnableIngest {
		log.WithField("driver", cfg.DBDriver).Warn("Ingest needs the sqlite driver, not starting")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.SetupRoutes(svc, limiter, m, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := serve(ctx, srv, log); err != nil {
		log.WithError(err).Error("Server failed")
		return 1
	}
	return 0
}

// serve runs srv until ctx is done, then shuts it down. A listen failure is
// returned to the caller instead of exiting the process.
func serve(ctx context.Context, srv *http.Server, log logging.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
