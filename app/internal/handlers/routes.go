package handlers

import (
	"net/http"

	"storewatch/app/internal/logging"
	"storewatch/app/internal/metrics"
	"storewatch/app/internal/ratelimit"
	"storewatch/app/internal/service"
)

// SetupRoutes configures all HTTP routes and middlewares
func SetupRoutes(svc *service.Service, limiter *ratelimit.Limiter, m *metrics.Collector, log logging.Logger) http.Handler {
	// Status API routes (rate limited, instrumented, compressed)
	api := http.NewServeMux()
	routes := []struct {
		method, path string
		h            http.HandlerFunc
	}{
		{"GET", "/api/status/filters", HandleFilters(svc)},
		{"GET", "/api/status/message", HandleStatusMessage(svc, log)},
		{"GET", "/api/status/downtime", HandleDowntime(svc, log)},
		{"GET", "/api/status/uptime", HandleUptime(svc, log)},
		{"GET", "/api/status/map", HandleStoreMap(svc, log)},
		{"GET", "/api/status/cameras", HandleCameraReport(svc, log)},
		{"GET", "/api/status/stores", HandleOfflineStores(svc, log)},
		{"GET", "/api/status/live", HandleLiveView(svc, log)},
		{"GET", "/api/status/summary", HandleSummary(svc, log)},
		{"GET", "/api/status/last-update", HandleLastUpdate(svc, log)},
		{"GET", "/api/status/store-options", HandleStoreOptions(svc, log)},
		{"GET", "/api/status/camera-liveness", HandleCameraLiveness(svc, log)},

		{"GET", "/api/status/application", HandleAppStatus(svc, log)},
		{"POST", "/api/status/application/search", HandleAppStatusByStore(svc, log)},
		{"PUT", "/api/status/application", HandleUpdateAppStatus(svc, log)},
		{"PUT", "/api/status/application/batch", HandleUpdateAppStatusBatch(svc, log)},
		{"PUT", "/api/status/application/resolve-all", HandleResolveStoreApps(svc, log)},
		{"PUT", "/api/status/application/tech-support", HandleTechSupport(svc, log, false)},
		{"PUT", "/api/status/application/tech-support/resolve", HandleTechSupport(svc, log, true)},
	}
	for _, rt := range routes {
		api.Handle(rt.method+" "+rt.path, m.Middleware(rt.path, rt.h))
	}

	// Main router
	mux := http.NewServeMux()
	mux.Handle("/api/status/", limiter.Middleware(GzipMiddleware(api)))
	mux.HandleFunc("GET /api/health", HandleHealth(svc))
	mux.Handle("GET /metrics", m.Handler())

	return RequestLogger(log, limiter.ClientIP)(SecureHeaders(mux))
}
