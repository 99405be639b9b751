package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/fieldlog/internal/adapter/api/handler"
	"github.com/V4T54L/fieldlog/internal/adapter/api/middleware"
)

// NewAdminRouter creates the admin HTTP router of a reader or producer
// process: health, status and Prometheus metrics from reg.
func NewAdminRouter(reg *prometheus.Registry, status handler.StatusFunc, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	statusHandler := handler.NewStatusHandler(status, logger)

	mux.HandleFunc("GET /health", statusHandler.HealthCheck)
	mux.HandleFunc("GET /status", statusHandler.Status)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return middleware.Logging(logger)(mux)
}
