package handler

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"privproxy/internal/config"
	"privproxy/internal/metrics"
)

// Proxy endpoint paths. LegacyProxyPath serves older callers.
const (
	ProxyPath       = "/api/proxy"
	LegacyProxyPath = "/api/api_proxy"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.Any(ProxyPath, proxy.Handle)
	e.Any(LegacyProxyPath, proxy.Handle)
}

// RegisterMetrics exposes the Prometheus registry at the configured path
// when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorLog:            slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: 10,
	})
	e.GET(cfg.Metrics.Path, echo.WrapHandler(h))
	logger.Info("metrics endpoint enabled", "path", cfg.Metrics.Path)
}
