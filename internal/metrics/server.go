package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

const readHeaderTimeout = 3 * time.Second

// CreateMetricsServer serves m's registry on /metrics at
// cfg.Metrics.Bind:Port until the listener fails or the process exits.
// It is a no-op returning nil when metrics are disabled, and returns
// (rather than panics on) a bind failure so the caller's errgroup can
// report it alongside every other server task (§5 Concurrency model).
func CreateMetricsServer(cfg *config.Config, m *Metrics) error {
	if !cfg.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Metrics.Bind, cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return server.ListenAndServe()
}
