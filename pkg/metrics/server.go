package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer builds the /metrics HTTP server for addr, serving the shared
// registry. Returns nil if metrics collection was never enabled via
// Init — callers should skip wiring it into their shutdown sequence in
// that case, the same way the teacher's bootstrap skips its API/metrics
// server construction when the corresponding feature is disabled.
func NewServer(addr string) *http.Server {
	if !IsEnabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown gracefully stops srv, tolerating a nil server so callers don't
// need to check before deferring this.
func Shutdown(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
