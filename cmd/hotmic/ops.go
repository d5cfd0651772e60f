package main

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/hotmic/internal/health"
	"github.com/MrWong99/hotmic/internal/history"
	"github.com/MrWong99/hotmic/internal/observe"
)

// opsRoutes are the paths newOpsServer serves.
var opsRoutes = []string{"/metrics", "/history", "/healthz", "/readyz", "/status"}

// newOpsServer builds the operations endpoint: Prometheus metrics, health
// probes, the coordinator status and recent transcript history. state reports
// the coordinator state, attached to the spans of /status requests.
func newOpsServer(addr string, tel *observe.Telemetry, store history.Store, h *health.Handler, state func() string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", tel.Handler)
	mux.Handle("GET /history", history.Handler(store))
	h.Register(mux)

	mw := observe.Middleware(tel.Metrics,
		observe.WithRoutes(opsRoutes...),
		observe.WithRequestAttributes(func(r *http.Request) []attribute.KeyValue {
			if r.URL.Path != "/status" {
				return nil
			}
			return []attribute.KeyValue{attribute.String("hotmic.coordinator.state", state())}
		}),
	)
	return &http.Server{
		Addr:              addr,
		Handler:           mw(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
