package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// otherRoute labels requests for paths the server does not serve.
const otherRoute = "other"

// quietPaths are polled by scrapers and probes. Their completion is logged at
// debug level.
var quietPaths = map[string]bool{
	"/metrics": true,
	"/healthz": true,
	"/readyz":  true,
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithRoutes limits the path label to the given paths. Any other path is
// recorded as "other", keeping scanner traffic from growing the metric's
// label set. Without it the raw path is used.
func WithRoutes(paths ...string) MiddlewareOption {
	return func(mw *middleware) {
		mw.routes = make(map[string]bool, len(paths))
		for _, p := range paths {
			mw.routes[p] = true
		}
	}
}

// WithRequestAttributes adds the attributes fn returns to each request's
// server span. fn runs after the handler.
func WithRequestAttributes(fn func(*http.Request) []attribute.KeyValue) MiddlewareOption {
	return func(mw *middleware) { mw.attrs = fn }
}

type middleware struct {
	metrics *Metrics
	routes  map[string]bool
	attrs   func(*http.Request) []attribute.KeyValue
	prop    propagation.TextMapPropagator
}

func (mw *middleware) route(path string) string {
	if mw.routes == nil || mw.routes[path] {
		return path
	}
	return otherRoute
}

// statusRecorder captures the status code written by the downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the ops server's handlers. Each request gets a server span
// continuing any incoming W3C trace context, an X-Correlation-ID response
// header carrying the trace ID, a sample in [Metrics.HTTPRequestDuration]
// and a completion log line.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{metrics: m, prop: propagation.TraceContext{}}
	for _, o := range opts {
		o(mw)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mw.serve(next, w, r)
		})
	}
}

func (mw *middleware) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := mw.route(r.URL.Path)

	ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
			semconv.HTTPRoute(route),
		),
	)
	defer span.End()

	cid := CorrelationID(ctx)
	if cid != "" {
		w.Header().Set("X-Correlation-ID", cid)
	}
	mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	r = r.WithContext(ctx)
	next.ServeHTTP(rec, r)

	duration := time.Since(start)
	mw.metrics.HTTPRequestDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("path", route),
			attribute.String("status", strconv.Itoa(rec.statusCode)),
		),
	)
	span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))
	if mw.attrs != nil {
		span.SetAttributes(mw.attrs(r)...)
	}

	level := slog.LevelInfo
	if quietPaths[r.URL.Path] && rec.statusCode < 400 {
		level = slog.LevelDebug
	}
	slog.LogAttrs(ctx, level, "request completed",
		slog.String("trace_id", cid),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.statusCode),
		slog.Duration("duration", duration),
	)
}
