package trace

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"gravl/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// RequestIDHeader carries the request ID on responses and, when a
	// trusted caller already assigned one, on requests.
	RequestIDHeader = "X-Request-ID"

	maxInboundIDLength = 64
)

// Middleware assigns request IDs, records per-route metrics and writes the
// access log.
type Middleware struct {
	extractIP func(*http.Request) string
	access    *log.StructuredLogger
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewMiddleware creates a trace middleware. Request counters and latency
// histograms are registered on reg; a nil reg keeps them unexported. A nil
// logger writes the access log through the slog default.
func NewMiddleware(extractIP func(*http.Request) string, reg prometheus.Registerer, logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentHTTP})
	}
	m := &Middleware{
		extractIP: extractIP,
		access:    log.NewStructuredLogger(logger),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "gravl", Subsystem: "http", Name: "requests_total", Help: "HTTP requests by route, method and status code."},
			[]string{"route", "method", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "gravl", Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request latency by route.", Buckets: prometheus.DefBuckets},
			[]string{"route", "method"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := inboundRequestID(r)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		r = r.WithContext(ctx)

		entry := log.Access{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			UserAgent: r.Header.Get("User-Agent"),
		}
		if m.extractIP != nil {
			entry.ClientIP = m.extractIP(r)
		}
		m.access.LogRequestStart(ctx, entry)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		// ServeMux records the matched pattern on the request it routed.
		entry.Route = r.Pattern
		if entry.Route == "" {
			entry.Route = "unmatched"
		}
		entry.Status = rw.statusCode
		entry.Duration = time.Since(start)

		m.requests.WithLabelValues(entry.Route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		m.latency.WithLabelValues(entry.Route, r.Method).Observe(entry.Duration.Seconds())
		m.access.LogAccess(ctx, entry)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func inboundRequestID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxInboundIDLength {
		return ""
	}
	for _, c := range id {
		if !(c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return ""
		}
	}
	return id
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestIDFromRequest adapts GetRequestID for log.Middleware.
func RequestIDFromRequest(r *http.Request) string {
	return GetRequestID(r.Context())
}
