package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type contextKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or one wrapping the
// slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// Middleware stores a request-scoped logger in the request context. When
// requestID is set and yields an ID, the logger carries it.
func Middleware(logger *Logger, requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if requestID != nil {
				if id := requestID(r); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

// StructuredLogger writes the recurring events of the service with a fixed
// set of fields.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// Access describes one served HTTP request.
type Access struct {
	Method    string
	Path      string
	Query     string
	Route     string
	ClientIP  string
	UserAgent string
	Status    int
	Duration  time.Duration
}

// LogRequestStart logs an incoming request at debug level.
func (sl *StructuredLogger) LogRequestStart(ctx context.Context, a Access) {
	fields := NewFields().
		WithHTTPRequest(a.Method, a.Path, a.Query, a.UserAgent).
		WithClientIP(a.ClientIP)

	sl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogAccess logs a completed request. 4xx responses log at warn, 5xx at error.
func (sl *StructuredLogger) LogAccess(ctx context.Context, a Access) {
	level := slog.LevelInfo
	switch {
	case a.Status >= 500:
		level = slog.LevelError
	case a.Status >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(a.Method, a.Path, a.Query, "").
		WithHTTPResponse(a.Status, a.Duration).
		WithClientIP(a.ClientIP)
	fields[FieldRoute] = a.Route

	sl.logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogImported logs a batch written to a store
func (sl *StructuredLogger) LogImported(ctx context.Context, table string, batch, count int, backend string) {
	fields := NewFields().
		WithTable(table, count).
		WithOperation(OpImport).
		ToSlice()

	fields = append(fields, FieldBatch, batch, FieldBackend, backend)

	sl.logger.InfoContext(ctx, "Batch imported", fields...)
}

// LogError logs a failed operation. fields may be nil.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(operation)
	sl.logger.ErrorContext(ctx, msg, fields.ToSlice()...)
}