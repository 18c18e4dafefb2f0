package backend

import (
	"errors"
	"fmt"
	"net/url"

	"gravl/internal/config"
)

// ErrInvalidConfig wraps every backend configuration problem.
var ErrInvalidConfig = errors.New("invalid backend config")

// Types lists the supported backends in the order they are documented.
func Types() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend, SupabaseBackend}
}

// TypeNames is Types as plain strings, for flag help and error messages.
func TypeNames() []string {
	types := Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return names
}

// FromAppConfig picks the backend settings out of the application config.
func FromAppConfig(app *config.Config) (Config, error) {
	if app == nil {
		return Config{}, fmt.Errorf("%w: app config is nil", ErrInvalidConfig)
	}
	bt := BackendType(app.DataBackend)
	if !bt.IsValid() {
		return Config{}, fmt.Errorf("%w: unknown backend %q, want one of %v", ErrInvalidConfig, app.DataBackend, TypeNames())
	}

	return Config{
		Type:          bt,
		DataDirectory: app.DataDir,
		SQLiteDBPath:  app.SQLiteDBPath,
		DatabaseURL:   app.DatabaseURL,
		SupabaseURL:   app.SupabaseURL,
		SupabaseKey:   app.SupabaseKey,
		AMQPURL:       app.AMQPURL,
		AMQPExchange:  app.AMQPExchange,
		AMQPQueue:     app.AMQPQueue,
	}, nil
}

// Validate reports every missing setting of the selected backend at once.
// An empty DataDirectory is fine for the memory backend, which then reads ./data.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: invalid backend type: %s", ErrInvalidConfig, c.Type)
	}

	var problems []error
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			problems = append(problems, errors.New("SQLite database path is required for sqlite backend"))
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			problems = append(problems, errors.New("database URL is required for postgres backend"))
		}
	case SupabaseBackend:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			problems = append(problems, errors.New("Supabase URL and key are required for supabase backend"))
		} else if u, err := url.Parse(c.SupabaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Errorf("Supabase URL %q must be an absolute http(s) URL", c.SupabaseURL))
		}
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		problems = append(problems, errors.New("AMQP exchange and queue are required when AMQP URL is set"))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
}
