package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gravl/internal/amqp"
	"gravl/internal/cache"
	"gravl/internal/core"
	"gravl/internal/log"
	"gravl/internal/middleware/ratelimit"
	"gravl/internal/middleware/security"
	"gravl/internal/middleware/trace"
	"gravl/internal/records"
)

const (
	defaultCacheSize    = 16
	defaultCacheTTL     = 5 * time.Minute
	cacheCleanupEvery   = 10 * time.Minute
	fetchTimeout        = 15 * time.Second
	readyTimeout        = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
	idleTimeout         = 120 * time.Second
	defaultRateLimitRPM = 120
)

// Options wires a Server to its record store and infrastructure. Nil caches
// default to in-process LRU caches.
type Options struct {
	Addr      string
	Runs      records.RunReader
	Companies records.CompanyReader

	RunCache     cache.Cache[[]core.Run]
	CompanyCache cache.Cache[[]core.Company]

	// Ready reports backend health for /readyz. Nil means always ready.
	Ready func(context.Context) error

	RateLimitRPM   int
	TrustedProxies []string
	Logger         *log.Logger

	// Now is the reference clock for company ages.
	Now func() time.Time
}

type Server struct {
	http.Server

	runs      *cache.Resident[core.Run]
	companies *cache.Resident[core.Company]
	ready     func(context.Context) error

	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	registry *prometheus.Registry
	refresh  *prometheus.CounterVec

	logger  *log.Logger
	now     func() time.Time
	started time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.Runs == nil || opts.Companies == nil {
		return nil, errors.New("server needs both a run and a company reader")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Component: log.ComponentHTTP})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RateLimitRPM <= 0 {
		opts.RateLimitRPM = defaultRateLimitRPM
	}

	registry := prometheus.NewRegistry()
	detector := security.NewDetector(registry, opts.Logger.WithComponent(log.ComponentSecurity))
	for _, proxy := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(proxy); err != nil {
			return nil, err
		}
	}
	s := &Server{
		ready:    opts.Ready,
		caches:   cache.NewManager(opts.Logger.WithComponent(log.ComponentCache)),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM, Registerer: registry}),
		detector: detector,
		registry: registry,
		refresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "gravl", Subsystem: "cache", Name: "invalidations_total", Help: "Resident record invalidations by table."},
			[]string{"table"},
		),
		logger:  opts.Logger,
		now:     opts.Now,
		started: time.Now(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.refresh,
	)
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP, s.registry, opts.Logger)

	runCache := opts.RunCache
	if runCache == nil {
		runCache = cache.NewLRUCache[[]core.Run](defaultCacheSize, defaultCacheTTL)
	}
	companyCache := opts.CompanyCache
	if companyCache == nil {
		companyCache = cache.NewLRUCache[[]core.Company](defaultCacheSize, defaultCacheTTL)
	}
	stats := make(map[string]cache.StatsSource)
	for table, c := range map[string]any{records.TableRuns: runCache, records.TableCompanies: companyCache} {
		if cleaner, ok := c.(cache.Cleaner); ok {
			s.caches.Register(cleaner)
		}
		if src, ok := c.(cache.StatsSource); ok {
			stats[table] = src
		}
	}
	s.registry.MustRegister(cache.NewCollector(stats))
	cacheLogger := opts.Logger.WithComponent(log.ComponentCache)
	s.runs = cache.NewResident(records.TableRuns, runCache, withTimeout(opts.Runs.ListRuns), cacheLogger)
	s.companies = cache.NewResident(records.TableCompanies, companyCache, withTimeout(opts.Companies.ListCompanies), cacheLogger)
	s.caches.StartCleanup(cacheCleanupEvery)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

func withTimeout[T any](fetch func(context.Context) ([]T, error)) func(context.Context) ([]T, error) {
	return func(ctx context.Context) ([]T, error) {
		ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		return fetch(ctx)
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withRequestLogger(h))
	}

	handle("GET /healthz", s.handleHealth)
	handle("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	handle("GET /api/runs", s.handleRuns)
	handle("GET /api/runs/overview", s.handleRunOverview)
	handle("GET /api/runs/operations", s.handleOperations)
	handle("GET /api/runs/governance", s.handleGovernance)
	handle("GET /api/runs/licensing", s.handleLicensing)
	handle("GET /api/runs/kits", s.handleKits)
	handle("GET /api/runs/groups", s.handleRunGroups)
	handle("GET /api/runs/top", s.handleRunTop)
	handle("GET /api/runs/aggregate", s.handleRunAggregate)

	handle("GET /api/companies", s.handleCompanies)
	handle("GET /api/companies/stats", s.handleCompanyStats)
	handle("GET /api/companies/sectors", s.handleTopSectors)

	handle("GET /api/badges", s.handleBadges)
	handle("GET /api/badges/{slug}", s.handleBadge)
	handle("GET /api/overview", s.handleOverview)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})

	// The tracer must hand the request it received straight to the mux so
	// the matched pattern is visible when it records metrics.
	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(h)
	h = s.tracer.Middleware(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return h
}

// withRequestLogger puts a request-scoped logger into the context.
func (s *Server) withRequestLogger(h http.Handler) http.Handler {
	return log.Middleware(s.logger, trace.RequestIDFromRequest)(h)
}

// HandleDatasetRefresh drops the resident sequence named by a refresh
// message. It is the AMQP consumer callback.
func (s *Server) HandleDatasetRefresh(ctx context.Context, msg *amqp.DatasetRefreshMessage) error {
	return s.Invalidate(ctx, msg.Table)
}

// Invalidate drops the resident sequence of table.
func (s *Server) Invalidate(ctx context.Context, table string) error {
	switch table {
	case records.TableRuns:
		s.runs.Invalidate(ctx)
	case records.TableCompanies:
		s.companies.Invalidate(ctx)
	default:
		return fmt.Errorf("invalidate: unknown table %q", table)
	}
	s.refresh.WithLabelValues(table).Inc()
	return nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
