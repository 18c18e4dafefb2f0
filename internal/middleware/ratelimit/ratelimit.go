// Package ratelimit caps requests per client IP in fixed windows.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Limiter counts requests per client in fixed windows that start with the
// client's first request.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	now     func() time.Time

	limit           int
	window          time.Duration
	idleAfter       time.Duration
	cleanupInterval time.Duration

	rejected     prometheus.Counter
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type window struct {
	start time.Time
	count int
	last  time.Time
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// Window defaults to one minute; RequestsPerMinute applies per window.
	Window          time.Duration
	CleanupInterval time.Duration
	// Registerer receives the limiter metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup goroutine. Call Stop to end it.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	rl := &Limiter{
		clients:         make(map[string]*window),
		now:             time.Now,
		limit:           config.RequestsPerMinute,
		window:          config.Window,
		idleAfter:       10 * config.Window,
		cleanupInterval: config.CleanupInterval,
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gravl", Subsystem: "ratelimit", Name: "rejected_total",
			Help: "Requests rejected by the per-client rate limit.",
		}),
		stopCleanup: make(chan struct{}),
	}
	if config.Registerer != nil {
		config.Registerer.MustRegister(
			rl.rejected,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "gravl", Subsystem: "ratelimit", Name: "clients",
				Help: "Clients currently tracked by the rate limiter.",
			}, func() float64 { return float64(rl.ActiveClients()) }),
		)
	}
	go rl.startCleanup()
	return rl
}

// Allow records a request from clientIP. When the client is over its limit it
// reports false and how long until its window resets.
func (rl *Limiter) Allow(clientIP string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[clientIP]
	if !ok || now.Sub(w.start) >= rl.window {
		rl.clients[clientIP] = &window{start: now, count: 1, last: now}
		return true, 0
	}

	w.count++
	w.last = now
	if w.count > rl.limit {
		rl.rejected.Inc()
		return false, w.start.Add(rl.window).Sub(now)
	}
	return true, 0
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries forgets clients idle for ten windows.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idleAfter)
	for ip, w := range rl.clients {
		if w.last.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware rejects over-limit requests with Retry-After set in whole
// seconds. onLimit writes the body; nil falls back to a plain 429.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := rl.Allow(extractIP(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retry)))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}
