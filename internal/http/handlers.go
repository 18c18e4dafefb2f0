package http

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"gravl/internal/analytics"
	"gravl/internal/core"
	"gravl/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"backend": "ok"}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			checks["backend"] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}).Write(w)
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{"badges": core.Badges()}).Write(w)
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	b, ok := core.LookupBadge(slug)
	if !ok {
		NotFoundError("unknown badge " + slug).Write(w)
		return
	}
	NewJSONResponse().Body(b).Write(w)
}

// handleOverview loads both record sequences concurrently and returns the
// headline numbers of both dashboards.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	var (
		runs      []core.Run
		companies []core.Company
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		runs, err = s.runs.Get(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		companies, err = s.companies.Get(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}

	overview, err := analytics.RunOverview(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kits, err := analytics.KitReliability(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := analytics.CompanyStats(companies, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	NewJSONResponse().Body(map[string]any{
		"runs":      overview,
		"kits":      kits,
		"companies": stats,
	}).Write(w)
}
