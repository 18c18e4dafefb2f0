package http

import (
	"errors"
	"net/http"

	"gravl/internal/analytics"
	"gravl/internal/core"
)

const defaultTopN = 5

// filterRecords applies the request's query criteria to records.
func filterRecords[R analytics.Record](r *http.Request, records []R) ([]R, analytics.Criteria, error) {
	criteria, err := ParseCriteria(r.URL.Query())
	if err != nil {
		return nil, nil, err
	}
	if err := criteria.Validate(knownField[R]); err != nil {
		var fieldErr *analytics.FieldError
		if errors.As(err, &fieldErr) {
			return nil, nil, &ParamError{Param: fieldErr.Field, Reason: "is not a known field"}
		}
		return nil, nil, err
	}
	out, err := analytics.Filter(records, criteria)
	if err != nil {
		return nil, nil, err
	}
	return out, criteria.Active(), nil
}

// requireField reads a field-name parameter and checks that R has it.
func requireField[R analytics.Record](r *http.Request, key string) (string, error) {
	field, err := RequireParam(r.URL.Query(), key)
	if err != nil {
		return "", err
	}
	if !knownField[R](field) {
		return "", &ParamError{Param: key, Value: field, Reason: "is not a known field"}
	}
	return field, nil
}

func (s *Server) filteredRuns(r *http.Request) ([]core.Run, analytics.Criteria, error) {
	runs, err := s.runs.Get(r.Context())
	if err != nil {
		return nil, nil, err
	}
	return filterRecords(r, runs)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseBoundedInt(r.URL.Query(), paramLimit, 0, maxLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, criteria, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page := runs
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	NewJSONResponse().Body(map[string]any{
		"total":    len(runs),
		"count":    len(page),
		"criteria": criteria,
		"runs":     page,
	}).Write(w)
}

func (s *Server) handleRunOverview(w http.ResponseWriter, r *http.Request) {
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	overview, err := analytics.RunOverview(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(overview).Write(w)
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := analytics.Operations(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(rep).Write(w)
}

func (s *Server) handleGovernance(w http.ResponseWriter, r *http.Request) {
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := analytics.Governance(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(rep).Write(w)
}

func (s *Server) handleLicensing(w http.ResponseWriter, r *http.Request) {
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rep, err := analytics.Licensing(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(rep).Write(w)
}

func (s *Server) handleKits(w http.ResponseWriter, r *http.Request) {
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kits, err := analytics.KitReliability(runs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"kits": kits}).Write(w)
}

// handleRunGroups counts runs per value of field, or totals sum per value
// when sum is given.
func (s *Server) handleRunGroups(w http.ResponseWriter, r *http.Request) {
	field, err := requireField[core.Run](r, paramField)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var sumField string
	if r.URL.Query().Has(paramSum) {
		if sumField, err = requireField[core.Run](r, paramSum); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var groups []analytics.Ranked
	if sumField != "" {
		groups, err = analytics.SumBy(runs, field, sumField)
	} else {
		groups, err = analytics.CountBy(runs, field)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"field":  field,
		"sum":    sumField,
		"groups": groups,
	}).Write(w)
}

// runScore resolves the score parameter of /api/runs/top.
func runScore(r *http.Request) (string, analytics.ScoreFunc[core.Run], error) {
	name := r.URL.Query().Get(paramScore)
	switch name {
	case "", "count":
		return "count", analytics.CountScore[core.Run], nil
	case "pass-rate":
		return name, analytics.RateScore(core.Run.Passed), nil
	case "sum":
		field, err := requireField[core.Run](r, paramSum)
		if err != nil {
			return "", nil, err
		}
		return name, analytics.SumScore[core.Run](field), nil
	default:
		return "", nil, &ParamError{Param: paramScore, Value: name, Reason: "must be count, pass-rate or sum"}
	}
}

func (s *Server) handleRunTop(w http.ResponseWriter, r *http.Request) {
	field, err := requireField[core.Run](r, paramField)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scoreName, score, err := runScore(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := ParseBoundedInt(r.URL.Query(), paramN, defaultTopN, maxTopN)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	top, err := analytics.TopNByScore(runs, field, score, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"field": field,
		"score": scoreName,
		"top":   top,
	}).Write(w)
}

// handleRunAggregate reports count, total, mean and pass rate of a numeric
// field over the filtered runs.
func (s *Server) handleRunAggregate(w http.ResponseWriter, r *http.Request) {
	field, err := requireField[core.Run](r, paramField)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, _, err := s.filteredRuns(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sum, err := analytics.Sum(runs, field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	avg, err := analytics.Average(runs, field)
	if errors.Is(err, analytics.ErrEmptyInput) {
		EmptyResponse(map[string]any{"field": field, "count": 0}).Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	passRate, err := analytics.Rate(runs, core.Run.Passed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"field":     field,
		"count":     len(runs),
		"sum":       sum,
		"average":   avg,
		"pass_rate": passRate,
	}).Write(w)
}
