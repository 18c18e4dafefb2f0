package http

import (
	"net/http"

	"gravl/internal/analytics"
	"gravl/internal/core"
)

// directoryFilters are the Angel5000 directory dropdowns. Each one filters
// its own column.
var directoryFilters = []string{
	"category",
	"sector",
	"lifecycle_status",
	"index_year",
	"verified_company",
	"verified_founder",
	"eligible_universe",
	"data_completeness",
}

func (s *Server) filteredCompanies(r *http.Request) ([]core.Company, analytics.Criteria, error) {
	companies, err := s.companies.Get(r.Context())
	if err != nil {
		return nil, nil, err
	}
	return filterRecords(r, companies)
}

// handleCompanies serves the company directory. Any company column can be
// used as a filter; the dropdown options are listed under "filters".
func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseBoundedInt(r.URL.Query(), paramLimit, 0, maxLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	all, err := s.companies.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	companies, criteria, err := filterRecords(r, all)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	options := make(map[string][]string, len(directoryFilters))
	for _, field := range directoryFilters {
		values, err := analytics.UniqueValues(all, field)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		options[field] = values
	}

	page := companies
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	NewJSONResponse().Body(map[string]any{
		"total":     len(companies),
		"count":     len(page),
		"criteria":  criteria,
		"filters":   options,
		"companies": page,
	}).Write(w)
}

func (s *Server) handleCompanyStats(w http.ResponseWriter, r *http.Request) {
	companies, _, err := s.filteredCompanies(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := analytics.CompanyStats(companies, s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(stats).Write(w)
}

func (s *Server) handleTopSectors(w http.ResponseWriter, r *http.Request) {
	n, err := ParseBoundedInt(r.URL.Query(), paramN, analytics.TopSectorsLimit, maxTopN)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	companies, _, err := s.filteredCompanies(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sectors, err := analytics.TopSectors(companies, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"sectors": sectors}).Write(w)
}
