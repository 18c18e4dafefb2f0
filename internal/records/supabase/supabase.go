// Package supabase reads and writes records through the Supabase REST
// (PostgREST) endpoint of a project.
package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gravl/internal/core"
	"gravl/internal/records"
)

// PageSize matches the PostgREST default max-rows.
const PageSize = 1000

type Repository struct {
	client   *client
	pageSize int
}

func New(projectURL, key string, opts ...Option) (*Repository, error) {
	if projectURL == "" {
		return nil, fmt.Errorf("supabase: missing project url")
	}
	if key == "" {
		return nil, fmt.Errorf("supabase: missing api key")
	}
	return &Repository{
		client:   newClient(strings.TrimRight(projectURL, "/"), key, opts...),
		pageSize: PageSize,
	}, nil
}

// Ping checks that the runs table is reachable with the configured key.
func (r *Repository) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	var out []map[string]any
	return r.client.do(ctx, request{method: http.MethodGet, table: records.TableRuns, query: q}, &out)
}

// list pages through a table until a short page is returned.
func list[T any](ctx context.Context, r *Repository, table, order string, filter url.Values) ([]T, error) {
	out := []T{}
	for offset := 0; ; offset += r.pageSize {
		q := url.Values{}
		for k, v := range filter {
			q[k] = v
		}
		q.Set("select", "*")
		q.Set("order", order)
		q.Set("limit", strconv.Itoa(r.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page []T
		if err := r.client.do(ctx, request{method: http.MethodGet, table: table, query: q}, &page); err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		out = append(out, page...)
		if len(page) < r.pageSize {
			return out, nil
		}
	}
}

func eq(field, value string) url.Values {
	return url.Values{field: {"eq." + value}}
}

func (r *Repository) ListRuns(ctx context.Context) ([]core.Run, error) {
	return list[core.Run](ctx, r, records.TableRuns, "created_at.asc,id.asc", nil)
}

func (r *Repository) ListRunsWhere(ctx context.Context, field, value string) ([]core.Run, error) {
	if err := records.CheckRunField(field); err != nil {
		return nil, err
	}
	return list[core.Run](ctx, r, records.TableRuns, "created_at.asc,id.asc", eq(field, value))
}

// InsertRuns posts the batch as one JSON array. The columns parameter keeps
// store-assigned columns such as created_at out of the insert.
func (r *Repository) InsertRuns(ctx context.Context, runs []core.Run) error {
	if err := records.ValidateRuns(runs); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("columns", strings.Join(core.RunColumns, ","))
	err := r.client.do(ctx, request{
		method: http.MethodPost,
		table:  records.TableRuns,
		query:  q,
		body:   records.WithRunIDs(runs),
		prefer: "return=minimal",
	}, nil)
	if err != nil {
		return fmt.Errorf("insert %s: %w", records.TableRuns, err)
	}
	return nil
}

func (r *Repository) ListCompanies(ctx context.Context) ([]core.Company, error) {
	return list[core.Company](ctx, r, records.TableCompanies, "id.asc", nil)
}

func (r *Repository) ListCompaniesWhere(ctx context.Context, field, value string) ([]core.Company, error) {
	if err := records.CheckCompanyField(field); err != nil {
		return nil, err
	}
	return list[core.Company](ctx, r, records.TableCompanies, "id.asc", eq(field, value))
}

func (r *Repository) UpsertCompanies(ctx context.Context, companies []core.Company) error {
	if err := records.ValidateCompanies(companies); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("on_conflict", "company_id")
	q.Set("columns", strings.Join(core.CompanyColumns, ","))
	err := r.client.do(ctx, request{
		method: http.MethodPost,
		table:  records.TableCompanies,
		query:  q,
		body:   companies,
		prefer: "resolution=merge-duplicates,return=minimal",
	}, nil)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", records.TableCompanies, err)
	}
	return nil
}
