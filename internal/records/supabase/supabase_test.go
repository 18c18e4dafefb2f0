package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"gravl/internal/core"
	"gravl/internal/records"
)

func newTestRepo(t *testing.T, h http.HandlerFunc) *Repository {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	repo, err := New(srv.URL+"/", "anon-key", WithBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return repo
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("", "k"); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := New("https://x.supabase.co", ""); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestListRunsPagesAndAuth(t *testing.T) {
	var calls atomic.Int32
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/rest/v1/runs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon-key" || r.Header.Get("Authorization") != "Bearer anon-key" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit != 2 {
			t.Errorf("expected limit 2, got %d", limit)
		}
		total := 3
		var page []map[string]any
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]any{"id": fmt.Sprintf("r-%d", i), "run_id": fmt.Sprintf("RUN-%d", i), "qc_status": "Pass"})
		}
		if page == nil {
			page = []map[string]any{}
		}
		json.NewEncoder(w).Encode(page)
	})
	repo.pageSize = 2

	runs, err := repo.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 || runs[2].RunID != "RUN-2" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 page requests, got %d", calls.Load())
	}
}

func TestListCompaniesWhere(t *testing.T) {
	var gotFilter string
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("verified_company")
		w.Write([]byte(`[{"id":7,"company_id":"A-7","company_name":"Helix","category":"mega-winner","date_founded":"2011-02-03","verified_company":true}]`))
	})

	got, err := repo.ListCompaniesWhere(context.Background(), "verified_company", "true")
	if err != nil {
		t.Fatalf("where: %v", err)
	}
	if gotFilter != "eq.true" {
		t.Fatalf("expected eq.true filter, got %q", gotFilter)
	}
	if len(got) != 1 || got[0].ID != 7 || got[0].Category != core.MegaWinner || got[0].DateFounded.String() != "2011-02-03" {
		t.Fatalf("unexpected companies: %+v", got)
	}

	if _, err := repo.ListCompaniesWhere(context.Background(), "select", "*"); !errors.Is(err, records.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestInsertRunsAssignsIDs(t *testing.T) {
	var body []map[string]any
	var columns, prefer string
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		columns = r.URL.Query().Get("columns")
		prefer = r.Header.Get("Prefer")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &body)
		w.WriteHeader(http.StatusCreated)
	})

	runs := []core.Run{{RunID: "RUN-1", QCStatus: core.QCPass, QCScorePrenorm: 1, QCScorePostnorm: 2}}
	if err := repo.InsertRuns(context.Background(), runs); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(body) != 1 || body[0]["id"] == "" || body[0]["id"] == nil {
		t.Fatalf("expected generated id, got %+v", body)
	}
	if runs[0].ID != "" {
		t.Fatalf("input slice was mutated")
	}
	if prefer != "return=minimal" || columns == "" {
		t.Fatalf("unexpected prefer=%q columns=%q", prefer, columns)
	}
}

func TestUpsertCompaniesMergesOnCompanyID(t *testing.T) {
	var onConflict, prefer string
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		onConflict = r.URL.Query().Get("on_conflict")
		prefer = r.Header.Get("Prefer")
		w.WriteHeader(http.StatusCreated)
	})

	err := repo.UpsertCompanies(context.Background(), []core.Company{{CompanyID: "A-1", CompanyName: "Helix", Category: core.ObservedGrowth}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if onConflict != "company_id" || prefer != "resolution=merge-duplicates,return=minimal" {
		t.Fatalf("unexpected on_conflict=%q prefer=%q", onConflict, prefer)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	})

	if _, err := repo.ListRuns(context.Background()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"down"}`))
	})

	_, err := repo.ListRuns(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 APIError, got %v", err)
	}
	if calls.Load() != maxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", maxRetries+1, calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid key"}`))
	})

	_, err := repo.ListCompanies(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestContextCancelDuringBackoff(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	repo.client.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := repo.ListRuns(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
