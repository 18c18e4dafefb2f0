package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravl/internal/core"
	"gravl/internal/records"
)

func TestQueries(t *testing.T) {
	assert.Equal(t,
		`SELECT row_to_json(t)::text FROM "runs" t ORDER BY t.id`,
		selectAllQuery("runs", "t.id"))

	assert.Equal(t,
		`SELECT row_to_json(t)::text FROM "angel5000_companies" t WHERE t."sector"::text = $1 ORDER BY t.id`,
		selectWhereQuery("angel5000_companies", "sector", "t.id"))

	assert.Equal(t,
		`INSERT INTO "runs" ("id", "run_id") SELECT "id", "run_id" FROM jsonb_populate_recordset(NULL::"runs", $1::jsonb)`,
		insertQuery("runs", []string{"id", "run_id"}))

	got := upsertQuery("angel5000_companies", []string{"company_id", "company_name", "sector"}, "company_id")
	assert.Contains(t, got, `ON CONFLICT ("company_id") DO UPDATE SET "company_name" = EXCLUDED."company_name", "sector" = EXCLUDED."sector", "updated_at" = now()`)
	assert.NotContains(t, got, `"company_id" = EXCLUDED`)
}

func TestWhereRejectsUnknownFieldBeforeQuerying(t *testing.T) {
	var r Repository
	_, err := r.ListRunsWhere(context.Background(), `x"; DROP TABLE runs; --`, "1")
	assert.True(t, errors.Is(err, records.ErrUnknownField))

	_, err = r.ListCompaniesWhere(context.Background(), "qc_status", "Pass")
	assert.True(t, errors.Is(err, records.ErrUnknownField))
}

func TestInsertRejectsInvalidBeforeQuerying(t *testing.T) {
	var r Repository
	err := r.InsertRuns(context.Background(), []core.Run{{RunID: "R", QCStatus: core.QCPass, QCScorePrenorm: 90, QCScorePostnorm: 10}})
	assert.ErrorIs(t, err, core.ErrScoreRegression)

	err = r.UpsertCompanies(context.Background(), []core.Company{{CompanyID: "A"}})
	assert.ErrorIs(t, err, core.ErrEmptyCompanyName)
}

// TestRoundTrip runs against a live database when GRAVL_TEST_DATABASE_URL is set.
func TestRoundTrip(t *testing.T) {
	url := os.Getenv("GRAVL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GRAVL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := Connect(ctx, url)
	require.NoError(t, err)
	defer repo.Close()

	err = repo.UpsertCompanies(ctx, []core.Company{{CompanyID: "gravl-test-1", CompanyName: "Helix", Category: core.MegaWinner}})
	require.NoError(t, err)

	got, err := repo.ListCompaniesWhere(ctx, "company_id", "gravl-test-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.MegaWinner, got[0].Category)
}
