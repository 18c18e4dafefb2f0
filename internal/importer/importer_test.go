package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravl/internal/amqp"
	"gravl/internal/core"
	"gravl/internal/records"
	"gravl/internal/records/memory"
	"gravl/internal/sheets"
	sheetmem "gravl/internal/sheets/memory"
)

const seedSheet = `company_id,company_name,EIN,founder_name,sector,state,date_founded,website,description,category,lifecycle_status,index_year,verified_company,verified_founder,eligible_universe,data_completeness
A5K-0001,Helix Labs,12-3456789,Sarah Chen,Biotech,CA,2012-04-01,https://helix.example,Gene editing,mega-winner,active,2024,TRUE,false,true,full-profile
A5K-0002,Orbit Systems,98-7654321,David Patel,Space Tech,TX,,https://orbit.example,,observed-growth,,,false,False,true,partial-profile
`

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []*amqp.DatasetRefreshMessage
	err  error
}

func (n *recordingNotifier) PublishDatasetRefresh(_ context.Context, msg *amqp.DatasetRefreshMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

// flakyRuns fails every insert whose first run id is listed in failOn.
type flakyRuns struct {
	mu       sync.Mutex
	inserted []core.Run
	failOn   map[string]bool
}

func (f *flakyRuns) InsertRuns(_ context.Context, runs []core.Run) error {
	if f.failOn[runs[0].RunID] {
		return errors.New("insert rejected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, runs...)
	return nil
}

func makeRuns(n int) []core.Run {
	runs := make([]core.Run, n)
	for i := range runs {
		runs[i] = core.Run{
			RunID:           fmt.Sprintf("RUN-%03d", i),
			FacilityName:    "Broad",
			QCStatus:        core.QCPass,
			QCScorePrenorm:  80,
			QCScorePostnorm: 85,
		}
	}
	return runs
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("", "data/angel5000_index_seed.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("JSON", "whatever.txt")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("", "runs.xlsx")
	assert.Error(t, err)
}

func TestDecodeCompaniesSeedSheet(t *testing.T) {
	companies, err := DecodeCompanies(strings.NewReader(seedSheet), FormatCSV)
	require.NoError(t, err)
	require.Len(t, companies, 2)

	helix := companies[0]
	assert.Equal(t, "A5K-0001", helix.CompanyID)
	assert.Equal(t, "12-3456789", helix.EIN)
	assert.Equal(t, core.MegaWinner, helix.Category)
	assert.Equal(t, "2012-04-01", helix.DateFounded.String())
	assert.Equal(t, 2024, helix.IndexYear)
	assert.True(t, helix.VerifiedCompany)
	assert.False(t, helix.VerifiedFounder)
	assert.True(t, helix.EligibleUniverse)

	orbit := companies[1]
	assert.True(t, orbit.DateFounded.IsZero())
	assert.Zero(t, orbit.IndexYear)
	assert.False(t, orbit.VerifiedFounder)
	assert.Equal(t, core.ObservedGrowth, orbit.Category)
}

func TestDecodeCSVErrors(t *testing.T) {
	tests := []struct {
		name   string
		sheet  string
		column string
	}{
		{"unknown column", "company_id,colour\nA,red\n", "colour"},
		{"bad integer", "company_id,index_year\nA,soon\n", "index_year"},
		{"unknown category", "company_id,category\nA,unicorn\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCompanies(strings.NewReader(tt.sheet), FormatCSV)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.column, perr.Column)
		})
	}
}

func TestDecodeRunsCSV(t *testing.T) {
	sheet := "run_id,facility_name,qc_status,qc_score_prenorm,qc_score_postnorm,audit_trail_complete,read_1_length,order_date,timestamp_captured\n" +
		"RUN-1,Broad,Pass,81.5,90,true,151,2024-03-02,2024-03-02T10:00:00Z\n"
	runs, err := DecodeRuns(strings.NewReader(sheet), FormatCSV)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 81.5, runs[0].QCScorePrenorm)
	assert.Equal(t, 151, runs[0].Read1Length)
	assert.True(t, runs[0].AuditTrailComplete)
	assert.Equal(t, 2024, runs[0].TimestampCaptured.Year())
	require.NoError(t, runs[0].Validate())
}

func TestDecodeRunsJSON(t *testing.T) {
	runs, err := DecodeRuns(strings.NewReader(`[{"run_id":"RUN-1","qc_status":"Fail"}]`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.QCFail, runs[0].QCStatus)
}

func TestImportRunsInBatches(t *testing.T) {
	store := memory.New(nil, nil)
	notifier := &recordingNotifier{}
	im := New(store, store, Options{BatchSize: 10, Concurrency: 3, Backend: "memory", Notifier: notifier})

	summary, err := im.ImportRuns(context.Background(), makeRuns(35))
	require.NoError(t, err)
	assert.Equal(t, Summary{Table: records.TableRuns, Total: 35, Written: 35, Batches: 4}, summary)

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 35)

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, records.TableRuns, notifier.msgs[0].Table)
	assert.Equal(t, 35, notifier.msgs[0].Count)
}

func TestImportRunsRejectsInvalidBatchUpFront(t *testing.T) {
	store := memory.New(nil, nil)
	im := New(store, store, Options{BatchSize: 2})

	runs := makeRuns(5)
	runs[3].QCScorePostnorm = 10

	_, err := im.ImportRuns(context.Background(), runs)
	var rowErr *records.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 3, rowErr.Row)
	assert.ErrorIs(t, err, core.ErrScoreRegression)

	stored, _ := store.ListRuns(context.Background())
	assert.Empty(t, stored)
}

func TestImportContinuesPastFailedBatch(t *testing.T) {
	writer := &flakyRuns{failOn: map[string]bool{"RUN-002": true}}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	im := New(writer, nil, Options{BatchSize: 2, Concurrency: 2, Notifier: notifier})

	summary, err := im.ImportRuns(context.Background(), makeRuns(6))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 batches failed")
	assert.Equal(t, 4, summary.Written)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 2, summary.Failed[0].Batch)
	assert.Len(t, writer.inserted, 4)
	assert.Len(t, notifier.msgs, 1, "partial imports still announce a refresh")
}

func TestImportCancelledContext(t *testing.T) {
	store := memory.New(nil, nil)
	im := New(store, store, Options{BatchSize: 1, Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := im.ImportRuns(ctx, makeRuns(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportFileCompanies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "angel5000_index_seed.csv")
	require.NoError(t, os.WriteFile(path, []byte(seedSheet), 0o644))

	store := memory.New(nil, nil)
	im := New(store, store, Options{})

	summary, err := im.ImportFile(context.Background(), records.TableCompanies, path, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Written)

	// a second import upserts on company_id instead of duplicating
	_, err = im.ImportFile(context.Background(), records.TableCompanies, path, FormatCSV)
	require.NoError(t, err)
	companies, _ := store.ListCompanies(context.Background())
	assert.Len(t, companies, 2)

	_, err = im.ImportFile(context.Background(), "expenses", path, FormatCSV)
	assert.Error(t, err)
}

func TestDecodeSheetCompanies(t *testing.T) {
	rows := [][]string{
		{"company_id", "company_name", "EIN", "category", "index_year", "verified_company"},
		{"A5K-0001", "Helix Labs", "12-3456789", "mega-winner", "2024", "TRUE"},
		{"A5K-0002", "Orbit Systems", "", "observed-growth"},
	}
	companies, err := DecodeSheetCompanies(rows)
	require.NoError(t, err)
	require.Len(t, companies, 2)
	assert.Equal(t, core.MegaWinner, companies[0].Category)
	assert.Equal(t, 2024, companies[0].IndexYear)
	assert.True(t, companies[0].VerifiedCompany)
	assert.Equal(t, "", companies[1].EIN)
	assert.False(t, companies[1].VerifiedCompany)

	_, err = DecodeSheetCompanies([][]string{{"company_id", "index_year"}, {"A", "soon"}})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, "index_year", perr.Column)

	empty, err := DecodeSheetRuns(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestImportSheet(t *testing.T) {
	src := sheetmem.New()
	src.Put("Seed", [][]string{
		{"company_id", "company_name", "sector", "category"},
		{"A5K-0001", "Helix Labs", "Biotech", "mega-winner"},
		{"A5K-0002", "Orbit Systems", "Space Tech", "potential-unicorn"},
		{"A5K-0003", "Quiet Ledger", "Fintech", "non-unicorn"},
	})

	store := memory.New(nil, nil)
	notifier := &recordingNotifier{}
	im := New(store, store, Options{BatchSize: 2, Notifier: notifier})

	summary, err := im.ImportSheet(context.Background(), records.TableCompanies, src, "Seed!A1:D")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Written)
	assert.Equal(t, 2, summary.Batches)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, records.TableCompanies, notifier.msgs[0].Table)

	companies, _ := store.ListCompanies(context.Background())
	assert.Len(t, companies, 3)

	_, err = im.ImportSheet(context.Background(), records.TableCompanies, src, "Missing!A:A")
	assert.ErrorIs(t, err, sheets.ErrRangeNotFound)

	src.Put("Bad", [][]string{{"company_id", "company_name", "category"}, {"A5K-9", "Nameless", "unicorn"}})
	_, err = im.ImportSheet(context.Background(), records.TableCompanies, src, "Bad")
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
}
