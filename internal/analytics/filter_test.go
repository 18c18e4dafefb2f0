package analytics_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravl/internal/analytics"
	"gravl/internal/core"
)

func directory() []core.Company {
	return []core.Company{
		{CompanyID: "c1", CompanyName: "Helix Labs", FounderName: "Ana Ruiz", Sector: "Biotech", Category: core.MegaWinner, IndexYear: 2024, VerifiedCompany: true},
		{CompanyID: "c2", CompanyName: "Orbit Freight", FounderName: "Sam Lee", Sector: "Logistics", Category: core.NonUnicorn, IndexYear: 2023},
		{CompanyID: "c3", CompanyName: "Nimbus AI", FounderName: "Kai Helix", Sector: "Software", Category: core.PotentialUnicorn, IndexYear: 2024, VerifiedFounder: true},
		{CompanyID: "c4", CompanyName: "Cellwise", FounderName: "Jo Park", Sector: "Biotech", Category: core.NonUnicorn, IndexYear: 2024, VerifiedCompany: true},
	}
}

func ids(companies []core.Company) []string {
	out := []string{}
	for _, c := range companies {
		out = append(out, c.CompanyID)
	}
	return out
}

func TestFilterSearch(t *testing.T) {
	runs := []core.Run{
		{ID: "1", InstrumentType: "Illumina NovaSeq"},
		{ID: "2", InstrumentType: "Illumina MiSeq"},
		{ID: "3", InstrumentType: "PacBio Revio"},
	}

	got, err := analytics.Filter(runs, analytics.Search("nova"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestFilterDirectoryDimensions(t *testing.T) {
	tests := []struct {
		name     string
		criteria analytics.Criteria
		want     []string
	}{
		{"no criteria", nil, []string{"c1", "c2", "c3", "c4"}},
		{"category", analytics.Where("category", "non-unicorn"), []string{"c2", "c4"}},
		{"sector and category", analytics.Where("sector", "Biotech").And(analytics.Where("category", "non-unicorn")), []string{"c4"}},
		{"index year", analytics.Where("index_year", "2023"), []string{"c2"}},
		{"verified company", analytics.Where("verified_company", "true"), []string{"c1", "c4"}},
		{"verified founder false", analytics.Where("verified_founder", "false"), []string{"c1", "c2", "c4"}},
		{"all is no constraint", analytics.Where("sector", analytics.All), []string{"c1", "c2", "c3", "c4"}},
		{"empty value is no constraint", analytics.Where("category", ""), []string{"c1", "c2", "c3", "c4"}},
		{"search is case-insensitive", analytics.Search("HELIX"), []string{"c1", "c3"}},
		{"search by sector", analytics.Search("bio"), []string{"c1", "c4"}},
		{"search combined", analytics.Search("helix").And(analytics.Where("category", "potential-unicorn")), []string{"c3"}},
		{"no match", analytics.Where("sector", "Mining"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := analytics.Filter(directory(), tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestFilterAllIsIdentity(t *testing.T) {
	in := directory()
	for _, field := range []string{"category", "sector", "lifecycle_status", "data_completeness"} {
		got, err := analytics.Filter(in, analytics.Where(field, analytics.All))
		require.NoError(t, err)
		if diff := cmp.Diff(in, got); diff != "" {
			t.Errorf("Filter(%s=all) mismatch (-want +got):\n%s", field, diff)
		}
	}
}

func TestFilterComposition(t *testing.T) {
	in := directory()
	pairs := []struct{ c1, c2 analytics.Criteria }{
		{analytics.Where("sector", "Biotech"), analytics.Where("verified_company", "true")},
		{analytics.Search("a"), analytics.Where("index_year", "2024")},
		{analytics.Where("category", "non-unicorn"), analytics.Search("orbit")},
		{nil, analytics.Where("sector", "Software")},
	}

	for _, p := range pairs {
		step, err := analytics.Filter(in, p.c1)
		require.NoError(t, err)
		nested, err := analytics.Filter(step, p.c2)
		require.NoError(t, err)
		combined, err := analytics.Filter(in, p.c1.And(p.c2))
		require.NoError(t, err)

		assert.Equal(t, ids(combined), ids(nested), "%s then %s", p.c1, p.c2)
	}
}

func TestFilterUnknownField(t *testing.T) {
	_, err := analytics.Filter(directory(), analytics.Where("colour", "red"))
	var fe *analytics.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "colour", fe.Field)
}

type bare struct{ id string }

func (b bare) RecordID() string         { return b.id }
func (b bare) Field(string) (any, bool) { return nil, false }

func TestFilterNotSearchable(t *testing.T) {
	_, err := analytics.Filter([]bare{{id: "x"}}, analytics.Search("x"))
	assert.ErrorIs(t, err, analytics.ErrNotSearchable)

	got, err := analytics.Filter([]bare{{id: "x"}}, analytics.Search(""))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCriteriaHelpers(t *testing.T) {
	c := analytics.FromMap(map[string]string{"sector": "Biotech", "category": "all", "search": " "})
	assert.Equal(t, "category=all&search= &sector=Biotech", c.String())
	assert.Equal(t, analytics.Criteria{{Field: "sector", Value: "Biotech"}}, c.Active())

	base := analytics.Where("a", "1")
	joined := base.And(analytics.Where("b", "2"))
	assert.Len(t, base, 1)
	assert.Len(t, joined, 2)

	known := func(f string) bool { return f == "sector" }
	assert.NoError(t, analytics.FromMap(map[string]string{"sector": "x", "search": "y", "zone": "all"}).Validate(known))
	assert.Error(t, analytics.Where("zone", "west").Validate(known))
}
