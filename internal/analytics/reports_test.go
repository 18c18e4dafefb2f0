package analytics_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gravl/internal/analytics"
	"gravl/internal/core"
)

func reportRuns() []core.Run {
	return []core.Run{
		{
			ID: "1", RunID: "R1", FacilityName: "Broad", ProtocolName: "WGS", ProtocolVersion: "v1",
			ReagentKit: "KitA", QCStatus: core.QCPass, QCScorePrenorm: 80, QCScorePostnorm: 92,
			TurnaroundTimeDays: 2, DataVolumeGB: 100, DataCompletenessPct: 90, AuditTrailComplete: true,
			FieldSource: "LIMS", ValidationStatus: core.ValidationValidated, DatasetType: "Genomic",
			LicensingStatus: core.LicensingReady, ValueDollars: 1000, TotalAmount: 50,
			FulfillmentStatus: core.FulfillmentCompleted, PrimaryDataSizeGB: 500, NormalizationStatus: core.NormalizationMapped,
		},
		{
			ID: "2", RunID: "R2", FacilityName: "Broad", ProtocolName: "WGS", ProtocolVersion: "v2",
			ReagentKit: "KitB", QCStatus: core.QCFail, QCScorePrenorm: 60, QCScorePostnorm: 65,
			TurnaroundTimeDays: 4, DataVolumeGB: 50, DataCompletenessPct: 80,
			FieldSource: "Manual", ValidationStatus: core.ValidationInReview, DatasetType: "Proteomic",
			LicensingStatus: "Pending", ValueDollars: 3000, TotalAmount: 25,
			FulfillmentStatus: "PENDING", PrimaryDataSizeGB: 250, NormalizationStatus: "Raw",
		},
		{
			ID: "3", RunID: "R3", FacilityName: "Stanford", ProtocolName: "WGS", ProtocolVersion: "v1",
			ReagentKit: "KitA", QCStatus: core.QCFail, QCScorePrenorm: 70, QCScorePostnorm: 85,
			TurnaroundTimeDays: 3, DataVolumeGB: 25, DataCompletenessPct: 100, AuditTrailComplete: true,
			FieldSource: "LIMS", ValidationStatus: core.ValidationValidated, DatasetType: "Genomic",
			LicensingStatus: core.LicensingReady, ValueDollars: 500, TotalAmount: 25,
			FulfillmentStatus: core.FulfillmentCompleted, PrimaryDataSizeGB: 250, NormalizationStatus: core.NormalizationMapped,
		},
	}
}

func TestRunOverview(t *testing.T) {
	got, err := analytics.RunOverview(reportRuns())
	require.NoError(t, err)

	assert.Equal(t, 3, got.TotalRuns)
	assert.InDelta(t, 1.0, got.TotalDataVolumeTB, 1e-9)
	assert.Equal(t, 2, got.UniqueFacilities)
	assert.Equal(t, 2, got.QCFailCount)
	assert.Equal(t, 2, got.UniqueProtocols)
	assert.Equal(t, 4500.0, got.TotalDatasetValue)
	assert.Equal(t, 100.0, got.TotalTransactionValue)
	assert.Equal(t, 2, got.CompletedRuns)
	assert.Equal(t, 2, got.UniqueReagentKits)
	assert.InDelta(t, 66.6667, got.NormalizationSuccessRate, 1e-3)
	assert.InDelta(t, 32.0/3, got.AvgQCScoreLift, 1e-9)
}

func TestRunOverviewEmpty(t *testing.T) {
	got, err := analytics.RunOverview(nil)
	require.NoError(t, err)
	assert.Equal(t, core.RunOverview{}, got)
}

func TestKitReliability(t *testing.T) {
	got, err := analytics.KitReliability(reportRuns())
	require.NoError(t, err)

	want := []core.KitReliability{
		{Kit: "KitA", Score: 50, Runs: 2},
		{Kit: "KitB", Score: 0, Runs: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("KitReliability mismatch (-want +got):\n%s", diff)
	}
}

func TestKitReliabilityTopFive(t *testing.T) {
	var runs []core.Run
	for i, kit := range []string{"K1", "K2", "K3", "K4", "K5", "K6", "K7"} {
		runs = append(runs, core.Run{ID: kit, ReagentKit: kit, QCStatus: core.QCPass})
		if i%2 == 0 {
			runs = append(runs, core.Run{ID: kit + "f", ReagentKit: kit, QCStatus: core.QCFail})
		}
	}

	got, err := analytics.KitReliability(runs)
	require.NoError(t, err)
	require.Len(t, got, analytics.KitReliabilityLimit)
	assert.Equal(t, "K2", got[0].Kit)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, "K1", got[3].Kit)
	assert.Equal(t, 50, got[3].Score)
}

func TestOperations(t *testing.T) {
	got, err := analytics.Operations(reportRuns())
	require.NoError(t, err)

	assert.Equal(t, 1, got.PassedRuns)
	assert.Equal(t, 2, got.FailedRuns)
	assert.Equal(t, 3.0, got.AvgTurnaroundDays)
	assert.Equal(t, 175.0, got.TotalDataVolumeGB)
	assert.InDelta(t, 242.0/3, got.AvgQCScore, 1e-9)
	assert.Equal(t, []core.KeyCount{{Key: "Broad", Count: 2}, {Key: "Stanford", Count: 1}}, got.RunsByFacility)
	assert.Equal(t, []core.KeyCount{{Key: "COMPLETED", Count: 2}, {Key: "PENDING", Count: 1}}, got.Fulfillment)
	assert.Equal(t, []core.ScoreBucket{
		{Label: "90-100", Count: 1},
		{Label: "80-89", Count: 1},
		{Label: "70-79", Count: 0},
		{Label: "<70", Count: 1},
	}, got.QCDistribution)
}

func TestGovernance(t *testing.T) {
	got, err := analytics.Governance(reportRuns())
	require.NoError(t, err)

	assert.Equal(t, 2, got.AuditComplete)
	assert.Equal(t, 2, got.Validated)
	assert.Equal(t, 1, got.InReview)
	assert.Equal(t, 90.0, got.AvgDataCompleteness)
	assert.Equal(t, []core.KeyCount{{Key: "LIMS", Count: 2}, {Key: "Manual", Count: 1}}, got.FieldSources)
}

func TestLicensing(t *testing.T) {
	got, err := analytics.Licensing(reportRuns())
	require.NoError(t, err)

	assert.Equal(t, 2, got.Ready)
	assert.Equal(t, []core.KeyAmount{
		{Key: "Proteomic", Amount: 3000},
		{Key: "Genomic", Amount: 1500},
	}, got.ValueByDatasetType)
}

func TestCompanyStats(t *testing.T) {
	companies := directory()
	companies[0].DateFounded = core.NewDate(2010, 3, 1)
	companies[0].State = "CA"
	companies[1].DateFounded = core.NewDate(2015, 6, 1)
	companies[1].State = "TX"
	companies[2].State = "CA"
	companies[3].DateFounded = core.NewDate(2020, 1, 1)
	companies[3].State = "CA"

	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := analytics.CompanyStats(companies, ref)
	require.NoError(t, err)

	assert.Equal(t, 4, got.TotalCompanies)
	assert.Equal(t, 1, got.MegaWinners)
	assert.Equal(t, 1, got.PotentialUnicorns)
	assert.Equal(t, 2, got.NonUnicorns)
	// ages 15, 10 and 5; the company without a founding date is skipped
	assert.Equal(t, 10, got.AverageAge)
	assert.Equal(t, []core.KeyCount{{Key: "CA", Count: 3}, {Key: "TX", Count: 1}}, got.StateBreakdown)
	assert.Equal(t, []core.KeyCount{
		{Key: "Biotech", Count: 2},
		{Key: "Logistics", Count: 1},
		{Key: "Software", Count: 1},
	}, got.SectorBreakdown)
}

func TestTopSectors(t *testing.T) {
	got, err := analytics.TopSectors(directory(), 1)
	require.NoError(t, err)
	assert.Equal(t, []core.KeyCount{{Key: "Biotech", Count: 2}}, got)

	got, err = analytics.TopSectors(directory(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
