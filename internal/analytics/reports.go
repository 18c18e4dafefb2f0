package analytics

import (
	"errors"
	"math"
	"time"

	"gravl/internal/core"
)

const (
	KitReliabilityLimit = 5
	DatasetValueLimit   = 8
	TopSectorsLimit     = 10
)

// zeroIfEmpty turns the empty-input sentinel into a zero reading for report
// tiles, where an empty dataset simply shows 0.
func zeroIfEmpty(v float64, err error) (float64, error) {
	if errors.Is(err, ErrEmptyInput) {
		return 0, nil
	}
	return v, err
}

func isCompleted(r core.Run) bool { return r.FulfillmentStatus == core.FulfillmentCompleted }
func isMapped(r core.Run) bool    { return r.NormalizationStatus == core.NormalizationMapped }
func isFailed(r core.Run) bool    { return r.QCStatus == core.QCFail }

// RunOverview computes the executive summary tiles.
func RunOverview(runs []core.Run) (core.RunOverview, error) {
	var (
		o   core.RunOverview
		err error
	)
	o.TotalRuns = len(runs)
	o.TotalDataVolumeTB = SumOf(runs, func(r core.Run) float64 { return r.PrimaryDataSizeGB }) / 1000
	if o.UniqueFacilities, err = CountDistinct(runs, "facility_name"); err != nil {
		return o, err
	}
	o.QCFailCount = Count(runs, isFailed)
	if o.UniqueProtocols, err = CountDistinct(runs, "protocol"); err != nil {
		return o, err
	}
	if o.TotalDatasetValue, err = Sum(runs, "value_dollars"); err != nil {
		return o, err
	}
	if o.TotalTransactionValue, err = Sum(runs, "total_amount"); err != nil {
		return o, err
	}
	o.CompletedRuns = Count(runs, isCompleted)
	if o.UniqueReagentKits, err = CountDistinct(runs, "reagent_kit"); err != nil {
		return o, err
	}
	rate, err := zeroIfEmpty(Rate(runs, isMapped))
	if err != nil {
		return o, err
	}
	o.NormalizationSuccessRate = rate * 100
	if o.AvgQCScoreLift, err = zeroIfEmpty(Average(runs, "qc_score_lift")); err != nil {
		return o, err
	}
	return o, nil
}

// KitReliability ranks reagent kits by QC pass rate, rounded to whole
// percent, and keeps the best five.
func KitReliability(runs []core.Run) ([]core.KitReliability, error) {
	score := func(members []core.Run) (float64, error) {
		r, err := Rate(members, core.Run.Passed)
		return math.Round(r * 100), err
	}
	ranked, err := TopNByScore(runs, "reagent_kit", score, KitReliabilityLimit)
	if err != nil {
		return nil, err
	}
	out := make([]core.KitReliability, len(ranked))
	for i, r := range ranked {
		out[i] = core.KitReliability{Kit: r.Key, Score: int(r.Score), Runs: r.Count}
	}
	return out, nil
}

var qcBuckets = []struct {
	label    string
	min, max float64
}{
	{"90-100", 90, math.Inf(1)},
	{"80-89", 80, 90},
	{"70-79", 70, 80},
	{"<70", math.Inf(-1), 70},
}

func Operations(runs []core.Run) (core.OperationsReport, error) {
	var (
		rep core.OperationsReport
		err error
	)
	rep.PassedRuns = Count(runs, core.Run.Passed)
	rep.FailedRuns = Count(runs, isFailed)
	if rep.AvgTurnaroundDays, err = zeroIfEmpty(Average(runs, "turnaround_time_days")); err != nil {
		return rep, err
	}
	if rep.TotalDataVolumeGB, err = Sum(runs, "data_volume_gb"); err != nil {
		return rep, err
	}
	if rep.AvgQCScore, err = zeroIfEmpty(Average(runs, "qc_score_postnorm")); err != nil {
		return rep, err
	}
	if rep.RunsByFacility, err = keyCounts(runs, "facility_name"); err != nil {
		return rep, err
	}
	if rep.Fulfillment, err = keyCounts(runs, "fulfillment_status"); err != nil {
		return rep, err
	}
	rep.QCDistribution = make([]core.ScoreBucket, len(qcBuckets))
	for i, b := range qcBuckets {
		rep.QCDistribution[i] = core.ScoreBucket{
			Label: b.label,
			Count: Count(runs, func(r core.Run) bool {
				return r.QCScorePostnorm >= b.min && r.QCScorePostnorm < b.max
			}),
		}
	}
	return rep, nil
}

func Governance(runs []core.Run) (core.GovernanceReport, error) {
	var (
		rep core.GovernanceReport
		err error
	)
	rep.AuditComplete = Count(runs, func(r core.Run) bool { return r.AuditTrailComplete })
	rep.Validated = Count(runs, FieldEquals[core.Run]("validation_status", core.ValidationValidated))
	rep.InReview = Count(runs, FieldEquals[core.Run]("validation_status", core.ValidationInReview))
	if rep.AvgDataCompleteness, err = zeroIfEmpty(Average(runs, "data_completeness_pct")); err != nil {
		return rep, err
	}
	if rep.ValidationStatuses, err = keyCounts(runs, "validation_status"); err != nil {
		return rep, err
	}
	if rep.FieldSources, err = keyCounts(runs, "field_source"); err != nil {
		return rep, err
	}
	return rep, nil
}

func Licensing(runs []core.Run) (core.LicensingReport, error) {
	var (
		rep core.LicensingReport
		err error
	)
	rep.Ready = Count(runs, FieldEquals[core.Run]("licensing_status", core.LicensingReady))
	if rep.LicensingStatuses, err = keyCounts(runs, "licensing_status"); err != nil {
		return rep, err
	}
	ranked, err := TopNByScore(runs, "dataset_type", SumScore[core.Run]("value_dollars"), DatasetValueLimit)
	if err != nil {
		return rep, err
	}
	rep.ValueByDatasetType = make([]core.KeyAmount, len(ranked))
	for i, r := range ranked {
		rep.ValueByDatasetType[i] = core.KeyAmount{Key: r.Key, Amount: r.Score}
	}
	return rep, nil
}

// CompanyStats summarizes the company universe. Ages are measured at ref;
// companies without a founding date are left out of the average.
func CompanyStats(companies []core.Company, ref time.Time) (core.CompanyStats, error) {
	var (
		st  core.CompanyStats
		err error
	)
	st.TotalCompanies = len(companies)
	st.MegaWinners = Count(companies, FieldEquals[core.Company]("category", core.MegaWinner.String()))
	st.PotentialUnicorns = Count(companies, FieldEquals[core.Company]("category", core.PotentialUnicorn.String()))
	st.NonUnicorns = Count(companies, FieldEquals[core.Company]("category", core.NonUnicorn.String()))
	if st.SectorBreakdown, err = keyCounts(companies, "sector"); err != nil {
		return st, err
	}
	if st.StateBreakdown, err = keyCounts(companies, "state"); err != nil {
		return st, err
	}
	st.AverageAge = averageAge(companies, ref)
	return st, nil
}

func averageAge(companies []core.Company, ref time.Time) int {
	var total, n int
	for _, c := range companies {
		age, ok := c.AgeAt(ref)
		if !ok {
			continue
		}
		total += age
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(n)))
}

// TopSectors returns the n most populated sectors.
func TopSectors(companies []core.Company, n int) ([]core.KeyCount, error) {
	ranked, err := TopNByScore(companies, "sector", CountScore[core.Company], n)
	if err != nil {
		return nil, err
	}
	return toKeyCounts(ranked), nil
}

func keyCounts[R Record](records []R, field string) ([]core.KeyCount, error) {
	ranked, err := CountBy(records, field)
	if err != nil {
		return nil, err
	}
	return toKeyCounts(ranked), nil
}

func toKeyCounts(ranked []Ranked) []core.KeyCount {
	out := make([]core.KeyCount, len(ranked))
	for i, r := range ranked {
		out[i] = core.KeyCount{Key: r.Key, Count: r.Count}
	}
	return out
}
