package core

// KeyCount is a count of records sharing a field value.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// KeyAmount is a numeric total aggregated by field value.
type KeyAmount struct {
	Key    string  `json:"key"`
	Amount float64 `json:"amount"`
}

// RunOverview is the executive summary over a set of runs.
type RunOverview struct {
	TotalRuns                int     `json:"total_runs"`
	TotalDataVolumeTB        float64 `json:"total_data_volume_tb"`
	UniqueFacilities         int     `json:"unique_facilities"`
	QCFailCount              int     `json:"qc_fail_count"`
	UniqueProtocols          int     `json:"unique_protocols"`
	TotalDatasetValue        float64 `json:"total_dataset_value"`
	TotalTransactionValue    float64 `json:"total_transaction_value"`
	CompletedRuns            int     `json:"completed_runs"`
	UniqueReagentKits        int     `json:"unique_reagent_kits"`
	NormalizationSuccessRate float64 `json:"normalization_success_rate"`
	AvgQCScoreLift           float64 `json:"avg_qc_score_lift"`
}

// KitReliability ranks a reagent kit by QC pass rate.
type KitReliability struct {
	Kit   string `json:"kit"`
	Score int    `json:"score"` // rounded pass rate, percent
	Runs  int    `json:"runs"`
}

// ScoreBucket is one bar of the QC score distribution.
type ScoreBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type OperationsReport struct {
	PassedRuns        int           `json:"passed_runs"`
	FailedRuns        int           `json:"failed_runs"`
	AvgTurnaroundDays float64       `json:"avg_turnaround_days"`
	TotalDataVolumeGB float64       `json:"total_data_volume_gb"`
	AvgQCScore        float64       `json:"avg_qc_score"`
	RunsByFacility    []KeyCount    `json:"runs_by_facility"`
	Fulfillment       []KeyCount    `json:"fulfillment"`
	QCDistribution    []ScoreBucket `json:"qc_distribution"`
}

type GovernanceReport struct {
	AuditComplete       int        `json:"audit_complete"`
	Validated           int        `json:"validated"`
	InReview            int        `json:"in_review"`
	AvgDataCompleteness float64    `json:"avg_data_completeness"`
	ValidationStatuses  []KeyCount `json:"validation_statuses"`
	FieldSources        []KeyCount `json:"field_sources"`
}

type LicensingReport struct {
	Ready              int         `json:"ready"`
	LicensingStatuses  []KeyCount  `json:"licensing_statuses"`
	ValueByDatasetType []KeyAmount `json:"value_by_dataset_type"`
}

// CompanyStats summarizes the Angel5000 universe.
type CompanyStats struct {
	TotalCompanies    int        `json:"total_companies"`
	MegaWinners       int        `json:"mega_winners"`
	PotentialUnicorns int        `json:"potential_unicorns"`
	NonUnicorns       int        `json:"non_unicorns"`
	SectorBreakdown   []KeyCount `json:"sector_breakdown"`
	StateBreakdown    []KeyCount `json:"state_breakdown"`
	AverageAge        int        `json:"average_age"`
}
