package core

import "time"

// Field accessors address records by their store column names so that
// filters, group-bys and store queries share one vocabulary.

var runFields = map[string]func(Run) any{
	"id":                    func(r Run) any { return r.ID },
	"facility_name":         func(r Run) any { return r.FacilityName },
	"instrument_type":       func(r Run) any { return r.InstrumentType },
	"instrument_model":      func(r Run) any { return r.InstrumentModel },
	"run_id":                func(r Run) any { return r.RunID },
	"operator_id":           func(r Run) any { return r.OperatorID },
	"protocol_name":         func(r Run) any { return r.ProtocolName },
	"protocol_version":      func(r Run) any { return r.ProtocolVersion },
	"reagent_kit":           func(r Run) any { return r.ReagentKit },
	"sample_type":           func(r Run) any { return r.SampleType },
	"sample_id":             func(r Run) any { return r.SampleID },
	"qc_status":             func(r Run) any { return r.QCStatus },
	"qc_score_prenorm":      func(r Run) any { return r.QCScorePrenorm },
	"qc_score_postnorm":     func(r Run) any { return r.QCScorePostnorm },
	"turnaround_time_days":  func(r Run) any { return r.TurnaroundTimeDays },
	"data_volume_gb":        func(r Run) any { return r.DataVolumeGB },
	"data_completeness_pct": func(r Run) any { return r.DataCompletenessPct },
	"audit_trail_complete":  func(r Run) any { return r.AuditTrailComplete },
	"field_source":          func(r Run) any { return r.FieldSource },
	"timestamp_captured":    func(r Run) any { return r.TimestampCaptured.UTC().Format(time.RFC3339) },
	"version":               func(r Run) any { return r.Version },
	"validation_status":     func(r Run) any { return r.ValidationStatus },
	"dataset_type":          func(r Run) any { return r.DatasetType },
	"licensing_status":      func(r Run) any { return r.LicensingStatus },
	"value_dollars":         func(r Run) any { return r.ValueDollars },
	"read_1_length":         func(r Run) any { return r.Read1Length },
	"read_2_length":         func(r Run) any { return r.Read2Length },
	"indices_1_length":      func(r Run) any { return r.Indices1Length },
	"indices_2_length":      func(r Run) any { return r.Indices2Length },
	"phix_pct":              func(r Run) any { return r.PhixPct },
	"order_date":            func(r Run) any { return r.OrderDate.String() },
	"total_amount":          func(r Run) any { return r.TotalAmount },
	"fulfillment_status":    func(r Run) any { return r.FulfillmentStatus },
	"primary_data_size_gb":  func(r Run) any { return r.PrimaryDataSizeGB },
	"primary_data_hash":     func(r Run) any { return r.PrimaryDataHash },
	"primary_data_link":     func(r Run) any { return r.PrimaryDataLink },
	"normalization_status":  func(r Run) any { return r.NormalizationStatus },
}

// derived run fields are addressable but not stored
var runDerived = map[string]func(Run) any{
	"qc_score_lift": func(r Run) any { return r.QCScoreLift() },
	"protocol":      func(r Run) any { return r.Protocol() },
}

var companyFields = map[string]func(Company) any{
	"id":                func(c Company) any { return c.ID },
	"company_id":        func(c Company) any { return c.CompanyID },
	"company_name":      func(c Company) any { return c.CompanyName },
	"ein":               func(c Company) any { return c.EIN },
	"founder_name":      func(c Company) any { return c.FounderName },
	"sector":            func(c Company) any { return c.Sector },
	"state":             func(c Company) any { return c.State },
	"date_founded":      func(c Company) any { return c.DateFounded.String() },
	"website":           func(c Company) any { return c.Website },
	"description":       func(c Company) any { return c.Description },
	"category":          func(c Company) any { return c.Category.String() },
	"lifecycle_status":  func(c Company) any { return c.LifecycleStatus },
	"index_year":        func(c Company) any { return c.IndexYear },
	"verified_company":  func(c Company) any { return c.VerifiedCompany },
	"verified_founder":  func(c Company) any { return c.VerifiedFounder },
	"eligible_universe": func(c Company) any { return c.EligibleUniverse },
	"data_completeness": func(c Company) any { return c.DataCompleteness },
}

// RunColumns lists the stored run columns in table order.
var RunColumns = []string{
	"id", "facility_name", "instrument_type", "instrument_model", "run_id", "operator_id",
	"protocol_name", "protocol_version", "reagent_kit", "sample_type", "sample_id",
	"qc_status", "qc_score_prenorm", "qc_score_postnorm", "turnaround_time_days",
	"data_volume_gb", "data_completeness_pct", "audit_trail_complete", "field_source",
	"timestamp_captured", "version", "validation_status", "dataset_type", "licensing_status",
	"value_dollars", "read_1_length", "read_2_length", "indices_1_length", "indices_2_length",
	"phix_pct", "order_date", "total_amount", "fulfillment_status", "primary_data_size_gb",
	"primary_data_hash", "primary_data_link", "normalization_status",
}

// CompanyColumns lists the writable company columns; id and timestamps are store-assigned.
var CompanyColumns = []string{
	"company_id", "company_name", "ein", "founder_name", "sector", "state", "date_founded",
	"website", "description", "category", "lifecycle_status", "index_year",
	"verified_company", "verified_founder", "eligible_universe", "data_completeness",
}

func (r Run) RecordID() string { return r.ID }

// Field returns the value of a stored or derived run field.
func (r Run) Field(name string) (any, bool) {
	if fn, ok := runFields[name]; ok {
		return fn(r), true
	}
	if fn, ok := runDerived[name]; ok {
		return fn(r), true
	}
	return nil, false
}

func (Run) SearchFields() []string {
	return []string{"facility_name", "instrument_type", "instrument_model", "run_id", "protocol_name", "reagent_kit", "sample_id"}
}

func (c Company) RecordID() string { return c.CompanyID }

func (c Company) Field(name string) (any, bool) {
	fn, ok := companyFields[name]
	if !ok {
		return nil, false
	}
	return fn(c), true
}

func (Company) SearchFields() []string {
	return []string{"company_name", "founder_name", "sector"}
}

// IsRunColumn reports whether name is a stored run column usable in store queries.
func IsRunColumn(name string) bool {
	_, ok := runFields[name]
	return ok
}

// IsCompanyColumn reports whether name is a stored company column.
func IsCompanyColumn(name string) bool {
	_, ok := companyFields[name]
	return ok
}
