package core

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	QCPass = "Pass"
	QCFail = "Fail"

	FulfillmentCompleted = "COMPLETED"
	NormalizationMapped  = "Mapped"
	ValidationValidated  = "Validated"
	ValidationInReview   = "In Review"
	LicensingReady       = "Ready"
)

const dateLayout = "2006-01-02"

type (
	// Date is a calendar day serialized as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	// Run is one sequencing run as stored in the runs table.
	Run struct {
		ID                  string    `json:"id,omitempty"`
		FacilityName        string    `json:"facility_name"`
		InstrumentType      string    `json:"instrument_type"`
		InstrumentModel     string    `json:"instrument_model"`
		RunID               string    `json:"run_id"`
		OperatorID          string    `json:"operator_id"`
		ProtocolName        string    `json:"protocol_name"`
		ProtocolVersion     string    `json:"protocol_version"`
		ReagentKit          string    `json:"reagent_kit"`
		SampleType          string    `json:"sample_type"`
		SampleID            string    `json:"sample_id"`
		QCStatus            string    `json:"qc_status"`
		QCScorePrenorm      float64   `json:"qc_score_prenorm"`
		QCScorePostnorm     float64   `json:"qc_score_postnorm"`
		TurnaroundTimeDays  float64   `json:"turnaround_time_days"`
		DataVolumeGB        float64   `json:"data_volume_gb"`
		DataCompletenessPct float64   `json:"data_completeness_pct"`
		AuditTrailComplete  bool      `json:"audit_trail_complete"`
		FieldSource         string    `json:"field_source"`
		TimestampCaptured   time.Time `json:"timestamp_captured"`
		Version             string    `json:"version"`
		ValidationStatus    string    `json:"validation_status"`
		DatasetType         string    `json:"dataset_type"`
		LicensingStatus     string    `json:"licensing_status"`
		ValueDollars        float64   `json:"value_dollars"`
		Read1Length         int       `json:"read_1_length"`
		Read2Length         int       `json:"read_2_length"`
		Indices1Length      int       `json:"indices_1_length"`
		Indices2Length      int       `json:"indices_2_length"`
		PhixPct             float64   `json:"phix_pct"`
		OrderDate           Date      `json:"order_date"`
		TotalAmount         float64   `json:"total_amount"`
		FulfillmentStatus   string    `json:"fulfillment_status"`
		PrimaryDataSizeGB   float64   `json:"primary_data_size_gb"`
		PrimaryDataHash     string    `json:"primary_data_hash"`
		PrimaryDataLink     string    `json:"primary_data_link"`
		NormalizationStatus string    `json:"normalization_status"`
		CreatedAt           time.Time `json:"created_at,omitempty"`
	}

	// Company is one Angel5000 universe company.
	Company struct {
		ID               int64     `json:"id,omitempty"`
		CompanyID        string    `json:"company_id"`
		CompanyName      string    `json:"company_name"`
		EIN              string    `json:"ein"`
		FounderName      string    `json:"founder_name"`
		Sector           string    `json:"sector"`
		State            string    `json:"state"`
		DateFounded      Date      `json:"date_founded"`
		Website          string    `json:"website"`
		Description      string    `json:"description"`
		Category         Category  `json:"category"`
		LifecycleStatus  string    `json:"lifecycle_status,omitempty"`
		IndexYear        int       `json:"index_year,omitempty"`
		VerifiedCompany  bool      `json:"verified_company"`
		VerifiedFounder  bool      `json:"verified_founder"`
		EligibleUniverse bool      `json:"eligible_universe"`
		DataCompleteness string    `json:"data_completeness,omitempty"`
		CreatedAt        time.Time `json:"created_at,omitempty"`
		UpdatedAt        time.Time `json:"updated_at,omitempty"`
	}
)

var (
	ErrEmptyID           = errors.New("empty identifier")
	ErrInvalidQCStatus   = errors.New("invalid qc status")
	ErrPercentOutOfRange = errors.New("percentage out of range [0,100]")
	ErrNegativeAmount    = errors.New("negative monetary amount")
	ErrScoreRegression   = errors.New("post-normalization score below pre-normalization score")
	ErrEmptyCompanyName  = errors.New("empty company name")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	y, m, d := t.Date()
	return NewDate(y, int(m), d), nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer so dates bind as plain YYYY-MM-DD text.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return ErrEmptyID
	}
	if r.QCStatus != QCPass && r.QCStatus != QCFail {
		return fmt.Errorf("%w: %q", ErrInvalidQCStatus, r.QCStatus)
	}
	pcts := []struct {
		name string
		v    float64
	}{
		{"qc_score_prenorm", r.QCScorePrenorm},
		{"qc_score_postnorm", r.QCScorePostnorm},
		{"data_completeness_pct", r.DataCompletenessPct},
		{"phix_pct", r.PhixPct},
	}
	for _, p := range pcts {
		if p.v < 0 || p.v > 100 {
			return fmt.Errorf("%s=%v: %w", p.name, p.v, ErrPercentOutOfRange)
		}
	}
	if r.ValueDollars < 0 {
		return fmt.Errorf("value_dollars=%v: %w", r.ValueDollars, ErrNegativeAmount)
	}
	if r.TotalAmount < 0 {
		return fmt.Errorf("total_amount=%v: %w", r.TotalAmount, ErrNegativeAmount)
	}
	if r.QCScorePostnorm < r.QCScorePrenorm {
		return fmt.Errorf("run %s: %w", r.RunID, ErrScoreRegression)
	}
	return nil
}

// Passed reports whether the run passed QC.
func (r Run) Passed() bool { return r.QCStatus == QCPass }

// Protocol identifies a protocol revision, e.g. "WGS PCR-Free_v2.1".
func (r Run) Protocol() string { return r.ProtocolName + "_" + r.ProtocolVersion }

// QCScoreLift is the score gained by normalization.
func (r Run) QCScoreLift() float64 { return r.QCScorePostnorm - r.QCScorePrenorm }

func (c Company) Validate() error {
	if strings.TrimSpace(c.CompanyID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(c.CompanyName) == "" {
		return ErrEmptyCompanyName
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("company %s: %w", c.CompanyID, ErrUnknownCategory)
	}
	return nil
}

// AgeAt returns the company's age in whole calendar years at ref.
// Companies without a founding date report ok=false.
func (c Company) AgeAt(ref time.Time) (int, bool) {
	if c.DateFounded.IsZero() {
		return 0, false
	}
	return ref.Year() - c.DateFounded.Year(), true
}
