package records

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gravl/internal/core"
)

// WithRunIDs returns a copy of runs where every run without an id gets a
// fresh UUID. Existing ids are kept.
func WithRunIDs(runs []core.Run) []core.Run {
	out := make([]core.Run, len(runs))
	copy(out, runs)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
	}
	return out
}

// ErrDuplicateID reports a run id that is already stored or repeats inside
// a batch. Run ids are never reused.
var ErrDuplicateID = errors.New("duplicate run id")

// CheckRunIDs rejects the first run whose id is taken or appeared earlier in
// runs. Runs without an id are skipped; they get a fresh one on insert.
func CheckRunIDs(runs []core.Run, taken func(id string) bool) error {
	seen := make(map[string]int, len(runs))
	for i, r := range runs {
		if r.ID == "" {
			continue
		}
		if first, ok := seen[r.ID]; ok {
			return &RowError{Table: TableRuns, Row: i, Err: fmt.Errorf("%w %q (also row %d)", ErrDuplicateID, r.ID, first)}
		}
		if taken != nil && taken(r.ID) {
			return &RowError{Table: TableRuns, Row: i, Err: fmt.Errorf("%w %q", ErrDuplicateID, r.ID)}
		}
		seen[r.ID] = i
	}
	return nil
}

// ValidateRuns checks every run and reports the first failure with its position.
func ValidateRuns(runs []core.Run) error {
	for i, r := range runs {
		if err := r.Validate(); err != nil {
			return &RowError{Table: TableRuns, Row: i, Err: err}
		}
	}
	return nil
}

func ValidateCompanies(companies []core.Company) error {
	for i, c := range companies {
		if err := c.Validate(); err != nil {
			return &RowError{Table: TableCompanies, Row: i, Err: err}
		}
	}
	return nil
}
