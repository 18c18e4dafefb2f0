// Package records defines the record store accessor ports and the helpers
// shared by their adapters.
package records

import (
	"context"
	"errors"
	"fmt"

	"gravl/internal/core"
)

const (
	TableRuns      = "runs"
	TableCompanies = "angel5000_companies"
)

var ErrUnknownField = errors.New("unknown field")

// Ports for outbound adapters. Each table supports select-all, select-where
// (single field equality) and batch insert.
type (
	RunReader interface {
		ListRuns(ctx context.Context) ([]core.Run, error)
		// ListRunsWhere returns the runs whose stored column equals value.
		ListRunsWhere(ctx context.Context, field, value string) ([]core.Run, error)
	}

	RunWriter interface {
		InsertRuns(ctx context.Context, runs []core.Run) error
	}

	CompanyReader interface {
		ListCompanies(ctx context.Context) ([]core.Company, error)
		ListCompaniesWhere(ctx context.Context, field, value string) ([]core.Company, error)
	}

	// CompanyWriter upserts on company_id.
	CompanyWriter interface {
		UpsertCompanies(ctx context.Context, companies []core.Company) error
	}

	Store interface {
		RunReader
		RunWriter
		CompanyReader
		CompanyWriter
	}
)

// RowError locates an invalid record inside a batch.
type RowError struct {
	Table string
	Row   int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// CheckRunField rejects anything that is not a stored run column. Adapters
// call it before a field name reaches a query.
func CheckRunField(field string) error {
	if !core.IsRunColumn(field) {
		return fmt.Errorf("%s.%s: %w", TableRuns, field, ErrUnknownField)
	}
	return nil
}

func CheckCompanyField(field string) error {
	if !core.IsCompanyColumn(field) {
		return fmt.Errorf("%s.%s: %w", TableCompanies, field, ErrUnknownField)
	}
	return nil
}
