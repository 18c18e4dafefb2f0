// Package sheets reads tabular ranges out of spreadsheets so they can be
// imported like a CSV file.
package sheets

import (
	"context"
	"errors"
)

// ErrRangeNotFound is returned when the requested range holds no sheet.
var ErrRangeNotFound = errors.New("range not found")

type (
	// RangeReader returns the cell values of an A1 range, one slice per row.
	// The first row is expected to be the header. Trailing empty cells may be
	// omitted, so rows can be shorter than the header.
	RangeReader interface {
		ReadRange(ctx context.Context, rng string) ([][]string, error)
	}
)
