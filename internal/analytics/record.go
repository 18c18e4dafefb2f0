// Package analytics derives summaries, breakdowns, rankings and filtered
// subsets from an in-memory record sequence.
//
// Every function is pure: inputs are never mutated and results are freshly
// allocated. Records are addressed by field name through the Record interface,
// which keeps query parameters coming from HTTP or the CLI on the same path
// as typed Go callers.
package analytics

import (
	"errors"
	"fmt"
	"strconv"
)

// Record is a flat row addressable by field name.
type Record interface {
	RecordID() string
	// Field returns the value stored under name. Values are string, bool,
	// int, int64 or float64.
	Field(name string) (any, bool)
}

// Searchable records declare which fields the free-text search looks at.
type Searchable interface {
	SearchFields() []string
}

// ErrEmptyInput is returned by ratio aggregations over zero records.
var ErrEmptyInput = errors.New("aggregation over empty input")

type FieldErrorKind int

const (
	FieldMissing FieldErrorKind = iota + 1
	FieldNotNumeric
)

// FieldError reports a record that does not match the expected shape.
type FieldError struct {
	Field    string
	RecordID string
	Kind     FieldErrorKind
	Value    any
}

func (e *FieldError) Error() string {
	switch e.Kind {
	case FieldMissing:
		return fmt.Sprintf("record %q: field %q does not exist", e.RecordID, e.Field)
	case FieldNotNumeric:
		return fmt.Sprintf("record %q: field %q is not numeric (got %T)", e.RecordID, e.Field, e.Value)
	default:
		return fmt.Sprintf("record %q: field %q invalid", e.RecordID, e.Field)
	}
}

func lookup[R Record](r R, field string) (any, error) {
	v, ok := r.Field(field)
	if !ok {
		return nil, &FieldError{Field: field, RecordID: r.RecordID(), Kind: FieldMissing}
	}
	return v, nil
}

func numeric[R Record](r R, field string) (float64, error) {
	v, err := lookup(r, field)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, &FieldError{Field: field, RecordID: r.RecordID(), Kind: FieldNotNumeric, Value: v}
	}
}

func text[R Record](r R, field string) (string, error) {
	v, err := lookup(r, field)
	if err != nil {
		return "", err
	}
	return FormatValue(v), nil
}

// FormatValue renders a field value the way criteria and group keys compare it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
