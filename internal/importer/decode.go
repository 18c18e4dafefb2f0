package importer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gravl/internal/core"
)

// Format is the encoding of an import file.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat accepts "json" or "csv". An empty value infers the format
// from the file extension of path.
func ParseFormat(value, path string) (Format, error) {
	if value == "" {
		value = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch Format(strings.ToLower(value)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported import format %q: must be json or csv", value)
	}
}

// ParseError locates a value that could not be decoded.
type ParseError struct {
	Line   int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d, column %s: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errUnknownColumn = errors.New("unknown column")

// DecodeRuns reads runs from a JSON array or a CSV sheet whose header row
// names the store columns.
func DecodeRuns(r io.Reader, format Format) ([]core.Run, error) {
	return decode[core.Run](r, format)
}

// DecodeCompanies reads companies from a JSON array or the Angel5000 seed
// sheet. Header names are matched case-insensitively, so the sheet's "EIN"
// column maps to ein.
func DecodeCompanies(r io.Reader, format Format) ([]core.Company, error) {
	return decode[core.Company](r, format)
}

func decode[T any](r io.Reader, format Format) ([]T, error) {
	switch format {
	case FormatJSON:
		var out []T
		dec := json.NewDecoder(r)
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return out, nil
	case FormatCSV:
		return decodeCSV[T](r)
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
}

// decodeCSV turns each row into a JSON object typed by the destination
// struct's fields and lets the struct's own JSON decoding finish the job.
func decodeCSV[T any](r io.Reader) ([]T, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []T{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	table, err := newTableDecoder[T](header)
	if err != nil {
		return nil, err
	}

	out := []T{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		rec, err := table.decode(line, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// DecodeSheetRuns reads runs from spreadsheet rows, header row first.
func DecodeSheetRuns(rows [][]string) ([]core.Run, error) {
	return decodeRows[core.Run](rows)
}

// DecodeSheetCompanies reads companies from spreadsheet rows, header row first.
func DecodeSheetCompanies(rows [][]string) ([]core.Company, error) {
	return decodeRows[core.Company](rows)
}

// decodeRows decodes rows already split into cells. Line numbers in errors
// are 1-based sheet rows.
func decodeRows[T any](rows [][]string) ([]T, error) {
	if len(rows) == 0 {
		return []T{}, nil
	}
	table, err := newTableDecoder[T](rows[0])
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := table.decode(i+2, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type tableDecoder[T any] struct {
	kinds   map[string]columnKind
	columns []string
}

func newTableDecoder[T any](header []string) (*tableDecoder[T], error) {
	kinds := columnKinds(reflect.TypeOf((*T)(nil)).Elem())
	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := kinds[name]; !ok {
			return nil, &ParseError{Line: 1, Column: h, Err: errUnknownColumn}
		}
		columns[i] = name
	}
	return &tableDecoder[T]{kinds: kinds, columns: columns}, nil
}

// decode converts one row. Rows shorter than the header leave the missing
// columns at their zero value.
func (d *tableDecoder[T]) decode(line int, row []string) (T, error) {
	var rec T
	obj := make(map[string]any, len(d.columns))
	for i, col := range d.columns {
		if i >= len(row) {
			break
		}
		v, ok, err := convert(d.kinds[col], strings.TrimSpace(row[i]))
		if err != nil {
			return rec, &ParseError{Line: line, Column: col, Err: err}
		}
		if ok {
			obj[col] = v
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return rec, &ParseError{Line: line, Err: err}
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, &ParseError{Line: line, Err: err}
	}
	return rec, nil
}

var (
	timeType = reflect.TypeOf(time.Time{})
	dateType = reflect.TypeOf(core.Date{})
)

type columnKind int

const (
	kindString columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindTime
)

func columnKinds(t reflect.Type) map[string]columnKind {
	kinds := make(map[string]columnKind, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		switch {
		case f.Type == timeType, f.Type == dateType:
			kinds[name] = kindTime
		case f.Type.Kind() == reflect.Bool:
			kinds[name] = kindBool
		case f.Type.Kind() >= reflect.Int && f.Type.Kind() <= reflect.Int64:
			kinds[name] = kindInt
		case f.Type.Kind() == reflect.Float64 || f.Type.Kind() == reflect.Float32:
			kinds[name] = kindFloat
		default:
			kinds[name] = kindString
		}
	}
	return kinds
}

// convert maps a cell to its JSON value. Empty cells are left out so the
// field keeps its zero value.
func convert(kind columnKind, cell string) (any, bool, error) {
	if cell == "" {
		return nil, false, nil
	}
	switch kind {
	case kindBool:
		return strings.EqualFold(cell, "true"), true, nil
	case kindInt:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("not an integer: %q", cell)
		}
		return n, true, nil
	case kindFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, false, fmt.Errorf("not a number: %q", cell)
		}
		return f, true, nil
	default:
		return cell, true, nil
	}
}
