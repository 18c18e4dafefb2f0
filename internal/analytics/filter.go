package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// All is the criterion value meaning "no constraint on this field".
	All = "all"
	// SearchField is the reserved criterion field for free-text search.
	SearchField = "search"
)

var ErrNotSearchable = errors.New("record type has no searchable fields")

// Criterion constrains one field to equal Value. Values are compared with
// the field formatted by FormatValue, so booleans match "true"/"false".
type Criterion struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Criteria is a conjunction of criteria.
type Criteria []Criterion

func Where(field, value string) Criteria {
	return Criteria{{Field: field, Value: value}}
}

func Search(query string) Criteria {
	return Where(SearchField, query)
}

// FromMap builds criteria from field/value pairs in field-name order.
func FromMap(m map[string]string) Criteria {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	c := make(Criteria, 0, len(fields))
	for _, f := range fields {
		c = append(c, Criterion{Field: f, Value: m[f]})
	}
	return c
}

// And returns the conjunction of c and other without modifying either.
func (c Criteria) And(other Criteria) Criteria {
	out := make(Criteria, 0, len(c)+len(other))
	out = append(out, c...)
	return append(out, other...)
}

// Active drops criteria that do not constrain anything.
func (c Criteria) Active() Criteria {
	out := Criteria{}
	for _, cr := range c {
		if cr.unconstrained() {
			continue
		}
		out = append(out, cr)
	}
	return out
}

// Validate checks every constrained field with known. The search field
// is always accepted.
func (c Criteria) Validate(known func(field string) bool) error {
	for _, cr := range c.Active() {
		if cr.Field == SearchField {
			continue
		}
		if !known(cr.Field) {
			return &FieldError{Field: cr.Field, Kind: FieldMissing}
		}
	}
	return nil
}

func (c Criteria) String() string {
	parts := make([]string, 0, len(c))
	for _, cr := range c {
		parts = append(parts, fmt.Sprintf("%s=%s", cr.Field, cr.Value))
	}
	return strings.Join(parts, "&")
}

func (cr Criterion) unconstrained() bool {
	v := strings.TrimSpace(cr.Value)
	if cr.Field == SearchField {
		return v == ""
	}
	return v == "" || v == All
}

// Filter returns the records satisfying every criterion, in input order.
// The input slice is left untouched.
func Filter[R Record](records []R, criteria Criteria) ([]R, error) {
	active := criteria.Active()
	out := make([]R, 0, len(records))
	for _, r := range records {
		ok, err := matches(r, active)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func matches[R Record](r R, criteria Criteria) (bool, error) {
	for _, cr := range criteria {
		if cr.Field == SearchField {
			hit, err := searchMatch(r, cr.Value)
			if err != nil || !hit {
				return false, err
			}
			continue
		}
		v, err := text(r, cr.Field)
		if err != nil {
			return false, err
		}
		if v != cr.Value {
			return false, nil
		}
	}
	return true, nil
}

func searchMatch[R Record](r R, query string) (bool, error) {
	s, ok := any(r).(Searchable)
	if !ok {
		return false, ErrNotSearchable
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	for _, f := range s.SearchFields() {
		v, err := text(r, f)
		if err != nil {
			return false, err
		}
		if strings.Contains(strings.ToLower(v), needle) {
			return true, nil
		}
	}
	return false, nil
}
