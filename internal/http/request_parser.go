// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for turning query strings into analytics
// criteria and bounded numeric parameters.

package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gravl/internal/analytics"
)

// Query parameters with a fixed meaning. They never become criteria.
const (
	paramLimit = "limit"
	paramField = "field"
	paramSum   = "sum"
	paramScore = "score"
	paramN     = "n"

	maxLimit = 5000
	maxTopN  = 100
)

var reservedParams = map[string]bool{
	paramLimit: true,
	paramField: true,
	paramSum:   true,
	paramScore: true,
	paramN:     true,
}

// ParamError reports a query parameter the handler cannot use.
type ParamError struct {
	Param  string
	Value  string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("parameter %q %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("parameter %q=%q %s", e.Param, e.Value, e.Reason)
}

// ParseCriteria builds filter criteria from every non-reserved query
// parameter. A parameter given twice is ambiguous and rejected; "all" and
// blank values are kept and simply do not constrain anything.
func ParseCriteria(query url.Values) (analytics.Criteria, error) {
	m := make(map[string]string, len(query))
	for key, values := range query {
		key = strings.TrimSpace(key)
		if reservedParams[key] {
			continue
		}
		if len(values) > 1 {
			return nil, &ParamError{Param: key, Reason: "given more than once"}
		}
		v := ""
		if len(values) == 1 {
			v = strings.TrimSpace(sanitizeInput(values[0]))
		}
		m[key] = v
	}
	return analytics.FromMap(m), nil
}

// ParseBoundedInt reads a positive integer parameter, falling back to def
// when it is absent.
func ParseBoundedInt(query url.Values, key string, def, max int) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParamError{Param: key, Value: raw, Reason: "is not an integer"}
	}
	if n < 0 || n > max {
		return 0, &ParamError{Param: key, Value: raw, Reason: fmt.Sprintf("must be between 0 and %d", max)}
	}
	return n, nil
}

// RequireParam returns a non-empty parameter or a ParamError.
func RequireParam(query url.Values, key string) (string, error) {
	v := strings.TrimSpace(sanitizeInput(query.Get(key)))
	if v == "" {
		return "", &ParamError{Param: key, Reason: "is required"}
	}
	return v, nil
}

// knownField reports whether records of type R expose field.
func knownField[R analytics.Record](field string) bool {
	var zero R
	_, ok := zero.Field(field)
	return ok
}
