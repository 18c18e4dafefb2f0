package http

import (
	"errors"
	"net/http"
	"strings"

	"gravl/internal/analytics"
	"gravl/internal/log"
	"gravl/internal/records"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// writeError maps an error from parsing, the analytics layer or the store
// onto a response. Only store failures are logged as errors.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		paramErr *ParamError
		fieldErr *analytics.FieldError
	)
	switch {
	case errors.As(err, &paramErr):
		FieldRequestError(paramErr.Param, paramErr.Error()).Write(w)
	case errors.As(err, &fieldErr):
		FieldRequestError(fieldErr.Field, fieldErr.Error()).Write(w)
	case errors.Is(err, records.ErrUnknownField), errors.Is(err, analytics.ErrNotSearchable):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, analytics.ErrEmptyInput):
		EmptyResponse(nil).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldPath, r.URL.Path)
		InternalServerError("failed to load records").Write(w)
	}
}
