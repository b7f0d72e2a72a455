// Package chesspresenter converts session values and errors into the
// chessdto wire shapes served over HTTP.
package chesspresenter

import (
	"errors"
	"net/http"

	"github.com/park285/chess-session-api/internal/domain"
	"github.com/park285/chess-session-api/pkg/chessdto"
)

// ToDomainError maps err to its status code and wire body.
// Internal errors keep their detail out of the body.
func ToDomainError(err error) (int, chessdto.DomainError) {
	kind := domain.KindOf(err)
	body := chessdto.DomainError{Code: string(kind), Message: err.Error()}
	switch kind {
	case domain.KindValidation, domain.KindInvalidPosition, domain.KindIllegalMove:
		return http.StatusBadRequest, body
	case domain.KindNotFound:
		return http.StatusNotFound, body
	case domain.KindConflict:
		body.Retryable = true
		return http.StatusConflict, body
	case domain.KindUnavailable:
		body.Retryable = true
		body.Message = domain.ErrUnavailable.Error()
		return http.StatusServiceUnavailable, body
	}
	var dtoErr chessdto.DomainError
	if errors.As(err, &dtoErr) {
		return http.StatusInternalServerError, dtoErr
	}
	body.Code = string(domain.KindInternal)
	body.Message = "internal server error"
	return http.StatusInternalServerError, body
}
