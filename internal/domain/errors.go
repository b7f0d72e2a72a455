package domain

import "errors"

var (
	ErrValidation      = errors.New("validation error")
	ErrInvalidPosition = errors.New("invalid position")
	ErrIllegalMove     = errors.New("illegal move")
	ErrNotFound        = errors.New("game not found")
	ErrConflict        = errors.New("game was modified concurrently")
	ErrUnavailable     = errors.New("collaborator unavailable")
)

// Kind names an error class of the session taxonomy.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindInvalidPosition Kind = "invalid_position"
	KindIllegalMove     Kind = "illegal_move"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnavailable     Kind = "collaborator_unavailable"
	KindInternal        Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidPosition):
		return KindInvalidPosition
	case errors.Is(err, ErrIllegalMove):
		return KindIllegalMove
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}
