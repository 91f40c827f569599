package expense

import (
	"net/http"

	"github.com/ammonsd/activitytracking-core/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("EXPENSE")

var (
	CodeInvalidTransition = ErrRegistry.Register("INVALID_TRANSITION", errx.TypeConflict, http.StatusConflict, "transition not legal in current state")
	CodeForbidden         = ErrRegistry.Register("FORBIDDEN", errx.TypeForbidden, http.StatusForbidden, "permission denied")
	CodeNotFound          = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "expense not found")
	CodeInvalidInput      = ErrRegistry.Register("INVALID_INPUT", errx.TypeValidation, http.StatusBadRequest, "invalid expense input")
)

// ErrInvalidTransition is returned for any event not legal against the
// expense's current state; the record is left unchanged.
func ErrInvalidTransition() *errx.Error {
	return ErrRegistry.New(CodeInvalidTransition)
}

func ErrForbidden() *errx.Error {
	return ErrRegistry.New(CodeForbidden)
}

// ErrNotFound is also used where a stricter FORBIDDEN would leak the
// existence of another user's record; the service, not this package,
// decides which to return.
func ErrNotFound() *errx.Error {
	return ErrRegistry.New(CodeNotFound)
}

func ErrInvalidInput(message string) *errx.Error {
	return ErrRegistry.NewWithMessage(CodeInvalidInput, message)
}
