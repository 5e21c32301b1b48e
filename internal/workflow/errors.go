package workflow

import (
	"errors"
	"fmt"
)

// Error taxonomy for the workflow core. Handlers map these onto transport
// codes; nothing below this layer retries validation or guard failures.
var (
	// ErrNotFound: the referenced opportunity, state row, or prior event
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: the actor does not own the donor/opportunity pair
	// being mutated.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation: malformed numeric/date input. Returned with enough
	// detail for the caller to correct it; never retried.
	ErrValidation = errors.New("validation error")

	// ErrGuardViolation: a transition was attempted without its required
	// precondition.
	ErrGuardViolation = errors.New("guard violation")

	// ErrConflict: a uniqueness constraint on a generated identifier kept
	// colliding past the retry bound.
	ErrConflict = errors.New("conflict")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func guardf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGuardViolation, fmt.Sprintf(format, args...))
}
