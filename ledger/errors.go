/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All business-rule failures in one place. The API layer maps these to
  HTTP statuses; nothing here knows about HTTP.

ERROR CATEGORIES:
  1. Validation errors - malformed input (CPF, amount, timing)
  2. Not-found errors - missing customer or reward
  3. Balance errors - insufficient available points

USAGE:
  if errors.Is(err, ledger.ErrInsufficientPoints) { ... }

  var ipe *ledger.InsufficientPointsError
  if errors.As(err, &ipe) { ... ipe.Available ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidCPF is returned when a tax ID fails canonicalization or
	// its check digits.
	ErrInvalidCPF = errors.New("invalid CPF")

	// ErrInvalidAmount is returned when a purchase value is not strictly
	// positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidTiming is returned for a misconfigured Timing
	// (negative delay, non-positive validity, or release after expiry).
	ErrInvalidTiming = errors.New("invalid ledger timing")

	// ErrCustomerNotFound is returned when a CPF resolves to no customer.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrRewardNotFound is returned when a reward is absent or inactive.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrInsufficientPoints is returned when available balance cannot
	// cover a reward's cost. The transaction rolls back; nothing is
	// consumed.
	ErrInsufficientPoints = errors.New("insufficient available points")

	// ErrAlreadyRegistered is returned when a named customer attempts to
	// register again.
	ErrAlreadyRegistered = errors.New("customer already registered")

	// ErrConsentRequired is returned when self-registration omits the
	// consent flag.
	ErrConsentRequired = errors.New("consent is required")

	// ErrNameRequired is returned when self-registration omits the
	// display name.
	ErrNameRequired = errors.New("name is required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError details a balance shortfall.
type InsufficientPointsError struct {
	CustomerID string
	Available  int64
	Requested  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient available points: have %d, need %d", e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid client input
// or a business rule the caller can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCPF) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrConsentRequired) ||
		errors.Is(err, ErrNameRequired)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrRewardNotFound)
}

// IsConflict reports whether the error indicates a duplicate-state
// conflict (HTTP 409 territory).
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRegistered)
}
