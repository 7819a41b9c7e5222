package domain

import "errors"

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound  = errors.New("booking not found")
	ErrAlreadyBooked    = errors.New("member already has an active booking for this session")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrAlreadyPaid      = errors.New("booking is already paid")
	ErrMemberBlocked    = errors.New("member is blocked from booking")

	// Session errors
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotBookable = errors.New("session is not open for booking")
	ErrSessionFull        = errors.New("session is at full capacity")
	ErrSessionBusy        = errors.New("session is being modified, retry shortly")

	// Member errors
	ErrMemberNotFound = errors.New("member not found")

	// Waitlist errors
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrNotOnWaitlist         = errors.New("booking is not a waitlist entry")
	ErrStillOnWaitlist       = errors.New("booking is still on the waitlist")

	// Payment errors
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrPaymentAmountMismatch   = errors.New("payment amount does not match booking price")

	// Validation errors
	ErrInvalidMemberID  = errors.New("invalid member id")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidBookingID = errors.New("invalid booking id")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrWaitlistEntryNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidMemberID) ||
		errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrPaymentAmountMismatch)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrSessionFull) ||
		errors.Is(err, ErrSessionBusy) ||
		errors.Is(err, ErrNotOnWaitlist) ||
		errors.Is(err, ErrStillOnWaitlist) ||
		errors.Is(err, ErrMemberBlocked)
}

// IsRetryableError checks if the caller may safely retry the request
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrSessionBusy)
}
