// internal/circulation/policy.go
package circulation

import (
	"time"

	"libracatalog/internal/apperr"
	"libracatalog/internal/clock"
)

const (
	// RenewalWindowDays is how far ahead of today a renewal may reach.
	RenewalWindowDays = 28
	// DefaultRenewalDays is the suggested renewal period.
	DefaultRenewalDays = 21

	fieldRenewalDate = "renewal_date"

	MsgRenewalInPast    = "Invalid date - renewal in past"
	MsgRenewalTooFar    = "Invalid date - renewal more than 4 weeks ahead"
	msgRenewalRequired  = "This field is required."
	msgRenewalMalformed = "Enter a valid date."
)

// DefaultRenewalDate is the date offered on the renewal form.
func DefaultRenewalDate(today time.Time) time.Time {
	return clock.AddDays(today, DefaultRenewalDays)
}

// ValidateRenewalDate accepts dates from today up to and including
// today plus RenewalWindowDays.
func ValidateRenewalDate(requested, today time.Time) error {
	requested, today = clock.Date(requested), clock.Date(today)
	if requested.Before(today) {
		return apperr.NewValidationError(fieldRenewalDate, MsgRenewalInPast)
	}
	if requested.After(clock.AddDays(today, RenewalWindowDays)) {
		return apperr.NewValidationError(fieldRenewalDate, MsgRenewalTooFar)
	}
	return nil
}
