package leads

import "errors"

var (
	// ErrLeadNotFound indicates the lead does not exist for the profile.
	ErrLeadNotFound = errors.New("leads: lead not found")
	// ErrMissingProfileID indicates the owning profile was not supplied.
	ErrMissingProfileID = errors.New("leads: profile id is required")
	// ErrMissingContact indicates neither phone nor email was supplied.
	ErrMissingContact = errors.New("leads: at least one of phone or email is required")
	// ErrInvalidStatus indicates a status outside the closed enum.
	ErrInvalidStatus = errors.New("leads: invalid status")
)
