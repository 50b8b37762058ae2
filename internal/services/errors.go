package services

import (
	"errors"
)

// Error kinds surfaced by the chat core. Callers match them with errors.Is;
// the concrete error usually wraps one of these with context.
var (
	// ErrNotFound: conversation or property missing.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: caller is neither a participant nor staff.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation: empty or oversized text, malformed identifiers.
	ErrValidation = errors.New("validation error")
	// ErrConflict: concurrent enquiry creation lost the uniqueness race. Recovered inside
	// CreateOrAppend and never returned from it.
	ErrConflict = errors.New("conflict")
	// ErrTransport: a realtime publish failed. Logged, never returned from a write.
	ErrTransport = errors.New("transport error")
)

