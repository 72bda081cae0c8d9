package service

import "errors"

// Operation errors returned by the shortcode service. Handlers match these
// with errors.Is to pick the response status; detail is carried by wrapping.
var (
	// ErrValidation means the input was malformed. Caller error, no retry.
	ErrValidation = errors.New("validation failed")

	// ErrCodeUnavailable means the requested custom code is reserved or
	// already in use. The caller may pick another code or let the service
	// generate one.
	ErrCodeUnavailable = errors.New("shortcode unavailable")

	// ErrConflict means a concurrent create won the unique insert.
	ErrConflict = errors.New("shortcode conflict")

	// ErrNotFound means the code never existed or was deactivated.
	ErrNotFound = errors.New("shortcode not found")

	// ErrExpired means the code existed but is past its validity window.
	// Distinct from ErrNotFound so callers learn the link is gone for good.
	ErrExpired = errors.New("shortcode has expired")

	// ErrStoreUnavailable wraps store connectivity failures so the boundary
	// can map them to a retryable response. Never silently swallowed.
	ErrStoreUnavailable = errors.New("store unavailable")
)
