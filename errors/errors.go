package errors

import "fmt"

var (
	// Caller faults: rejected before any store access, never logged as faults.
	ErrValidation = fmt.Errorf("invalid payload")

	// Authorization facts were evaluated and the grant is None.
	// User-visible, not a fault.
	ErrAccessDenied = fmt.Errorf("access denied")

	ErrNotFound = fmt.Errorf("not found")

	// Collaborator faults. Surfaced to the caller as a generic failure,
	// never retried by the gateway itself.
	ErrStore   = fmt.Errorf("store unavailable")
	ErrPersist = fmt.Errorf("message persistence failed")

	// Handshake-time credential failure. The connection is refused before
	// registration.
	ErrAuth = fmt.Errorf("authentication failed")

	ErrUserAlreadyExists = fmt.Errorf("user already exists")
	ErrInvalidPassword   = fmt.Errorf("password does not meet complexity requirements")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)
