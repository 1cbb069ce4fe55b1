// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure: the QuickBooks SyncToken sent
	// with an update is stale. Remediation is a re-sync, then a retry.
	ErrVersionConflict = errors.New("stale data, re-sync required")

	// ErrUnauthorized indicates failed authentication (missing/invalid session or remote token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller without the admin role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotConnected indicates there is no connection with status connected.
	ErrNotConnected = errors.New("quickbooks not connected")

	// ErrReconnectRequired indicates the refresh token was rejected; the user must reconnect.
	ErrReconnectRequired = errors.New("quickbooks reconnect required")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request that fails validation before any work is done.
	ErrInvalidInput = errors.New("validation")
)
