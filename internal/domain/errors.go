package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("domain: not found")
	ErrConflict     = errors.New("domain: conflict")
	ErrUnauthorized = errors.New("domain: unauthorized")
	ErrForbidden    = errors.New("domain: forbidden")

	// ErrAlreadyResolved is returned when a resolution is attempted on an
	// escalation that is no longer pending.
	ErrAlreadyResolved = errors.New("domain: escalation already resolved")

	// ErrValidationRejected marks input blocked by the guardrails.
	ErrValidationRejected = errors.New("domain: validation rejected")

	// ErrUpstreamUnavailable marks a failed call to an external generation capability.
	ErrUpstreamUnavailable = errors.New("domain: upstream unavailable")

	// ErrPersistenceDegraded marks a best-effort write that did not land.
	ErrPersistenceDegraded = errors.New("domain: persistence degraded")
)
