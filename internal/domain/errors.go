// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or concurrent modification conflict
// that persisted after local retry.
var ErrConflict = errors.New("conflict: resource already exists or was modified by another request")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrStateViolation indicates a mutation was attempted against an entity in
// a state that forbids it (terminal review task, illegal issue transition).
// Callers must never retry; it signals a logic error on their side.
var ErrStateViolation = errors.New("state violation")

// ErrUnavailable indicates the storage or transport layer could not be
// reached after bounded retries.
var ErrUnavailable = errors.New("storage unavailable")

// ErrForbidden indicates the acting user is not a member of the project
// that owns the target entity.
var ErrForbidden = errors.New("forbidden: user is not a project member")
