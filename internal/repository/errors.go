// Package repository defines error types that are reused across the account
// repositories. These sentinel values allow higher layers such as handlers
// and the authenticator to distinguish between failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when no (live) row matches a lookup. The
// authenticator folds it into a generic authentication failure.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update would violate the
// uniqueness of a live username or email.
var ErrConflict = errors.New("conflict")
