// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the note
// service and HTTP handlers to distinguish between failure scenarios without
// inspecting driver errors.
package repository

import "errors"

// ErrNoteNotFound is returned when a note does not exist or belongs to a
// different user. The two cases are deliberately indistinguishable.
var ErrNoteNotFound = errors.New("note not found")

// ErrConflict is returned when a write violates a unique constraint, such
// as two notes racing for the same slug. Handlers should translate this
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")
