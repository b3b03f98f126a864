// Package repository contains data access logic separated from HTTP handlers.
// Sentinel errors defined here let handlers distinguish failure scenarios
// without inspecting driver-specific errors.
package repository

import "errors"

// ErrItemNotFound is returned when no row exists for the requested id.
// Handlers translate it into an HTTP 404 response.
var ErrItemNotFound = errors.New("item not found")
