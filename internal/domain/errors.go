// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (CAS lost).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrToolNotFound indicates an unregistered tool name. This is a
// configuration bug in the hosting service, not a caller error.
var ErrToolNotFound = errors.New("tool not found")

// ErrValidation indicates invalid caller input. Wrap with context:
//
//	fmt.Errorf("%w: role is required", domain.ErrValidation)
var ErrValidation = errors.New("validation failed")
