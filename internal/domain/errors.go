// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates invalid input rejected at call time.
var ErrValidation = errors.New("validation failed")

// ErrUnauthenticated indicates a missing or invalid credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden indicates the caller may not access the requested resource.
var ErrForbidden = errors.New("forbidden")
