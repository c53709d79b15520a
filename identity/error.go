// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrIdentityLinkConflict = errors.New("provider identity is already linked")
	ErrIdentityLookup       = errors.New("provider identity lookup failed")
	ErrUserNotFound         = errors.New("user not found")
)

// ConflictError is returned when a credential for a provider identity
// already exists. It matches ErrIdentityLinkConflict via errors.Is.
type ConflictError struct {
	Identity ProviderIdentity

	// Err is the store's error, if any.
	Err error
}

// Error satisfies the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIdentityLinkConflict, e.Identity)
}

// Is reports whether target is ErrIdentityLinkConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrIdentityLinkConflict
}

// Unwrap returns the store's error.
func (e *ConflictError) Unwrap() error { return e.Err }

// LookupError is returned when the Store fails while looking up a provider
// identity.  The store's error is available, unchanged, via errors.Unwrap.
// It matches ErrIdentityLookup via errors.Is.
type LookupError struct {
	Identity ProviderIdentity
	Err      error
}

// Error satisfies the error interface.
func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrIdentityLookup, e.Identity, e.Err)
}

// Is reports whether target is ErrIdentityLookup.
func (e *LookupError) Is(target error) bool {
	return target == ErrIdentityLookup
}

// Unwrap returns the store's error.
func (e *LookupError) Unwrap() error { return e.Err }
