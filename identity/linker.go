// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
)

// Link is the result of ProviderUserAuth for one provider identity.
type Link struct {
	ProviderIdentity

	// ExistingUser is the user already linked to the identity, or nil.
	ExistingUser *User

	store Store
}

// ProviderUserAuth looks up the user linked to (providerID, providerUserID).
// The returned Link's ExistingUser is nil when there is no such user; the
// caller may then use CreateUser or CreateKey.
//
// Store failures are returned as a *LookupError.
func ProviderUserAuth(ctx context.Context, store Store, providerID, providerUserID string) (*Link, error) {
	const op = "identity.ProviderUserAuth"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	id := ProviderIdentity{ProviderID: providerID, ProviderUserID: providerUserID}
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := store.LookupUserByCredential(ctx, id)
	if err != nil {
		return nil, &LookupError{Identity: id, Err: err}
	}
	return &Link{
		ProviderIdentity: id,
		ExistingUser:     u,
		store:            store,
	}, nil
}

// CreateUser atomically creates a user with the attributes and a credential
// for the link's identity.  A *ConflictError is returned when the identity is
// already linked, including when ExistingUser is set.
func (l *Link) CreateUser(ctx context.Context, attributes map[string]string) (*User, error) {
	const op = "Link.CreateUser"
	if l.ExistingUser != nil {
		return nil, &ConflictError{Identity: l.ProviderIdentity}
	}
	u, err := l.store.CreateUserWithCredential(ctx, copyAttributes(attributes), l.ProviderIdentity)
	if err != nil {
		if errors.Is(err, ErrIdentityLinkConflict) {
			return nil, &ConflictError{Identity: l.ProviderIdentity, Err: err}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateKey attaches a credential for the link's identity to an existing
// user. A *ConflictError is returned when the identity is already linked, to
// any user.
func (l *Link) CreateKey(ctx context.Context, userID string) error {
	const op = "Link.CreateKey"
	if userID == "" {
		return fmt.Errorf("%s: user id is empty: %w", op, ErrInvalidParameter)
	}
	if l.ExistingUser != nil {
		return &ConflictError{Identity: l.ProviderIdentity}
	}
	if err := l.store.AttachCredential(ctx, userID, l.ProviderIdentity); err != nil {
		if errors.Is(err, ErrIdentityLinkConflict) {
			return &ConflictError{Identity: l.ProviderIdentity, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
