// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package identity links a remote provider account, identified by a
ProviderIdentity, to a user of the host application.

The host's persistence is consumed through the Store interface.  MemoryStore
is provided for tests and demos; the sqlitestore and pgstore sub-packages
provide database backed implementations.

	link, err := identity.ProviderUserAuth(ctx, store, "github", claims.Subject)
	if err != nil {
		// handle err
	}
	user := link.ExistingUser
	if user == nil {
		if user, err = link.CreateUser(ctx, map[string]string{"email": claims.Email}); err != nil {
			// handle err (errors.Is(err, identity.ErrIdentityLinkConflict)
			// when another request won the race)
		}
	}
*/
package identity

import (
	"context"
	"fmt"
	"time"
)

// ProviderIdentity identifies an account at a provider.
type ProviderIdentity struct {
	// ProviderID names the provider (for example: "github").
	ProviderID string

	// ProviderUserID is the provider scoped user id (for example: the
	// id_token "sub" claim).
	ProviderUserID string
}

// String returns "provider_id/provider_user_id".
func (p ProviderIdentity) String() string {
	return p.ProviderID + "/" + p.ProviderUserID
}

// Validate returns ErrInvalidParameter when either id is empty.
func (p ProviderIdentity) Validate() error {
	const op = "ProviderIdentity.Validate"
	switch {
	case p.ProviderID == "":
		return fmt.Errorf("%s: provider id is empty: %w", op, ErrInvalidParameter)
	case p.ProviderUserID == "":
		return fmt.Errorf("%s: provider user id is empty: %w", op, ErrInvalidParameter)
	}
	return nil
}

// User is a host application user.
type User struct {
	ID         string
	Attributes map[string]string
	CreatedAt  time.Time
}

// Store is the host application's user and credential persistence.  Every
// operation must be atomic with respect to concurrent callers racing on the
// same ProviderIdentity.
type Store interface {
	// LookupUserByCredential returns the user linked to the identity, or
	// nil (and no error) when the identity isn't linked.
	LookupUserByCredential(ctx context.Context, id ProviderIdentity) (*User, error)

	// CreateUserWithCredential creates a user and links the identity to it
	// in one transaction.  It returns an error matching
	// ErrIdentityLinkConflict when the identity is already linked, and
	// nothing is created.
	CreateUserWithCredential(ctx context.Context, attributes map[string]string, id ProviderIdentity) (*User, error)

	// AttachCredential links the identity to an existing user.  It returns
	// an error matching ErrIdentityLinkConflict when the identity is already
	// linked (to any user) and ErrUserNotFound when the user doesn't exist.
	AttachCredential(ctx context.Context, userID string, id ProviderIdentity) error
}

func copyAttributes(attrs map[string]string) map[string]string {
	cp := make(map[string]string, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return cp
}
