// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	TestStore(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_ZeroValue(t *testing.T) {
	t.Parallel()
	TestStore(t, func(t *testing.T) Store { return &MemoryStore{} })
}

func TestMemoryStore_Copies(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	s := NewMemoryStore()
	attrs := map[string]string{"email": "alice@example.com"}
	id := ProviderIdentity{ProviderID: "github", ProviderUserID: "123"}
	u, err := s.CreateUserWithCredential(ctx, attrs, id)
	require.NoError(err)

	attrs["email"] = "changed"
	u.Attributes["email"] = "changed"

	got, err := s.LookupUserByCredential(ctx, id)
	require.NoError(err)
	assert.Equal("alice@example.com", got.Attributes["email"])
}

type errStore struct {
	Store
	lookupErr error
	createErr error
}

func (s *errStore) LookupUserByCredential(context.Context, ProviderIdentity) (*User, error) {
	return nil, s.lookupErr
}

func (s *errStore) CreateUserWithCredential(context.Context, map[string]string, ProviderIdentity) (*User, error) {
	return nil, s.createErr
}

func TestProviderUserAuth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dbErr := errors.New("connection refused")

	tests := []struct {
		name           string
		store          Store
		providerID     string
		providerUserID string
		wantIsErr      error
		wantErrAs      bool
	}{
		{name: "nil-store", providerID: "github", providerUserID: "123", wantIsErr: ErrNilParameter},
		{name: "missing-provider-id", store: NewMemoryStore(), providerUserID: "123", wantIsErr: ErrInvalidParameter},
		{name: "missing-provider-user-id", store: NewMemoryStore(), providerID: "github", wantIsErr: ErrInvalidParameter},
		{name: "lookup-failure", store: &errStore{lookupErr: dbErr}, providerID: "github", providerUserID: "123", wantIsErr: ErrIdentityLookup, wantErrAs: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := ProviderUserAuth(ctx, tt.store, tt.providerID, tt.providerUserID)
			require.Error(err)
			assert.Nil(got)
			assert.ErrorIs(err, tt.wantIsErr)
			if tt.wantErrAs {
				var lookupErr *LookupError
				require.True(errors.As(err, &lookupErr))
				assert.Same(dbErr, errors.Unwrap(lookupErr))
				assert.ErrorIs(err, dbErr)
				assert.Equal("github/123", lookupErr.Identity.String())
			}
		})
	}
}

func TestLink_CreateUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("store-failure-is-not-a-conflict", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		dbErr := errors.New("disk full")
		link, err := ProviderUserAuth(ctx, &errStore{createErr: dbErr}, "github", "123")
		require.NoError(err)
		_, err = link.CreateUser(ctx, nil)
		require.Error(err)
		assert.ErrorIs(err, dbErr)
		assert.NotErrorIs(err, ErrIdentityLinkConflict)
	})

	t.Run("store-conflict", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		storeErr := errors.New("unique violation")
		link, err := ProviderUserAuth(ctx, &errStore{createErr: errors.Join(ErrIdentityLinkConflict, storeErr)}, "github", "123")
		require.NoError(err)
		_, err = link.CreateUser(ctx, nil)
		require.Error(err)
		var conflict *ConflictError
		require.True(errors.As(err, &conflict))
		assert.ErrorIs(err, storeErr)
	})
}

func TestLink_CreateKey(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	link, err := ProviderUserAuth(context.Background(), NewMemoryStore(), "github", "123")
	require.NoError(err)
	err = link.CreateKey(context.Background(), "")
	assert.ErrorIs(err, ErrInvalidParameter)
}
