// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/codegrant/codegrant/identity"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpen(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()
	identity.TestStore(t, func(t *testing.T) identity.Store {
		return testOpen(t, ":memory:")
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()
	t.Run("empty-path", func(t *testing.T) {
		_, err := Open(context.Background(), "")
		assert.ErrorIs(t, err, identity.ErrInvalidParameter)
	})
	t.Run("reopen-keeps-links", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "identity.db")

		s, err := Open(ctx, path)
		require.NoError(err)
		link, err := identity.ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		u, err := link.CreateUser(ctx, map[string]string{"email": "alice@example.com"})
		require.NoError(err)
		require.NoError(s.Close())

		s = testOpen(t, path)
		link, err = identity.ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		require.NotNil(link.ExistingUser)
		assert.Equal(u.ID, link.ExistingUser.ID)
		assert.Equal(u.Attributes, link.ExistingUser.Attributes)
		assert.True(u.CreatedAt.Equal(link.ExistingUser.CreatedAt))
	})
}

func TestStore_ConflictKeepsDriverError(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	s := testOpen(t, ":memory:")
	id := identity.ProviderIdentity{ProviderID: "github", ProviderUserID: "123"}

	_, err := s.CreateUserWithCredential(ctx, nil, id)
	require.NoError(err)
	_, err = s.CreateUserWithCredential(ctx, nil, id)
	require.Error(err)
	assert.ErrorIs(err, identity.ErrIdentityLinkConflict)
	var sqliteErr sqlite3.Error
	require.True(errors.As(err, &sqliteErr))
	assert.Equal(sqlite3.ErrConstraint, sqliteErr.Code)

	// the losing user row was rolled back with its credential
	var users int
	require.NoError(s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&users))
	assert.Equal(1, users)
}
