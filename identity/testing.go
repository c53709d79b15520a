// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore runs the behavior every Store implementation must have against
// the stores returned by newStore.  newStore is called once per subtest and
// must return an empty store.
func TestStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("lookup-create-lookup-conflict", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)

		link, err := ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		assert.Nil(link.ExistingUser)

		u, err := link.CreateUser(ctx, map[string]string{"email": "alice@example.com"})
		require.NoError(err)
		assert.NotEmpty(u.ID)
		assert.Equal(map[string]string{"email": "alice@example.com"}, u.Attributes)
		assert.False(u.CreatedAt.IsZero())

		again, err := ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		require.NotNil(again.ExistingUser)
		assert.Equal(u.ID, again.ExistingUser.ID)
		assert.Equal(u.Attributes, again.ExistingUser.Attributes)

		// a stale link, created before the user existed
		_, err = link.CreateUser(ctx, nil)
		require.Error(err)
		assert.ErrorIs(err, ErrIdentityLinkConflict)
		var conflict *ConflictError
		require.True(errors.As(err, &conflict))
		assert.Equal(ProviderIdentity{ProviderID: "github", ProviderUserID: "123"}, conflict.Identity)

		_, err = again.CreateUser(ctx, nil)
		assert.ErrorIs(err, ErrIdentityLinkConflict)
	})

	t.Run("pairs-are-distinct", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		for _, id := range []ProviderIdentity{
			{ProviderID: "github", ProviderUserID: "123"},
			{ProviderID: "gitlab", ProviderUserID: "123"},
			{ProviderID: "github", ProviderUserID: "1234"},
		} {
			link, err := ProviderUserAuth(ctx, s, id.ProviderID, id.ProviderUserID)
			require.NoError(err)
			assert.Nil(link.ExistingUser, id.String())
			_, err = link.CreateUser(ctx, map[string]string{"id": id.String()})
			require.NoError(err, id.String())
		}
	})

	t.Run("create-key", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)

		gh, err := ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		u, err := gh.CreateUser(ctx, map[string]string{"name": "alice"})
		require.NoError(err)

		gl, err := ProviderUserAuth(ctx, s, "gitlab", "alice")
		require.NoError(err)
		require.NoError(gl.CreateKey(ctx, u.ID))

		found, err := ProviderUserAuth(ctx, s, "gitlab", "alice")
		require.NoError(err)
		require.NotNil(found.ExistingUser)
		assert.Equal(u.ID, found.ExistingUser.ID)

		// already linked to the same user is still a conflict
		err = gl.CreateKey(ctx, u.ID)
		assert.ErrorIs(err, ErrIdentityLinkConflict)
		err = found.CreateKey(ctx, u.ID)
		assert.ErrorIs(err, ErrIdentityLinkConflict)

		// and so is already linked to a different user
		other, err := ProviderUserAuth(ctx, s, "okta", "bob")
		require.NoError(err)
		bob, err := other.CreateUser(ctx, nil)
		require.NoError(err)
		err = gl.CreateKey(ctx, bob.ID)
		assert.ErrorIs(err, ErrIdentityLinkConflict)

		still, err := ProviderUserAuth(ctx, s, "gitlab", "alice")
		require.NoError(err)
		assert.Equal(u.ID, still.ExistingUser.ID)
	})

	t.Run("create-key-unknown-user", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newStore(t)
		link, err := ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		err = link.CreateKey(ctx, "00000000-0000-0000-0000-000000000000")
		require.Error(err)
		assert.ErrorIs(err, ErrUserNotFound)
		assert.NotErrorIs(err, ErrIdentityLinkConflict)

		link, err = ProviderUserAuth(ctx, s, "github", "123")
		require.NoError(err)
		assert.Nil(link.ExistingUser)
	})

	t.Run("concurrent-create", func(t *testing.T) {
		assert := assert.New(t)
		s := newStore(t)
		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   []string
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				link, err := ProviderUserAuth(ctx, s, "github", "race")
				if !assert.NoError(err) {
					return
				}
				if link.ExistingUser != nil {
					mu.Lock()
					conflicts++
					mu.Unlock()
					return
				}
				u, err := link.CreateUser(ctx, map[string]string{"worker": fmt.Sprint(i)})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created = append(created, u.ID)
				case errors.Is(err, ErrIdentityLinkConflict):
					conflicts++
				default:
					assert.NoError(err)
				}
			}(i)
		}
		wg.Wait()
		assert.Len(created, 1)
		assert.Equal(workers-1, conflicts)

		link, err := ProviderUserAuth(ctx, s, "github", "race")
		assert.NoError(err)
		if assert.NotNil(link.ExistingUser) && len(created) == 1 {
			assert.Equal(created[0], link.ExistingUser.ID)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		s := newStore(t)
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ProviderUserAuth(canceled, s, "github", "123")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIdentityLookup)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
