// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"
)

// MemoryStore is an in-memory Store.  It's safe for concurrent use, and the
// zero value is an empty store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	creds map[ProviderIdentity]string
	now   func() time.Time
}

// ensure that MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: map[string]*User{},
		creds: map[ProviderIdentity]string{},
		now:   time.Now,
	}
}

// LookupUserByCredential implements the Store interface.
func (s *MemoryStore) LookupUserByCredential(ctx context.Context, id ProviderIdentity) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("identity.(MemoryStore).LookupUserByCredential: credential %s references user %s: %w", id, userID, ErrUserNotFound)
	}
	return copyUser(u), nil
}

// CreateUserWithCredential implements the Store interface.
func (s *MemoryStore) CreateUserWithCredential(ctx context.Context, attributes map[string]string, id ProviderIdentity) (*User, error) {
	const op = "identity.(MemoryStore).CreateUserWithCredential"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate user id: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if _, ok := s.creds[id]; ok {
		return nil, fmt.Errorf("%s: %s: %w", op, id, ErrIdentityLinkConflict)
	}
	u := &User{
		ID:         userID,
		Attributes: copyAttributes(attributes),
		CreatedAt:  s.now().UTC(),
	}
	s.users[u.ID] = u
	s.creds[id] = u.ID
	return copyUser(u), nil
}

// AttachCredential implements the Store interface.
func (s *MemoryStore) AttachCredential(ctx context.Context, userID string, id ProviderIdentity) error {
	const op = "identity.(MemoryStore).AttachCredential"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if _, ok := s.creds[id]; ok {
		return fmt.Errorf("%s: %s: %w", op, id, ErrIdentityLinkConflict)
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%s: %s: %w", op, userID, ErrUserNotFound)
	}
	s.creds[id] = userID
	return nil
}

// init allocates the zero value's maps.  s.mu must be held for writing.
func (s *MemoryStore) init() {
	if s.users == nil {
		s.users = map[string]*User{}
	}
	if s.creds == nil {
		s.creds = map[ProviderIdentity]string{}
	}
	if s.now == nil {
		s.now = time.Now
	}
}

func copyUser(u *User) *User {
	return &User{
		ID:         u.ID,
		Attributes: copyAttributes(u.Attributes),
		CreatedAt:  u.CreatedAt,
	}
}
