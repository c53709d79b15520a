// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package pgstore provides an identity.Store backed by PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codegrant/codegrant/identity"
	"github.com/hashicorp/go-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes mapped to identity errors.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS codegrant_users (
	id         TEXT PRIMARY KEY,
	attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS codegrant_credentials (
	provider_id      TEXT NOT NULL,
	provider_user_id TEXT NOT NULL,
	user_id          TEXT NOT NULL REFERENCES codegrant_users (id) ON DELETE CASCADE,
	created_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (provider_id, provider_user_id)
);
CREATE INDEX IF NOT EXISTS codegrant_credentials_user_id ON codegrant_credentials (user_id);
`

// Store is an identity.Store backed by a pgxpool.Pool.  It's safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// ensure that Store implements the identity.Store interface
var _ identity.Store = (*Store)(nil)

// New creates a connection pool for databaseURL, verifies it and migrates the
// schema.  Call Close when done.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	const op = "pgstore.New"
	if databaseURL == "" {
		return nil, fmt.Errorf("%s: database url is empty: %w", op, identity.ErrInvalidParameter)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create pool: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: unable to ping database: %w", op, err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: unable to migrate schema: %w", op, err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LookupUserByCredential implements the identity.Store interface.
func (s *Store) LookupUserByCredential(ctx context.Context, id identity.ProviderIdentity) (*identity.User, error) {
	const op = "pgstore.(Store).LookupUserByCredential"
	var u identity.User
	err := s.pool.QueryRow(ctx, `
		SELECT u.id, u.attributes, u.created_at
		FROM codegrant_credentials c JOIN codegrant_users u ON u.id = c.user_id
		WHERE c.provider_id = $1 AND c.provider_user_id = $2`,
		id.ProviderID, id.ProviderUserID,
	).Scan(&u.ID, &u.Attributes, &u.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// CreateUserWithCredential implements the identity.Store interface.
func (s *Store) CreateUserWithCredential(ctx context.Context, attributes map[string]string, id identity.ProviderIdentity) (*identity.User, error) {
	const op = "pgstore.(Store).CreateUserWithCredential"
	userID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate user id: %w", op, err)
	}
	if attributes == nil {
		attributes = map[string]string{}
	}
	u := &identity.User{
		ID:         userID,
		Attributes: attributes,
		// postgres keeps microseconds
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO codegrant_users (id, attributes, created_at) VALUES ($1, $2, $3)`,
			u.ID, u.Attributes, u.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO codegrant_credentials (provider_id, provider_user_id, user_id, created_at) VALUES ($1, $2, $3, $4)`,
			id.ProviderID, id.ProviderUserID, u.ID, u.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, id, mapError(err))
	}
	return u, nil
}

// AttachCredential implements the identity.Store interface.
func (s *Store) AttachCredential(ctx context.Context, userID string, id identity.ProviderIdentity) error {
	const op = "pgstore.(Store).AttachCredential"
	_, err := s.pool.Exec(ctx,
		`INSERT INTO codegrant_credentials (provider_id, provider_user_id, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		id.ProviderID, id.ProviderUserID, userID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, id, mapError(err))
	}
	return nil
}

// mapError translates constraint violations into identity errors, keeping
// the *pgconn.PgError in the chain.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %w", identity.ErrIdentityLinkConflict, err)
	case foreignKeyViolation:
		return fmt.Errorf("%w: %w", identity.ErrUserNotFound, err)
	}
	return err
}
