// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package sqlitestore provides an identity.Store backed by SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codegrant/codegrant/identity"
	"github.com/hashicorp/go-uuid"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	attributes TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS credentials (
	provider_id      TEXT NOT NULL,
	provider_user_id TEXT NOT NULL,
	user_id          TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	created_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (provider_id, provider_user_id)
);
CREATE INDEX IF NOT EXISTS credentials_user_id ON credentials (user_id);
`

// Store is an identity.Store backed by a SQLite database.  It's safe for
// concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// ensure that Store implements the identity.Store interface
var _ identity.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite database at path and migrates
// its schema.  Use ":memory:" for a private in-memory database.
//
// The database is used through a single connection: SQLite serializes
// writers anyway, and an in-memory database only lives as long as its
// connection.
func Open(ctx context.Context, path string) (*Store, error) {
	const op = "sqlitestore.Open"
	if path == "" {
		return nil, fmt.Errorf("%s: path is empty: %w", op, identity.ErrInvalidParameter)
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: failed to migrate schema: %w", op, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LookupUserByCredential implements the identity.Store interface.
func (s *Store) LookupUserByCredential(ctx context.Context, id identity.ProviderIdentity) (*identity.User, error) {
	const op = "sqlitestore.(Store).LookupUserByCredential"
	var (
		u     identity.User
		attrs string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.attributes, u.created_at
		FROM credentials c JOIN users u ON u.id = c.user_id
		WHERE c.provider_id = ? AND c.provider_user_id = ?`,
		id.ProviderID, id.ProviderUserID,
	).Scan(&u.ID, &attrs, &u.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal([]byte(attrs), &u.Attributes); err != nil {
		return nil, fmt.Errorf("%s: unable to decode attributes of user %s: %w", op, u.ID, err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// CreateUserWithCredential implements the identity.Store interface.
func (s *Store) CreateUserWithCredential(ctx context.Context, attributes map[string]string, id identity.ProviderIdentity) (*identity.User, error) {
	const op = "sqlitestore.(Store).CreateUserWithCredential"
	userID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate user id: %w", op, err)
	}
	if attributes == nil {
		attributes = map[string]string{}
	}
	attrs, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to encode attributes: %w", op, err)
	}
	u := &identity.User{
		ID:         userID,
		Attributes: attributes,
		CreatedAt:  s.now().UTC(),
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, attributes, created_at) VALUES (?, ?, ?)`,
			u.ID, string(attrs), u.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (provider_id, provider_user_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
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
	const op = "sqlitestore.(Store).AttachCredential"
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (provider_id, provider_user_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
		id.ProviderID, id.ProviderUserID, userID, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, id, mapError(err))
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// mapError translates constraint violations into identity errors, keeping
// the driver error in the chain.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %w", identity.ErrIdentityLinkConflict, err)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %w", identity.ErrUserNotFound, err)
	}
	return err
}
