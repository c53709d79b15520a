// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Option configures the JWT
type Option func(*JWT) error

// WithClientSecret sets a secret and algorithm to sign the JWT with
// (client_secret_jwt).  alg must be one of HS256, HS384 or HS512.
func WithClientSecret(secret string, alg HSAlgorithm) Option {
	const op = "WithClientSecret"
	return func(j *JWT) error {
		if err := alg.Validate(secret); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		j.secret = secret
		j.keyOpts++
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithRSAKey sets a private key to sign the JWT with (private_key_jwt).
func WithRSAKey(key *rsa.PrivateKey, alg RSAlgorithm) Option {
	const op = "WithRSAKey"
	return func(j *JWT) error {
		if err := alg.Validate(key); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		j.key = key
		j.keyOpts++
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithECDSAKey sets a private key to sign the JWT with (private_key_jwt).
func WithECDSAKey(key *ecdsa.PrivateKey, alg ESAlgorithm) Option {
	const op = "WithECDSAKey"
	return func(j *JWT) error {
		if err := alg.Validate(key); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		j.key = key
		j.keyOpts++
		j.alg = jose.SignatureAlgorithm(alg)
		return nil
	}
}

// WithKeyID sets the "kid" header.  Providers use it to select the public
// key from the client's registered JWKS.
func WithKeyID(keyID string) Option {
	const op = "WithKeyID"
	return func(j *JWT) error {
		if keyID == "" {
			return fmt.Errorf("%s: %w", op, ErrEmptyKeyID)
		}
		j.headers["kid"] = keyID
		return nil
	}
}

// WithHeaders sets extra JWT headers.  "alg" and "typ" are reserved.
func WithHeaders(h map[string]string) Option {
	const op = "WithHeaders"
	return func(j *JWT) error {
		for k, v := range h {
			switch k {
			case "alg", "typ":
				return fmt.Errorf("%s: %w: %q", op, ErrReservedHeader, k)
			}
			j.headers[k] = v
		}
		return nil
	}
}

// WithLifetime sets how long a serialized token is valid for.  The default
// is DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	const op = "WithLifetime"
	return func(j *JWT) error {
		if d <= 0 {
			return fmt.Errorf("%s: %w: %s", op, ErrInvalidLifetime, d)
		}
		j.lifetime = d
		return nil
	}
}
