// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// ChallengeMethod represents PKCE code challenge methods (a.k.a.
// code_challenge_method). Only S256 is supported: the plain method offers no
// protection against an attacker who can read the authorization request.
type ChallengeMethod string

const (
	// S256 is a code_challenge_method where the code_challenge is
	// BASE64URL-ENCODE(SHA256(ASCII(code_verifier)))
	S256 ChallengeMethod = "S256"
)

const (
	// MinVerifierLen and MaxVerifierLen are the RFC 7636 section 4.1 bounds.
	MinVerifierLen = 43
	MaxVerifierLen = 128

	// verifierLen is the length of generated verifiers.
	verifierLen = 64
)

// CodeVerifier represents an OAuth PKCE code verifier.
//
// See: https://datatracker.ietf.org/doc/html/rfc7636#section-4.1
type CodeVerifier interface {
	// Verifier returns the code verifier (see:
	// https://datatracker.ietf.org/doc/html/rfc7636#section-4.1)
	Verifier() string

	// Challenge returns the code verifier's code challenge (see:
	// https://datatracker.ietf.org/doc/html/rfc7636#section-4.2)
	Challenge() string

	// Method returns the code verifier's challenge method (see
	// https://datatracker.ietf.org/doc/html/rfc7636#section-4.2)
	Method() ChallengeMethod

	// Copy returns a copy of the verifier
	Copy() CodeVerifier
}

// S256Verifier represents an OAuth PKCE code verifier that uses the S256
// challenge method.  It implements the CodeVerifier interface.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure that S256Verifier implements the CodeVerifier interface
var _ CodeVerifier = (*S256Verifier)(nil)

// NewCodeVerifier creates a new CodeVerifier (*S256Verifier).
//
// Supported options: WithLength, WithRandomReader
//
// See: https://datatracker.ietf.org/doc/html/rfc7636#section-4.1
func NewCodeVerifier(opt ...Option) (*S256Verifier, error) {
	const op = "oidc.NewCodeVerifier"
	opts := getVerifierOpts(opt...)
	if opts.withLength < MinVerifierLen || opts.withLength > MaxVerifierLen {
		return nil, fmt.Errorf("%s: length %d is outside %d..%d: %w", op, opts.withLength, MinVerifierLen, MaxVerifierLen, ErrInvalidCodeVerifier)
	}
	data, err := randomBase62(opts.withReader, opts.withLength)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create verifier data: %w: %w", op, ErrRandomSource, err)
	}
	v, err := NewCodeVerifierFromString(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// NewCodeVerifierFromString creates a CodeVerifier (*S256Verifier) from an
// existing verifier, typically one that was persisted across the
// authorization redirect.  The verifier is validated, never truncated or
// padded.
func NewCodeVerifierFromString(verifier string) (*S256Verifier, error) {
	const op = "oidc.NewCodeVerifierFromString"
	challenge, err := ChallengeS256(verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &S256Verifier{
		verifier:  verifier,
		challenge: challenge,
		method:    S256,
	}, nil
}

func (v *S256Verifier) Verifier() string        { return v.verifier }  // Verifier implements the CodeVerifier.Verifier() interface function.
func (v *S256Verifier) Challenge() string       { return v.challenge } // Challenge implements the CodeVerifier.Challenge() interface function.
func (v *S256Verifier) Method() ChallengeMethod { return v.method }    // Method implements the CodeVerifier.Method() interface function.

// Copy returns a copy of the verifier.
func (v *S256Verifier) Copy() CodeVerifier {
	return &S256Verifier{
		verifier:  v.verifier,
		challenge: v.challenge,
		method:    v.method,
	}
}

// CreateCodeChallenge creates a code challenge from the verifier. Supported
// ChallengeMethods: S256
//
// See: https://datatracker.ietf.org/doc/html/rfc7636#section-4.2
func CreateCodeChallenge(method ChallengeMethod, v CodeVerifier) (string, error) {
	const op = "oidc.CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: verifier is nil: %w", op, ErrNilParameter)
	}
	switch method {
	case S256:
		challenge, err := ChallengeS256(v.Verifier())
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return challenge, nil
	default:
		return "", fmt.Errorf("%s: %s is invalid: %w", op, method, ErrUnsupportedChallengeMethod)
	}
}

// ChallengeS256 returns BASE64URL-ENCODE(SHA256(ASCII(verifier))) without
// padding. It's a pure function of the verifier.
func ChallengeS256(verifier string) (string, error) {
	const op = "oidc.ChallengeS256"
	if err := ValidateCodeVerifier(verifier); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// ValidateCodeVerifier checks a verifier against RFC 7636 section 4.1: 43 to
// 128 characters from the unreserved set [A-Z] / [a-z] / [0-9] / "-" / "." /
// "_" / "~".
func ValidateCodeVerifier(verifier string) error {
	const op = "oidc.ValidateCodeVerifier"
	if l := len(verifier); l < MinVerifierLen || l > MaxVerifierLen {
		return fmt.Errorf("%s: length %d is outside %d..%d: %w", op, l, MinVerifierLen, MaxVerifierLen, ErrInvalidCodeVerifier)
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return fmt.Errorf("%s: character at %d is not an unreserved character: %w", op, i, ErrInvalidCodeVerifier)
		}
	}
	return nil
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// verifierOptions is the set of available options for NewCodeVerifier
type verifierOptions struct {
	withLength int
	withReader io.Reader
}

// verifierDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func verifierDefaults() verifierOptions {
	return verifierOptions{
		withLength: verifierLen,
	}
}

// getVerifierOpts gets the defaults and applies the opt overrides passed in
func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
