// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// IdToken is an oidc id_token
type IdToken string

// RedactedIdToken is the redacted string or json for an oidc id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string {
	return RedactedIdToken
}

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// Claims retrieves the IdToken claims.  The signature is NOT verified.
func (t IdToken) Claims(claims interface{}) error {
	const op = "IdToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if err := UnmarshalClaims(string(t), claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DecodeIDToken decodes the payload of a compact id_token
// (header.payload.signature) into a new T.
//
// No signature, expiry, issuer or audience checks are made.  That's only
// acceptable when the token was received directly from the provider's token
// endpoint over TLS; otherwise verify it first (see the coreos/go-oidc
// IDTokenVerifier).  The claims aren't checked against T's shape either,
// unless *T implements Validator, in which case Validate is called and its
// error returned.
//
// Malformed tokens return a *DecodeError.
func DecodeIDToken[T any](token string) (*T, error) {
	const op = "oidc.DecodeIDToken"
	var claims T
	if err := UnmarshalClaims(token, &claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if v, ok := any(&claims).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
		}
	}
	return &claims, nil
}

// UnmarshalClaims will retrieve the claims from the provided raw compact JWT
// into claims, which must be a pointer.  The header and signature segments
// are not inspected.  Errors are a *DecodeError.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return &DecodeError{Reason: fmt.Sprintf("malformed jwt, expected 3 parts got %d", len(parts))}
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return &DecodeError{Reason: "malformed jwt payload", Err: err}
	}
	if !utf8.Valid(raw) {
		return &DecodeError{Reason: "jwt payload is not valid utf-8"}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return &DecodeError{Reason: "jwt payload is not a json object"}
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return &DecodeError{Reason: "unable to unmarshal jwt payload", Err: err}
	}
	return nil
}

// decodeSegment decodes a base64url segment.  Padding isn't part of the
// compact serialization, but some providers send it anyway.
func decodeSegment(seg string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}
