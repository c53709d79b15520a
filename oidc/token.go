// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Token is a convenient shape for a typical token endpoint response.
// Exchange accepts any caller-declared shape; Token is only one of them.
// Secret fields use redacting types, so a Token can be logged or encoded
// without leaking credentials.
type Token struct {
	AccessToken  AccessToken  `json:"access_token"`
	TokenType    string       `json:"token_type,omitempty"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`
	ExpiresIn    int64        `json:"expires_in,omitempty"`
	Scope        string       `json:"scope,omitempty"`
	IdToken      IdToken      `json:"id_token,omitempty"`
}

// Validate implements the Validator interface: a successful exchange must
// return an access_token.
func (t *Token) Validate() error {
	const op = "Token.Validate"
	if t == nil {
		return fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return fmt.Errorf("%s: access_token is missing: %w", op, ErrInvalidResponse)
	}
	return nil
}

// OAuth2Token converts the Token to an *oauth2.Token, so it can be used with
// an oauth2.TokenSource.  The id_token and scope are available via Extra().
// The expiry is computed relative to now.
func (t *Token) OAuth2Token(now time.Time) *oauth2.Token {
	if t == nil {
		return nil
	}
	tk := &oauth2.Token{
		AccessToken:  string(t.AccessToken),
		TokenType:    t.TokenType,
		RefreshToken: string(t.RefreshToken),
		ExpiresIn:    t.ExpiresIn,
	}
	if t.ExpiresIn > 0 {
		tk.Expiry = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	extra := map[string]interface{}{}
	if t.IdToken != "" {
		extra["id_token"] = string(t.IdToken)
	}
	if t.Scope != "" {
		extra["scope"] = t.Scope
	}
	return tk.WithExtra(extra)
}

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}
