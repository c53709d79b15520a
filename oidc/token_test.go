// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedAccessToken
		tk := AccessToken("super secret token")
		assert.Equalf(want, tk.String(), "AccessToken.String() = %v, want %v", tk.String(), want)
		assert.Equal(want, fmt.Sprintf("%s", tk))
	})
}

func TestRefreshToken_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedRefreshToken)
		tk := RefreshToken("super secret token")
		got, err := tk.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "RefreshToken.MarshalJSON() = %s, want %s", got, want)
	})
}

func TestToken_JSON(t *testing.T) {
	t.Parallel()
	t.Run("decodes-raw-and-encodes-redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		raw := `{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600,"scope":"openid email","id_token":"a.b.c"}`
		var tk Token
		require.NoError(json.Unmarshal([]byte(raw), &tk))
		assert.Equal(AccessToken("at"), tk.AccessToken)
		assert.Equal(RefreshToken("rt"), tk.RefreshToken)
		assert.Equal(IdToken("a.b.c"), tk.IdToken)
		assert.Equal(int64(3600), tk.ExpiresIn)

		enc, err := json.Marshal(&tk)
		require.NoError(err)
		assert.NotContains(string(enc), `"at"`)
		assert.NotContains(string(enc), `"rt"`)
		assert.NotContains(string(enc), "a.b.c")
		assert.Contains(string(enc), RedactedAccessToken)
	})
}

func TestToken_Validate(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.NoError((&Token{AccessToken: "at"}).Validate())
	assert.True(errors.Is((&Token{}).Validate(), ErrInvalidResponse))
	var nilTk *Token
	assert.True(errors.Is(nilTk.Validate(), ErrNilParameter))
}

func TestToken_OAuth2Token(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tk := &Token{
		AccessToken:  "at",
		TokenType:    "Bearer",
		RefreshToken: "rt",
		ExpiresIn:    60,
		Scope:        "openid",
		IdToken:      "a.b.c",
	}
	got := tk.OAuth2Token(now)
	assert.Equal("at", got.AccessToken)
	assert.Equal("Bearer", got.TokenType)
	assert.Equal("rt", got.RefreshToken)
	assert.Equal(now.Add(time.Minute), got.Expiry)
	assert.Equal("a.b.c", got.Extra("id_token"))
	assert.Equal("openid", got.Extra("scope"))

	noExpiry := (&Token{AccessToken: "at"}).OAuth2Token(now)
	assert.True(noExpiry.Expiry.IsZero())

	var nilTk *Token
	assert.Nil(nilTk.OAuth2Token(now))
}
