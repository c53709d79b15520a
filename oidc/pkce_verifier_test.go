// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeVerifier(t *testing.T) {
	t.Parallel()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewCodeVerifier()
		require.NoError(err)
		assert.Equal(verifierLen, len(got.verifier))
		assert.Equal(S256, got.Method())
		assert.NoError(ValidateCodeVerifier(got.Verifier()))

		challenge, err := CreateCodeChallenge(S256, got)
		require.NoError(err)
		assert.Equal(challenge, got.Challenge())
	})
	t.Run("bounds", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		for _, l := range []int{MinVerifierLen, MaxVerifierLen} {
			got, err := NewCodeVerifier(WithLength(l))
			require.NoError(err)
			assert.Len(got.Verifier(), l)
		}
		for _, l := range []int{MinVerifierLen - 1, MaxVerifierLen + 1} {
			_, err := NewCodeVerifier(WithLength(l))
			require.Error(err)
			assert.True(errors.Is(err, ErrInvalidCodeVerifier))
		}
	})
	t.Run("unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		verifiers := map[string]struct{}{}
		challenges := map[string]struct{}{}
		for i := 0; i < 500; i++ {
			v, err := NewCodeVerifier()
			require.NoError(err)
			verifiers[v.Verifier()] = struct{}{}
			challenges[v.Challenge()] = struct{}{}
		}
		assert.Len(verifiers, 500)
		assert.Len(challenges, 500)
	})
	t.Run("seeded-reader", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewCodeVerifier(WithRandomReader(rand.New(rand.NewSource(1))))
		require.NoError(err)
		b, err := NewCodeVerifier(WithRandomReader(rand.New(rand.NewSource(1))))
		require.NoError(err)
		assert.Equal(a, b)
	})
	t.Run("copy", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		cp := v.Copy()
		assert.Equal(v, cp)
		assert.NotSame(v, cp)
	})
}

func TestCreateCodeChallenge(t *testing.T) {
	t.Parallel()
	calcHash := func(data []byte) string {
		h := sha256.New()
		_, _ = h.Write(data)
		sum := h.Sum(nil)
		return base64.RawURLEncoding.EncodeToString(sum)
	}
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		challenge, err := CreateCodeChallenge(S256, v)
		require.NoError(err)
		assert.Equal(calcHash([]byte(v.Verifier())), challenge)
		assert.NotContains(challenge, "=")
	})
	t.Run("rfc7636-appendix-b", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifierFromString("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
		require.NoError(err)
		assert.Equal("E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", v.Challenge())
	})
	t.Run("deterministic", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		verifier := strings.Repeat("a", MinVerifierLen)
		c1, err := ChallengeS256(verifier)
		require.NoError(err)
		c2, err := ChallengeS256(verifier)
		require.NoError(err)
		assert.Equal(c1, c2)
		c3, err := ChallengeS256(strings.Repeat("a", MinVerifierLen-1) + "b")
		require.NoError(err)
		assert.NotEqual(c1, c3)
	})
	t.Run("invalid-method", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		challenge, err := CreateCodeChallenge(ChallengeMethod("plain"), v)
		require.Error(err)
		assert.Empty(challenge)
		assert.True(errors.Is(err, ErrUnsupportedChallengeMethod))
	})
	t.Run("nil-verifier", func(t *testing.T) {
		_, err := CreateCodeChallenge(S256, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNilParameter))
	})
}

func TestValidateCodeVerifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		verifier string
		wantErr  bool
	}{
		{name: "min", verifier: strings.Repeat("A", MinVerifierLen)},
		{name: "max", verifier: strings.Repeat("z", MaxVerifierLen)},
		{name: "unreserved-punctuation", verifier: strings.Repeat("-._~", 11)},
		{name: "too-short", verifier: strings.Repeat("A", MinVerifierLen-1), wantErr: true},
		{name: "too-long", verifier: strings.Repeat("A", MaxVerifierLen+1), wantErr: true},
		{name: "empty", verifier: "", wantErr: true},
		{name: "plus", verifier: strings.Repeat("A", MinVerifierLen-1) + "+", wantErr: true},
		{name: "slash", verifier: strings.Repeat("A", MinVerifierLen-1) + "/", wantErr: true},
		{name: "space", verifier: strings.Repeat("A", MinVerifierLen-1) + " ", wantErr: true},
		{name: "non-ascii", verifier: strings.Repeat("A", MinVerifierLen-1) + "é", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			err := ValidateCodeVerifier(tt.verifier)
			if tt.wantErr {
				require.Error(err)
				assert.True(errors.Is(err, ErrInvalidCodeVerifier))
				_, err := NewCodeVerifierFromString(tt.verifier)
				assert.True(errors.Is(err, ErrInvalidCodeVerifier))
				return
			}
			require.NoError(err)
		})
	}
}
