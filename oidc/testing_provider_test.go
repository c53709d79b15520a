// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// noRedirectClient returns a copy of the provider's client which doesn't
// follow redirects.
func noRedirectClient(tp *TestProvider) *http.Client {
	c := *tp.HTTPClient()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

func TestTestProvider_authorize(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)
	client := noRedirectClient(tp)

	t.Run("redirects-with-code-and-state", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(tp.AuthEndpoint(), "test-client-id", testRedirect, WithScopes("openid"), WithPKCE())
		require.NoError(err)
		authURL, err := r.AuthURL()
		require.NoError(err)

		resp, err := client.Get(authURL)
		require.NoError(err)
		defer resp.Body.Close()
		require.Equal(http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(err)
		assert.Equal("example.com", loc.Host)
		assert.Equal("test-code", loc.Query().Get("code"))
		assert.Equal(r.State(), loc.Query().Get("state"))
	})
	t.Run("unregistered-redirect", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(tp.AuthEndpoint(), "test-client-id", "https://evil.example.com/cb")
		require.NoError(err)
		authURL, err := r.AuthURL()
		require.NoError(err)
		resp, err := client.Get(authURL)
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("unknown-client", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(tp.AuthEndpoint(), "someone-else", testRedirect)
		require.NoError(err)
		authURL, err := r.AuthURL()
		require.NoError(err)
		resp, err := client.Get(authURL)
		require.NoError(err)
		defer resp.Body.Close()
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(err)
		assert.Equal("unauthorized_client", loc.Query().Get("error"))
		assert.Equal(r.State(), loc.Query().Get("state"))
	})
}

func TestTestProvider_fullFlow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := StartTestProvider(t)
	tp.SetCustomClaims(map[string]interface{}{"email": "alice@example.com"})

	r, err := NewRequest(tp.AuthEndpoint(), "test-client-id", testRedirect,
		WithScopes("openid", "email"),
		WithPKCE(),
		WithAuthURLParams(map[string]string{"nonce": "n-0S6_WzA2Mj"}),
	)
	require.NoError(err)
	authURL, err := r.AuthURL()
	require.NoError(err)
	resp, err := noRedirectClient(tp).Get(authURL)
	require.NoError(err)
	resp.Body.Close()
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)

	require.NoError(VerifyState(r.State(), loc.Query().Get("state")))
	tk, err := Exchange[Token](ctx, loc.Query().Get("code"), tp.TokenEndpoint(), ExchangeConfig{
		ClientID:       r.ClientID(),
		RedirectURI:    r.RedirectURL(),
		ClientPassword: &ClientPassword{ClientSecret: "test-client-secret"},
		CodeVerifier:   r.PKCEVerifier().Verifier(),
	}, WithHTTPClient(tp.HTTPClient()))
	require.NoError(err)
	assert.Equal("openid email", tk.Scope)

	type claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Nonce string `json:"nonce"`
		Iss   string `json:"iss"`
	}
	c, err := DecodeIDToken[claims](string(tk.IdToken))
	require.NoError(err)
	assert.Equal("alice@example.com", c.Sub)
	assert.Equal("alice@example.com", c.Email)
	assert.Equal("n-0S6_WzA2Mj", c.Nonce)
	assert.Equal(tp.Addr(), c.Iss)

	// the access token works against userinfo via an oauth2 client
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, tp.HTTPClient())
	uiClient := (&oauth2.Config{}).Client(oauthCtx, tk.OAuth2Token(time.Now()))
	uiResp, err := uiClient.Get(tp.Addr() + "/userinfo")
	require.NoError(err)
	defer uiResp.Body.Close()
	assert.Equal(http.StatusOK, uiResp.StatusCode)
}

func TestTestProvider_CACert(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	block, _ := pem.Decode([]byte(tp.CACert()))
	require.NotNil(block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(err)
	assert.True(cert.IsCA)
	pub, priv := tp.SigningKeys()
	assert.NotEmpty(pub)
	assert.NotEmpty(priv)
}

func TestTestProvider_LastTokenRequest(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := StartTestProvider(t)
	assert.Nil(tp.LastTokenRequest())
	assert.Equal(int64(0), tp.TokenCalls())
}
