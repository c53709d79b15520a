// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codegrant/codegrant/oidc/clientassertion"
	"github.com/codegrant/codegrant/oidc/internal/strutils"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local TLS server implementing the provider side of the
// authorization code flow: discovery, /authorize, /token (with client
// authentication and PKCE checks), /certs and /userinfo.  It counts and
// records token requests, which makes it easy to assert that a flow did or
// didn't reach the token endpoint.
//
// It's part of this package's public testing API.
type TestProvider struct {
	t          *testing.T
	httpServer *httptest.Server
	caCert     string

	jwks            *jose.JSONWebKeySet
	ecdsaPublicKey  string
	ecdsaPrivateKey string

	tokenCalls atomic.Int64

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	authMethod          AuthMethod
	assertionKey        any
	allowedRedirectURIs []string
	expectedAuthCode    string
	expectedChallenge   string
	authorizedNonce     string
	authorizedScope     string
	customClaims        map[string]interface{}
	replySubject        string
	replyUserinfo       map[string]interface{}
	tokenErrStatus      int
	tokenErrCode        string
	tokenRawReply       []byte
	issuedAccessToken   string
	lastTokenRequest    *TestTokenRequest
}

// TestTokenRequest is a token request received by a TestProvider.
type TestTokenRequest struct {
	Header http.Header
	Form   url.Values
}

// StartTestProvider creates a disposable TestProvider which is stopped by
// t.Cleanup.  The defaults are: client "test-client-id" with secret
// "test-client-secret" authenticating via ClientSecretPost, auth code
// "test-code" and the allowed redirect "https://example.com/callback".
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:                   t,
		clientID:            "test-client-id",
		clientSecret:        "test-client-secret",
		authMethod:          ClientSecretPost,
		allowedRedirectURIs: []string{"https://example.com/callback"},
		expectedAuthCode:    "test-code",
		replySubject:        "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"sub":   "alice@example.com",
			"email": "alice@example.com",
			"name":  "Alice",
		},
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// SetClientCreds configures the client the token endpoint accepts.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetAuthMethod configures how the client must authenticate to the token
// endpoint.  An empty method means a public client: only client_id is
// required, and any secret is rejected.
func (p *TestProvider) SetAuthMethod(m AuthMethod) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authMethod = m
}

// SetClientAssertionKey configures the key used to verify client assertions
// when the auth method is ClientAssertionJWT: a public key, or []byte for an
// HMAC secret.
func (p *TestProvider) SetClientAssertionKey(key any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assertionKey = key
}

// SetExpectedAuthCode configures the auth code to return from /authorize and
// the allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedPKCEChallenge configures the S256 code_challenge the token
// request's code_verifier must match.  /authorize sets it from the
// authorization request as well.
func (p *TestProvider) SetExpectedPKCEChallenge(challenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedChallenge = challenge
}

// SetAllowedRedirectURIs configures the allowed redirect URIs.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the id_token.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetSubject sets the sub of issued id_tokens and userinfo.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
	p.replyUserinfo["sub"] = sub
}

// SetTokenError forces the token endpoint to reply with the http status and
// an RFC 6749 error code.  A zero status clears it.
func (p *TestProvider) SetTokenError(status int, errorCode string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrStatus = status
	p.tokenErrCode = errorCode
}

// SetTokenReply forces the token endpoint to reply 200 with the raw body.  A
// nil body clears it.
func (p *TestProvider) SetTokenReply(body []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenRawReply = body
}

// TokenCalls returns how many requests the token endpoint has received,
// successful or not.
func (p *TestProvider) TokenCalls() int64 { return p.tokenCalls.Load() }

// LastTokenRequest returns the last request received by the token endpoint,
// or nil.
func (p *TestProvider) LastTokenRequest() *TestTokenRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastTokenRequest == nil {
		return nil
	}
	return &TestTokenRequest{
		Header: p.lastTokenRequest.Header.Clone(),
		Form:   cloneValues(p.lastTokenRequest.Form),
	}
}

// Addr returns the current base URL for the test provider's running
// webserver.  It's also the issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// AuthEndpoint returns the authorization endpoint URL.
func (p *TestProvider) AuthEndpoint() string { return p.Addr() + "/authorize" }

// TokenEndpoint returns the token endpoint URL.
func (p *TestProvider) TokenEndpoint() string { return p.Addr() + "/token" }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http.Client which trusts the test provider.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// SigningKeys returns the test provider's pem-encoded keys used to sign
// id_tokens.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	v := url.Values{"error": {errorCode}}
	if s := qv.Get("state"); s != "" {
		v.Set("state", s)
	}
	if errorMessage != "" {
		v.Set("error_description", errorMessage)
	}
	http.Redirect(w, req, appendQuery(qv.Get("redirect_uri"), v), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == "/token" {
		p.tokenCalls.Add(1)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer             string   `json:"issuer"`
			AuthEndpoint       string   `json:"authorization_endpoint"`
			TokenEndpoint      string   `json:"token_endpoint"`
			JWKSURI            string   `json:"jwks_uri"`
			UserinfoEndpoint   string   `json:"userinfo_endpoint"`
			ChallengeMethods   []string `json:"code_challenge_methods_supported"`
			TokenAuthMethods   []string `json:"token_endpoint_auth_methods_supported"`
			ScopesSupported    []string `json:"scopes_supported"`
			ResponseTypes      []string `json:"response_types_supported"`
			IDTokenSigningAlgs []string `json:"id_token_signing_alg_values_supported"`
			SubjectTypes       []string `json:"subject_types_supported"`
		}{
			Issuer:             p.Addr(),
			AuthEndpoint:       p.AuthEndpoint(),
			TokenEndpoint:      p.TokenEndpoint(),
			JWKSURI:            p.Addr() + "/certs",
			UserinfoEndpoint:   p.Addr() + "/userinfo",
			ChallengeMethods:   []string{string(S256)},
			TokenAuthMethods:   []string{"client_secret_post", "client_secret_basic", "private_key_jwt", "client_secret_jwt"},
			ScopesSupported:    []string{"openid", "email", "profile"},
			ResponseTypes:      []string{"code"},
			IDTokenSigningAlgs: []string{string(jose.ES256)},
			SubjectTypes:       []string{"public"},
		}
		_ = p.writeJSON(w, &reply)

	case "/authorize":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()
		switch {
		case qv.Get("redirect_uri") == "" || !strutils.StrListContains(p.allowedRedirectURIs, qv.Get("redirect_uri")):
			// never redirect to an unregistered uri
			w.WriteHeader(http.StatusBadRequest)
			return
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		if challenge := qv.Get("code_challenge"); challenge != "" {
			if qv.Get("code_challenge_method") != string(S256) {
				p.writeAuthErrorResponse(w, req, "invalid_request", "transform algorithm not supported")
				return
			}
			p.expectedChallenge = challenge
		}
		p.authorizedNonce = qv.Get("nonce")
		p.authorizedScope = qv.Get("scope")

		v := url.Values{"code": {p.expectedAuthCode}}
		if s := qv.Get("state"); s != "" {
			v.Set("state", s)
		}
		http.Redirect(w, req, appendQuery(qv.Get("redirect_uri"), v), http.StatusFound)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := req.ParseForm(); err != nil {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "unable to parse form")
			return
		}
		p.lastTokenRequest = &TestTokenRequest{
			Header: req.Header.Clone(),
			Form:   cloneValues(req.PostForm),
		}

		if p.tokenErrStatus != 0 {
			p.writeTokenErrorResponse(w, p.tokenErrStatus, p.tokenErrCode, "forced error")
			return
		}
		if p.tokenRawReply != nil {
			_, _ = w.Write(p.tokenRawReply)
			return
		}

		form := req.PostForm
		if code, desc := p.authenticateClient(req); code != "" {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, code, desc)
			return
		}
		switch {
		case form.Get("grant_type") != "authorization_code":
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
			return
		case form.Get("redirect_uri") != "" && !strutils.StrListContains(p.allowedRedirectURIs, form.Get("redirect_uri")):
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri is not allowed")
			return
		case form.Get("code") == "" || form.Get("code") != p.expectedAuthCode:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}
		if p.expectedChallenge != "" {
			got, err := ChallengeS256(form.Get("code_verifier"))
			if err != nil || got != p.expectedChallenge {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match code_challenge")
				return
			}
		}

		accessToken, err := NewID(WithPrefix("at"))
		if err != nil {
			p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		refreshToken, err := NewID(WithPrefix("rt"))
		if err != nil {
			p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		p.issuedAccessToken = accessToken

		now := time.Now()
		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
			Audience:  jwt.Audience{p.clientID},
		}
		privateClaims := map[string]interface{}{}
		if p.authorizedNonce != "" {
			privateClaims["nonce"] = p.authorizedNonce
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}

		reply := struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
			Scope        string `json:"scope,omitempty"`
			IDToken      string `json:"id_token"`
		}{
			AccessToken:  accessToken,
			TokenType:    "Bearer",
			RefreshToken: refreshToken,
			ExpiresIn:    3600,
			Scope:        p.authorizedScope,
			IDToken:      TestSignJWT(p.t, p.ecdsaPrivateKey, stdClaims, privateClaims),
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.issuedAccessToken == "" || req.Header.Get("Authorization") != "Bearer "+p.issuedAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = p.writeJSON(w, p.replyUserinfo)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// authenticateClient checks the token request's client authentication
// against the configured auth method and returns an RFC 6749 error code and
// description on failure.  p.mu must be held.
func (p *TestProvider) authenticateClient(req *http.Request) (string, string) {
	form := req.PostForm
	basicID, basicSecret, hasBasic := req.BasicAuth()
	bodySecret, hasBodySecret := form["client_secret"]
	switch p.authMethod {
	case ClientSecretBasic:
		switch {
		case !hasBasic:
			return "invalid_client", "missing basic auth"
		case hasBodySecret || form.Has("client_id"):
			return "invalid_request", "client credentials in both header and body"
		case basicID != p.clientID || basicSecret != p.clientSecret:
			return "invalid_client", "bad client credentials"
		}
	case ClientSecretPost:
		switch {
		case hasBasic:
			return "invalid_request", "unexpected basic auth"
		case form.Get("client_id") != p.clientID || !hasBodySecret || bodySecret[0] != p.clientSecret:
			return "invalid_client", "bad client credentials"
		}
	case ClientAssertionJWT:
		switch {
		case hasBasic || hasBodySecret:
			return "invalid_request", "unexpected client secret"
		case form.Get("client_id") != p.clientID:
			return "invalid_client", "bad client_id"
		case form.Get("client_assertion_type") != clientassertion.JWTTypeParam:
			return "invalid_client", "bad client_assertion_type"
		}
		if err := p.verifyAssertion(form.Get("client_assertion")); err != nil {
			return "invalid_client", err.Error()
		}
	default:
		switch {
		case hasBasic || hasBodySecret:
			return "invalid_request", "public clients don't authenticate"
		case form.Get("client_id") != p.clientID:
			return "invalid_client", "bad client_id"
		}
	}
	return "", ""
}

// verifyAssertion verifies an RFC 7523 client assertion.  p.mu must be held.
func (p *TestProvider) verifyAssertion(assertion string) error {
	if p.assertionKey == nil {
		return errors.New("no client assertion key configured")
	}
	tok, err := jwt.ParseSigned(assertion, []jose.SignatureAlgorithm{
		jose.RS256, jose.RS384, jose.RS512, jose.PS256, jose.PS384, jose.PS512,
		jose.ES256, jose.ES384, jose.ES512, jose.HS256, jose.HS384, jose.HS512,
	})
	if err != nil {
		return err
	}
	var claims jwt.Claims
	if err := tok.Claims(p.assertionKey, &claims); err != nil {
		return err
	}
	return claims.Validate(jwt.Expected{
		Issuer:      p.clientID,
		Subject:     p.clientID,
		AnyAudience: jwt.Audience{p.TokenEndpoint()},
		Time:        time.Now(),
	})
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
}

// appendQuery adds v to the uri's existing query.
func appendQuery(uri string, v url.Values) string {
	if strings.Contains(uri, "?") {
		return uri + "&" + v.Encode()
	}
	return uri + "?" + v.Encode()
}

func cloneValues(v url.Values) url.Values {
	cp := make(url.Values, len(v))
	for k, vs := range v {
		cp[k] = append([]string(nil), vs...)
	}
	return cp
}
