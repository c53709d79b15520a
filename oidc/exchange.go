// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/codegrant/codegrant/oidc/clientassertion"
	sdkHttp "github.com/codegrant/codegrant/sdk/http"
	"github.com/hashicorp/go-hclog"
)

// AuthMethod is how a confidential client authenticates to the token
// endpoint.
type AuthMethod string

const (
	// ClientSecretPost sends client_id and client_secret in the request body.
	ClientSecretPost AuthMethod = "client_secret"

	// ClientSecretBasic sends "Authorization: Basic
	// base64(client_id:client_secret)" and neither value in the body.
	ClientSecretBasic AuthMethod = "http_basic_auth"

	// ClientAssertionJWT sends client_id, client_assertion_type and a signed
	// client_assertion in the request body (RFC 7523).
	ClientAssertionJWT AuthMethod = "client_assertion"
)

// maxResponseSize limits how much of a token endpoint response is read.
const maxResponseSize = 1 << 20

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Serializer produces a signed client assertion. *clientassertion.JWT
// implements it.
type Serializer interface {
	Serialize() (string, error)
}

var _ Serializer = (*clientassertion.JWT)(nil)

// ClientPassword holds a confidential client's credentials and how they're
// presented.  Exactly one AuthMethod applies per exchange.
type ClientPassword struct {
	// ClientSecret is required for ClientSecretPost and ClientSecretBasic.
	ClientSecret ClientSecret

	// AuthenticateWith defaults to ClientSecretPost when empty.
	AuthenticateWith AuthMethod

	// Assertion is required for ClientAssertionJWT and called once per
	// exchange.
	Assertion Serializer
}

// method returns the effective AuthMethod.
func (p *ClientPassword) method() AuthMethod {
	if p.AuthenticateWith == "" {
		return ClientSecretPost
	}
	return p.AuthenticateWith
}

// ExchangeConfig is the client configuration for an authorization code
// exchange.
type ExchangeConfig struct {
	// ClientID is the oauth client_id. Required.
	ClientID string

	// RedirectURI is sent as redirect_uri when not empty.  It must match the
	// one sent with the authorization request, if one was.
	RedirectURI string

	// ClientPassword is nil for public clients, in which case only client_id
	// identifies the client.
	ClientPassword *ClientPassword

	// CodeVerifier is the request's PKCE verifier, if any.  It may be used
	// together with a ClientPassword.
	CodeVerifier string
}

// Validate the ExchangeConfig.
func (c *ExchangeConfig) Validate() error {
	const op = "ExchangeConfig.Validate"
	if c == nil {
		return fmt.Errorf("%s: exchange config is nil: %w", op, ErrNilParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.CodeVerifier != "" {
		if err := ValidateCodeVerifier(c.CodeVerifier); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if p := c.ClientPassword; p != nil {
		switch p.method() {
		case ClientSecretPost, ClientSecretBasic:
			if p.ClientSecret == "" {
				return fmt.Errorf("%s: client secret is empty for %s: %w", op, p.method(), ErrInvalidParameter)
			}
			// RFC 7617 section 2: the user-id ends at the first colon
			if p.method() == ClientSecretBasic && strings.Contains(c.ClientID, ":") {
				return fmt.Errorf("%s: client id contains a colon and can't be sent with %s: %w", op, ClientSecretBasic, ErrInvalidParameter)
			}
		case ClientAssertionJWT:
			if p.Assertion == nil {
				return fmt.Errorf("%s: client assertion is nil: %w", op, ErrNilParameter)
			}
		default:
			return fmt.Errorf("%s: %q is invalid: %w", op, p.AuthenticateWith, ErrUnsupportedAuthMethod)
		}
	}
	return nil
}

// Validator is implemented by caller-declared response and claim shapes that
// want runtime checks.  Exchange and DecodeIDToken call it when *T implements
// it.
type Validator interface {
	Validate() error
}

// Exchange trades an authorization code for the token endpoint's response,
// decoded into a new T.  Token is a ready made T; any JSON-decodable type
// works.  Unless *T implements Validator, the response is only required to
// be a JSON object: its shape isn't checked.
//
// Every failure to get a usable response (transport errors, context
// cancellation, non-2xx statuses, RFC 6749 error responses, bodies that
// aren't a JSON object) is returned as a *RequestError.  The state returned
// to the callback must be verified (see VerifyState) before Exchange is
// called.
//
// Nothing is retried.
//
// Supported options: WithHTTPClient, WithProviderCA, WithLogger
func Exchange[T any](ctx context.Context, code, tokenEndpoint string, cfg ExchangeConfig, opt ...Option) (*T, error) {
	const op = "oidc.Exchange"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if err := validateEndpoint(tokenEndpoint); err != nil {
		return nil, fmt.Errorf("%s: token endpoint: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getExchangeOpts(opt...)
	client, err := httpClient(opts.withHTTPClient, opts.withProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := newTokenRequest(ctx, code, tokenEndpoint, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger := opts.withLogger
	method := "none"
	if cfg.ClientPassword != nil {
		method = string(cfg.ClientPassword.method())
	}
	logger.Debug("exchanging authorization code", "token_endpoint", tokenEndpoint, "auth_method", method, "pkce", cfg.CodeVerifier != "")

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("token request failed", "token_endpoint", tokenEndpoint, "error", err)
		return nil, fmt.Errorf("%s: %w", op, &RequestError{Err: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, &RequestError{StatusCode: resp.StatusCode, Body: body, Err: fmt.Errorf("unable to read response: %w", err)})
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%s: %w", op, &RequestError{StatusCode: resp.StatusCode, Body: body[:maxResponseSize], Err: fmt.Errorf("response exceeds %d bytes: %w", maxResponseSize, ErrInvalidResponse)})
	}

	if reqErr := checkTokenResponse(resp.StatusCode, body); reqErr != nil {
		logger.Warn("token endpoint rejected exchange", "token_endpoint", tokenEndpoint, "status", resp.StatusCode, "error_code", reqErr.ErrorCode)
		return nil, fmt.Errorf("%s: %w", op, reqErr)
	}

	var tk T
	if err := json.Unmarshal(body, &tk); err != nil {
		return nil, fmt.Errorf("%s: %w", op, &RequestError{StatusCode: resp.StatusCode, Body: body, Err: err})
	}
	if v, ok := any(&tk).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
		}
	}
	logger.Debug("exchanged authorization code", "token_endpoint", tokenEndpoint, "status", resp.StatusCode)
	return &tk, nil
}

// newTokenRequest builds the RFC 6749 section 4.1.3 access token request.
func newTokenRequest(ctx context.Context, code, tokenEndpoint string, cfg ExchangeConfig) (*http.Request, error) {
	const op = "oidc.newTokenRequest"
	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}
	if cfg.RedirectURI != "" {
		form.Set("redirect_uri", cfg.RedirectURI)
	}
	if cfg.CodeVerifier != "" {
		form.Set("code_verifier", cfg.CodeVerifier)
	}

	var basicAuth bool
	switch p := cfg.ClientPassword; {
	case p == nil:
		form.Set("client_id", cfg.ClientID)
	case p.method() == ClientSecretBasic:
		basicAuth = true
	case p.method() == ClientAssertionJWT:
		assertion, err := p.Assertion.Serialize()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create client assertion: %w", op, err)
		}
		form.Set("client_id", cfg.ClientID)
		form.Set("client_assertion_type", clientassertion.JWTTypeParam)
		form.Set("client_assertion", assertion)
	default:
		form.Set("client_id", cfg.ClientID)
		form.Set("client_secret", string(p.ClientSecret))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w: %w", op, ErrInvalidParameter, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if basicAuth {
		req.SetBasicAuth(cfg.ClientID, string(cfg.ClientPassword.ClientSecret))
	}
	return req, nil
}

// tokenErrorResponse is the RFC 6749 section 5.2 error response.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// checkTokenResponse returns a *RequestError unless the response is a 2xx
// JSON object without an "error" member.
func checkTokenResponse(status int, body []byte) *RequestError {
	var errResp tokenErrorResponse
	isObject := isJSONObject(body)
	if isObject {
		// a valid object that doesn't fit tokenErrorResponse (e.g. a
		// numeric "error") simply has no error code.
		_ = json.Unmarshal(body, &errResp)
	}
	switch {
	case status < 200 || status > 299:
		return &RequestError{
			StatusCode:       status,
			Body:             body,
			ErrorCode:        errResp.Error,
			ErrorDescription: errResp.ErrorDescription,
			Err:              fmt.Errorf("unexpected status %q", http.StatusText(status)),
		}
	case !isObject:
		return &RequestError{
			StatusCode: status,
			Body:       body,
			Err:        fmt.Errorf("response is not a json object: %w", ErrInvalidResponse),
		}
	case errResp.Error != "":
		return &RequestError{
			StatusCode:       status,
			Body:             body,
			ErrorCode:        errResp.Error,
			ErrorDescription: errResp.ErrorDescription,
		}
	}
	return nil
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}

// httpClient returns c when it's not nil, otherwise a new client trusting
// the optional CA PEM.
func httpClient(c *http.Client, caPEM string) (*http.Client, error) {
	const op = "oidc.httpClient"
	if c != nil {
		return c, nil
	}
	client, err := sdkHttp.NewClient(caPEM)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// exchangeOptions is the set of available options for Exchange
type exchangeOptions struct {
	withHTTPClient *http.Client
	withProviderCA string
	withLogger     hclog.Logger
}

// exchangeDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func exchangeDefaults() exchangeOptions {
	return exchangeOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getExchangeOpts gets the defaults and applies the opt overrides passed in
func getExchangeOpts(opt ...Option) exchangeOptions {
	opts := exchangeDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}
