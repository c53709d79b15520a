// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/codegrant/codegrant/oidc/internal/strutils"
	sdkHttp "github.com/codegrant/codegrant/sdk/http"
	"github.com/coreos/go-oidc/v3/oidc"
)

// Endpoints are the parts of an OIDC provider's discovery document used by an
// authorization code flow.
type Endpoints struct {
	Issuer      string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	JWKSURL     string

	// CodeChallengeMethods is code_challenge_methods_supported
	CodeChallengeMethods []string

	// TokenAuthMethods is token_endpoint_auth_methods_supported
	TokenAuthMethods []string

	// ScopesSupported is scopes_supported
	ScopesSupported []string
}

// discoveryClaims are the discovery document members go-oidc doesn't expose
// directly.
type discoveryClaims struct {
	JWKSURL              string   `json:"jwks_uri"`
	CodeChallengeMethods []string `json:"code_challenge_methods_supported"`
	TokenAuthMethods     []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported      []string `json:"scopes_supported"`
}

// DiscoverEndpoints fetches the issuer's /.well-known/openid-configuration
// and returns its endpoints.  The document's issuer must equal issuer.  No
// tokens are verified.
//
// Supported options: WithHTTPClient, WithProviderCA
func DiscoverEndpoints(ctx context.Context, issuer string, opt ...Option) (*Endpoints, error) {
	const op = "oidc.DiscoverEndpoints"
	if err := validateEndpoint(issuer); err != nil {
		return nil, fmt.Errorf("%s: issuer: %w", op, err)
	}
	opts := getDiscoveryOpts(opt...)
	client, err := httpClient(opts.withHTTPClient, opts.withProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(sdkHttp.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover provider: %w", op, err)
	}
	var extra discoveryClaims
	if err := p.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%s: unable to read discovery document: %w: %w", op, ErrInvalidResponse, err)
	}
	ep := p.Endpoint()
	return &Endpoints{
		Issuer:               issuer,
		AuthURL:              ep.AuthURL,
		TokenURL:             ep.TokenURL,
		UserInfoURL:          p.UserInfoEndpoint(),
		JWKSURL:              extra.JWKSURL,
		CodeChallengeMethods: extra.CodeChallengeMethods,
		TokenAuthMethods:     extra.TokenAuthMethods,
		ScopesSupported:      extra.ScopesSupported,
	}, nil
}

// SupportsPKCE reports whether the provider advertises the S256 challenge
// method.  Providers that omit code_challenge_methods_supported may still
// support it.
func (e *Endpoints) SupportsPKCE() bool {
	return strutils.StrListContains(e.CodeChallengeMethods, string(S256))
}

// SupportsAuthMethod reports whether the provider advertises the client
// authentication method.  When token_endpoint_auth_methods_supported is
// omitted, the OIDC Discovery default is client_secret_basic.
func (e *Endpoints) SupportsAuthMethod(m AuthMethod) bool {
	supported := e.TokenAuthMethods
	if len(supported) == 0 {
		supported = []string{"client_secret_basic"}
	}
	switch m {
	case ClientSecretPost:
		return strutils.StrListContains(supported, "client_secret_post")
	case ClientSecretBasic:
		return strutils.StrListContains(supported, "client_secret_basic")
	case ClientAssertionJWT:
		return strutils.StrListContains(supported, "private_key_jwt") ||
			strutils.StrListContains(supported, "client_secret_jwt")
	default:
		return false
	}
}

// discoveryOptions is the set of available options for DiscoverEndpoints
type discoveryOptions struct {
	withHTTPClient *http.Client
	withProviderCA string
}

// discoveryDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func discoveryDefaults() discoveryOptions {
	return discoveryOptions{}
}

// getDiscoveryOpts gets the defaults and applies the opt overrides passed in
func getDiscoveryOpts(opt ...Option) discoveryOptions {
	opts := discoveryDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
