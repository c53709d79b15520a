// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/codegrant/codegrant/oidc/internal/strutils"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

// Request represents one oauth authorization code request for a user. It
// contains the data needed to uniquely represent that one-time flow across
// the multiple interactions needed to complete it: the State() and the
// optional PKCEVerifier() must be persisted by the caller (for example in a
// short-lived, http-only cookie) until the callback is received.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// request between the authorization request and the callback.
	State() string

	// AuthEndpoint is the provider's authorization endpoint.
	AuthEndpoint() string

	// ClientID is the oauth client_id
	ClientID() string

	// RedirectURL is where the provider will redirect the user agent with
	// the authorization code.
	RedirectURL() string

	// Scopes is the set of requested scopes. It may be empty.
	Scopes() []string

	// PKCEVerifier is the optional code verifier. When not nil, only its
	// challenge is sent with the authorization request; the verifier itself
	// is sent with the token exchange.
	PKCEVerifier() CodeVerifier

	// AuthURLParams are additional query parameters which take precedence
	// over the built-in ones.
	AuthURLParams() map[string]string

	// UILocales are optional end-user's preferred languages
	UILocales() []language.Tag

	// AuthURL returns the URL the user agent is redirected to.
	AuthURL() (string, error)
}

// Req represents the oauth request used for the authorization code flow.
// It's immutable after NewRequest returns.
type Req struct {
	state        string
	authEndpoint string
	clientID     string
	redirectURL  string
	scopes       []string
	verifier     CodeVerifier
	params       map[string]string
	uiLocales    []language.Tag
}

// ensure that Req implements the Request interface
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req) for the provider's authorization
// endpoint, the client and the redirect URL.  A state is generated with
// NewState when one isn't supplied with WithState.
//
// Supported options: WithState, WithScopes, WithPKCE, WithPKCEVerifier,
// WithAuthURLParams, WithUILocales, WithRandomReader
func NewRequest(authEndpoint, clientID, redirectURL string, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	var errs *multierror.Error
	if err := validateEndpoint(authEndpoint); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("authorization endpoint: %w", err))
	}
	if clientID == "" {
		errs = multierror.Append(errs, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if redirectURL == "" {
		errs = multierror.Append(errs, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opts := getReqOpts(opt...)

	state := opts.withState
	if state == "" {
		var err error
		if state, err = NewState(WithRandomReader(opts.withReader)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	verifier := opts.withVerifier
	switch {
	case opts.withVerifierSet && isNil(verifier):
		return nil, fmt.Errorf("%s: PKCE verifier is nil: %w", op, ErrNilParameter)
	case verifier != nil:
		if err := ValidateCodeVerifier(verifier.Verifier()); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		verifier = verifier.Copy()
	case opts.withPKCE:
		v, err := NewCodeVerifier(WithRandomReader(opts.withReader))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		verifier = v
	}

	var params map[string]string
	if len(opts.withAuthURLParams) > 0 {
		params = make(map[string]string, len(opts.withAuthURLParams))
		for k, v := range opts.withAuthURLParams {
			params[k] = v
		}
	}

	scopes := strutils.RemoveDuplicatesStable(opts.withScopes, false)
	for i := range scopes {
		scopes[i] = strings.TrimSpace(scopes[i])
	}

	return &Req{
		state:        state,
		authEndpoint: authEndpoint,
		clientID:     clientID,
		redirectURL:  redirectURL,
		scopes:       scopes,
		verifier:     verifier,
		params:       params,
		uiLocales:    append([]language.Tag(nil), opts.withUILocales...),
	}, nil
}

func (r *Req) State() string        { return r.state }        // State implements the Request.State() interface function.
func (r *Req) AuthEndpoint() string { return r.authEndpoint } // AuthEndpoint implements the Request.AuthEndpoint() interface function.
func (r *Req) ClientID() string     { return r.clientID }     // ClientID implements the Request.ClientID() interface function.
func (r *Req) RedirectURL() string  { return r.redirectURL }  // RedirectURL implements the Request.RedirectURL() interface function.

// Scopes implements the Request.Scopes() interface function and returns a copy.
func (r *Req) Scopes() []string {
	if len(r.scopes) == 0 {
		return nil
	}
	return append([]string(nil), r.scopes...)
}

// PKCEVerifier implements the Request.PKCEVerifier() interface function and
// returns a copy.
func (r *Req) PKCEVerifier() CodeVerifier {
	if r.verifier == nil {
		return nil
	}
	return r.verifier.Copy()
}

// AuthURLParams implements the Request.AuthURLParams() interface function and
// returns a copy.
func (r *Req) AuthURLParams() map[string]string {
	if len(r.params) == 0 {
		return nil
	}
	cp := make(map[string]string, len(r.params))
	for k, v := range r.params {
		cp[k] = v
	}
	return cp
}

// UILocales implements the Request.UILocales() interface function and returns
// a copy.
func (r *Req) UILocales() []language.Tag {
	if len(r.uiLocales) == 0 {
		return nil
	}
	return append([]language.Tag(nil), r.uiLocales...)
}

// AuthURL will generate a URL the caller can use to kick off an oauth
// authorization code flow. It always sets response_type=code, client_id,
// redirect_uri and state.  The scope is only set when the request has scopes,
// and the PKCE code_challenge/code_challenge_method=S256 pair is only set
// when the request has a verifier. AuthURLParams are applied last, so they
// override any built-in parameter with the same name.  Parameters with those
// names in the authorization endpoint's own query are dropped.
//
// No network request is made.
func (r *Req) AuthURL() (string, error) {
	const op = "Req.AuthURL"
	cfg := oauth2.Config{
		ClientID:    r.clientID,
		RedirectURL: r.redirectURL,
		Endpoint:    oauth2.Endpoint{AuthURL: r.authEndpoint},
		Scopes:      r.scopes,
	}
	var authCodeOpts []oauth2.AuthCodeOption
	if r.verifier != nil {
		challenge, err := CreateCodeChallenge(S256, r.verifier)
		if err != nil {
			return "", fmt.Errorf("%s: unable to create code challenge: %w", op, err)
		}
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", string(S256)),
		)
	}
	if len(r.uiLocales) > 0 {
		locales := make([]string, 0, len(r.uiLocales))
		for _, l := range r.uiLocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	keys := make([]string, 0, len(r.params))
	for k := range r.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam(k, r.params[k]))
	}
	endpoint, err := endpointWithout(r.authEndpoint, append(keys, builtInAuthParams...))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	cfg.Endpoint.AuthURL = endpoint
	return cfg.AuthCodeURL(r.state, authCodeOpts...), nil
}

// builtInAuthParams are the parameters AuthURL sets itself.
var builtInAuthParams = []string{
	"response_type",
	"client_id",
	"redirect_uri",
	"state",
	"scope",
	"code_challenge",
	"code_challenge_method",
	"ui_locales",
}

// endpointWithout removes names from the endpoint's own query, so every
// parameter AuthURL sets has exactly one value.
func endpointWithout(endpoint string, names []string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("endpoint %q is invalid: %w: %w", endpoint, ErrInvalidParameter, err)
	}
	if u.RawQuery == "" {
		return endpoint, nil
	}
	q := u.Query()
	for _, n := range names {
		q.Del(n)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// validateEndpoint requires an absolute http or https URL.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is empty: %w", ErrInvalidParameter)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q is invalid: %w: %w", endpoint, ErrInvalidParameter, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an absolute http(s) URL: %w", endpoint, ErrInvalidParameter)
	}
	return nil
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withState         string
	withScopes        []string
	withPKCE          bool
	withVerifier      CodeVerifier
	withVerifierSet   bool
	withAuthURLParams map[string]string
	withUILocales     []language.Tag
	withReader        io.Reader
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithState provides an optional caller supplied state for the request.
func WithState(state string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withState = state
		}
	}
}

// WithScopes provides an optional set of scopes. Duplicates and empty scopes
// are removed; order is not significant to providers.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withScopes = append(o.withScopes, scopes...)
		}
	}
}

// WithPKCE requests that NewRequest generate a new S256 code verifier for
// the request.
//
// See: https://datatracker.ietf.org/doc/html/rfc7636
func WithPKCE() Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withPKCE = true
		}
	}
}

// WithPKCEVerifier provides an existing code verifier for the request. It
// implies WithPKCE.  A nil verifier is an ErrNilParameter.
func WithPKCEVerifier(v CodeVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withPKCE = true
			o.withVerifier = v
			o.withVerifierSet = true
		}
	}
}

// WithAuthURLParams provides optional additional query parameters for the
// authorization URL (for example: response_mode, prompt, login_hint or an
// OIDC nonce).  They're applied last and override built-in parameters of
// the same name.
func WithAuthURLParams(params map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			if o.withAuthURLParams == nil {
				o.withAuthURLParams = make(map[string]string, len(params))
			}
			for k, v := range params {
				o.withAuthURLParams[k] = v
			}
		}
	}
}

// WithUILocales provides optional End-User's preferred languages and scripts
// for the user interface, sent as the OIDC ui_locales parameter.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withUILocales = append(o.withUILocales, locales...)
		}
	}
}
