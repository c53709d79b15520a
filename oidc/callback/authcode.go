// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/codegrant/codegrant/oidc"
	"github.com/hashicorp/go-hclog"
)

// Config is the client configuration the AuthCode callback uses to exchange
// authorization codes.  The client id and redirect URL come from the
// persisted oidc.Request.
type Config struct {
	// TokenEndpoint is the provider's token endpoint. Required.
	TokenEndpoint string

	// ClientPassword is nil for public clients.
	ClientPassword *oidc.ClientPassword

	// ExchangeOptions are passed to oidc.Exchange (for example:
	// oidc.WithHTTPClient, oidc.WithProviderCA, oidc.WithLogger).
	ExchangeOptions []oidc.Option

	// Logger is used to log rejected callbacks.  Defaults to a null logger.
	Logger hclog.Logger
}

// AuthCode creates an oauth authorization code callback handler which uses a
// RequestReader to read the persisted oidc.Request via the callback's "state"
// parameter.
//
// The state is verified before the code is exchanged: a missing or
// mismatched state calls the ErrorResponseFunc with an error matching
// oidc.ErrInvalidState, and the token endpoint is never called.  The code
// exchange uses the inbound request's context, so a client disconnect
// cancels it.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(c *Config, rr RequestReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: config is nil: %w", op, oidc.ErrInvalidParameter)
	case c.TokenEndpoint == "":
		return nil, fmt.Errorf("%s: token endpoint is empty: %w", op, oidc.ErrInvalidParameter)
	case rr == nil:
		return nil, fmt.Errorf("%s: request reader is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return func(w http.ResponseWriter, req *http.Request) {
		const op = "callback.AuthCode"
		ctx := req.Context()

		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found
		reqState := req.FormValue("state")

		if errCode := req.FormValue("error"); errCode != "" {
			reqError := &AuthenErrorResponse{
				Error:       errCode,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			}
			logger.Warn("provider returned an authorization error", "error", errCode)
			eFn(reqState, reqError, nil, w, req)
			return
		}

		if reqState == "" {
			responseErr := fmt.Errorf("%s: %w", op, &oidc.InvalidStateError{Reason: "callback state is missing"})
			logger.Warn("rejected callback", "error", responseErr)
			eFn(reqState, nil, responseErr, w, req)
			return
		}

		oidcRequest, err := rr.Read(ctx, reqState)
		switch {
		case errors.Is(err, oidc.ErrNotFound) || (err == nil && oidcRequest == nil):
			// could have expired or it could be forged... no way to know for sure
			responseErr := fmt.Errorf("%s: %w", op, &oidc.InvalidStateError{Reason: "no authorization request for callback state"})
			logger.Warn("rejected callback", "error", responseErr)
			eFn(reqState, nil, responseErr, w, req)
			return
		case err != nil:
			responseErr := fmt.Errorf("%s: unable to read authorization request: %w", op, err)
			eFn(reqState, nil, responseErr, w, req)
			return
		}

		// the reader may not have compared the state; never trust it to have.
		if err := oidc.VerifyState(oidcRequest.State(), reqState); err != nil {
			responseErr := fmt.Errorf("%s: %w", op, err)
			logger.Warn("rejected callback", "error", responseErr)
			eFn(reqState, nil, responseErr, w, req)
			return
		}

		reqCode := req.FormValue("code")
		if reqCode == "" {
			responseErr := fmt.Errorf("%s: authorization code is missing: %w", op, oidc.ErrInvalidParameter)
			eFn(reqState, nil, responseErr, w, req)
			return
		}

		cfg := oidc.ExchangeConfig{
			ClientID:       oidcRequest.ClientID(),
			RedirectURI:    oidcRequest.RedirectURL(),
			ClientPassword: c.ClientPassword,
		}
		if v := oidcRequest.PKCEVerifier(); v != nil {
			cfg.CodeVerifier = v.Verifier()
		}
		responseToken, err := oidc.Exchange[oidc.Token](ctx, reqCode, c.TokenEndpoint, cfg, c.ExchangeOptions...)
		if err != nil {
			responseErr := fmt.Errorf("%s: unable to exchange authorization code: %w", op, err)
			eFn(reqState, nil, responseErr, w, req)
			return
		}
		sFn(reqState, responseToken, w, req)
	}, nil
}
