// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"

	"github.com/codegrant/codegrant/oidc"
)

// SuccessResponseFunc is used by Callbacks to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful authorization response. The *oidc.Token is the result
// of a successful token exchange with the provider.  The function should use
// the http.ResponseWriter to send back whatever content (headers, html, JSON,
// etc) it wishes to the client that originated the flow.
//
// The function is also the place to decode the id_token (see
// oidc.DecodeIDToken) and link the provider identity to a user (see the
// identity package).
type SuccessResponseFunc func(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Callbacks to create a http response when the
// callback fails.
//
// The function receives the state returned as part of the authorization
// response.  It also gets parameters for the oauth authorization error
// response and/or the callback error raised while processing the request:
// errors.Is(e, oidc.ErrInvalidState) for a missing or mismatched state,
// errors.Is(e, oidc.ErrOAuthRequest) when the token request failed.  The
// function should use the http.ResponseWriter to send back whatever content
// (headers, html, JSON, etc) it wishes to the client that originated the flow.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://datatracker.ietf.org/doc/html/rfc6749#section-4.1.2.1
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Uri         string `json:"error_uri,omitempty"`
}
