// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides a callback (in the form of an
http.HandlerFunc) for handling oauth provider responses to authorization code
flow (with optional PKCE) authentication attempts.

The handler verifies the returned state against the persisted oidc.Request
before it makes any token request.
*/
package callback
