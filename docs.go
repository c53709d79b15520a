// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// codegrant provides a collection of related packages which implement the
// OAuth 2.0 authorization code grant, including OpenID Connect id_tokens, on
// behalf of a host application.
//
// See the oidc package for building authorization requests, PKCE, state
// verification and token exchange, and the identity package for linking a
// provider account to a local user.
package codegrant
