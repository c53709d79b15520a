// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for the client side of the OAuth 2.0 authorization code
flow (RFC 6749 section 4.1), with PKCE (RFC 7636) and the OIDC id_token.

Primary types and functions provided by the package

* Request: represents one authorization code flow for a user.  It contains
the state, the optional PKCE verifier and everything else needed to build the
authorization URL.  Requests are immutable; the caller persists the State()
and PKCEVerifier() across the redirect (for example, in an http-only cookie).

* NewState, NewID and NewCodeVerifier: unguessable, URL-safe random values
from an injectable source (crypto/rand by default).

* VerifyState: the constant-time check of the callback state against the
persisted state.  It must pass before any token request is made.

* Exchange: exchanges an authorization code at the token endpoint, decoding
the JSON response into a caller-declared type.  Token is the typical shape.
Clients authenticate with a secret in the body, HTTP Basic auth, or a signed
client assertion (see the clientassertion package), or not at all for public
clients.

* DecodeIDToken: decodes the payload of a compact id_token received directly
from the token endpoint.  It does NOT verify the signature.

* DiscoverEndpoints: reads a provider's discovery document.

* TestProvider: a local provider for tests.

The oidc.callback package

The callback package includes the ability to create a http.HandlerFunc which
can be used for the 3rd leg of the flow where the state is verified and the
authorization code is exchanged for tokens.

The oidc.clientassertion package

The clientassertion package signs RFC 7523 client assertion JWTs.
*/
package oidc
