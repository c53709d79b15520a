// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package clientassertion signs JWTs with a private key or client secret for
// use as an RFC 7523 client_assertion when authenticating to a token endpoint
// (a.k.a. private_key_jwt and client_secret_jwt).
//
// Example usage:
//
//	ca, err := clientassertion.NewJWT("client-id", []string{"https://idp/token"},
//		clientassertion.WithRSAKey(rsaPrivateKey, clientassertion.RS256),
//		clientassertion.WithKeyID("jwks-key-id"),
//	)
//	jwtString, err := ca.Serialize()
//
// A *JWT can be handed to oidc.ClientPassword as its Assertion, in which case
// a freshly signed token is produced for every exchange.
package clientassertion
