// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeys will generate a test ECDSA P-256 pub/priv key pair
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	derBytes, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(err)
	priv = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: derBytes}))

	derBytes, err = x509.MarshalPKIXPublicKey(privateKey.Public())
	require.NoError(err)
	pub = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: derBytes}))

	return pub, priv
}

// TestSignJWT will bundle the provided claims into a test signed JWT. The provided key
// must be ECDSA.
func TestSignJWT(t *testing.T, ecdsaPrivKeyPEM string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)
	block, _ := pem.Decode([]byte(ecdsaPrivKeyPEM))
	require.NotNil(block, "unable to decode private key PEM")
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(err)

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	builder := jwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		builder = builder.Claims(privateClaims)
	}
	raw, err := builder.Serialize()
	require.NoError(err)
	return raw
}

// TestEncodeJWT returns an unsigned compact JWT (the signature segment is a
// placeholder) with the header and payload JSON encoded.  It's useful for
// testing DecodeIDToken with arbitrary payloads.
func TestEncodeJWT(t *testing.T, header, payload interface{}) string {
	t.Helper()
	require := require.New(t)
	h, err := json.Marshal(header)
	require.NoError(err)
	p, err := json.Marshal(payload)
	require.NoError(err)
	enc := base64.RawURLEncoding.EncodeToString
	return enc(h) + "." + enc(p) + "." + enc([]byte("unsigned"))
}
