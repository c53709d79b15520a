// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

var (
	ErrInvalidCertificatePem = errors.New("invalid certificate PEM")
)

// DefaultTimeout bounds a whole request (connect, send and read) made with a
// client from NewClient.  Callers wanting a shorter, per-request limit should
// use a context deadline.
const DefaultTimeout = 30 * time.Second

// NewClient creates a new http client which will use the optional CA
// certificate PEM if provided, otherwise it will use the installed system CA
// chain.  Connections require TLS 1.2 or later.  The client doesn't share a
// transport with any other client.
func NewClient(caPEM string) (*http.Client, error) {
	tr := cleanhttp.DefaultPooledTransport()
	tr.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, ErrInvalidCertificatePem
		}
		tr.TLSClientConfig.RootCAs = certPool
	}

	return &http.Client{
		Transport: tr,
		Timeout:   DefaultTimeout,
	}, nil
}

// ClientContext is a helper function that returns a new Context that carries
// the provided HTTP client. This method sets the same context key used by the
// github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the returned
// context works for those packages as well.
func ClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}
