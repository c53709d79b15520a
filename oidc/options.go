// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithRandomReader provides an optional source of randomness for: NewID,
// NewState, NewCodeVerifier and NewRequest. The default is crypto/rand.Reader.
// Readers must be safe for concurrent use if they're shared between flows.
func WithRandomReader(r io.Reader) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *idOptions:
			v.withReader = r
		case *verifierOptions:
			v.withReader = r
		case *reqOptions:
			v.withReader = r
		}
	}
}

// WithLength provides an optional length for: NewID and NewCodeVerifier
func WithLength(l int) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *idOptions:
			v.withLength = l
		case *verifierOptions:
			v.withLength = l
		}
	}
}

// WithHTTPClient provides an optional http.Client for: Exchange and
// DiscoverEndpoints. It takes precedence over WithProviderCA.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *exchangeOptions:
			v.withHTTPClient = c
		case *discoveryOptions:
			v.withHTTPClient = c
		}
	}
}

// WithProviderCA provides an optional CA cert PEM used to build the
// http.Client for: Exchange and DiscoverEndpoints
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *exchangeOptions:
			v.withProviderCA = cert
		case *discoveryOptions:
			v.withProviderCA = cert
		}
	}
}

// WithLogger provides an optional logger for: Exchange
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*exchangeOptions); ok {
			v.withLogger = l
		}
	}
}
