// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/hashicorp/go-secure-stdlib/base62"
)

const (
	// DefaultIDLength is the default number of random characters in an ID.
	// 32 base62 characters carry roughly 190 bits of entropy.
	DefaultIDLength = 32

	// MinIDLength is the shortest ID NewID will produce.
	MinIDLength = 22

	statePrefix = "st"
)

// NewID generates a random ID with an optional prefix.  The ID generated is
// suitable for a State or any other single-use secret that's embedded
// unescaped in a URL: it only uses the characters [0-9A-Za-z] plus "_" when a
// prefix is requested.
//
// Supported options: WithPrefix, WithLength, WithRandomReader
//
// A failure of the random source is returned as ErrRandomSource and is not
// recoverable: there is no fallback to a weaker source.
func NewID(opt ...Option) (string, error) {
	const op = "oidc.NewID"
	opts := getIDOpts(opt...)
	if opts.withLength < MinIDLength {
		return "", fmt.Errorf("%s: length %d is less than %d: %w", op, opts.withLength, MinIDLength, ErrInvalidParameter)
	}
	id, err := randomBase62(opts.withReader, opts.withLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w: %w", op, ErrRandomSource, err)
	}
	if opts.withPrefix != "" {
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	}
	return id, nil
}

// NewState generates a new oauth state: an opaque, single-use value bound to
// one authorization attempt.
//
// Supported options: WithRandomReader, WithLength
func NewState(opt ...Option) (string, error) {
	const op = "oidc.NewState"
	opt = append([]Option{WithPrefix(statePrefix)}, opt...)
	s, err := NewID(opt...)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate a state: %w", op, err)
	}
	return s, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
	withLength int
	withReader io.Reader
}

// idDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func idDefaults() idOptions {
	return idOptions{
		withLength: DefaultIDLength,
	}
}

// getIDOpts gets the defaults and applies the opt overrides passed
// in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID.  When this options is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}

// randomBase62 reads from crypto/rand.Reader when r is nil.
func randomBase62(r io.Reader, length int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	return base62.RandomWithReader(length, r)
}
