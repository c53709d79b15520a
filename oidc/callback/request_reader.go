// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"

	"github.com/codegrant/codegrant/oidc"
)

// RequestReader defines an interface for finding and reading an oidc.Request
// persisted when the authorization attempt began (for example, in a cookie
// or a short lived server side cache).
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type RequestReader interface {
	// Read an existing Request entry.  Implementations should return an
	// error that matches oidc.ErrNotFound when there's no request for the
	// state.  Implementations must be concurrently safe, which likely means
	// returning a deep copy.
	Read(ctx context.Context, state string) (oidc.Request, error)
}

// SingleRequestReader implements the RequestReader interface for a single request.
// It is concurrently safe.
type SingleRequestReader struct {
	Request oidc.Request
}

// Read() will return it's single-request if the state matches it's Request.State(),
// otherwise it returns an error of oidc.ErrNotFound. It satisfies the
// RequestReader interface.  Read() is concurrently safe.
func (sr *SingleRequestReader) Read(_ context.Context, state string) (oidc.Request, error) {
	const op = "SingleRequestReader.Read"
	if sr.Request == nil || oidc.VerifyState(sr.Request.State(), state) != nil {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound)
	}
	return sr.Request, nil
}
