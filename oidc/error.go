// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrRandomSource               = errors.New("secure random source failed")
	ErrInvalidCodeVerifier        = errors.New("invalid PKCE code verifier")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrUnsupportedAuthMethod      = errors.New("unsupported client authentication method")
	ErrInvalidState               = errors.New("invalid oauth state")
	ErrOAuthRequest               = errors.New("oauth request failed")
	ErrTokenDecode                = errors.New("token decode failed")
	ErrInvalidResponse            = errors.New("response failed validation")
	ErrNotFound                   = errors.New("not found")
)

// InvalidStateError is returned when the state received by a callback is
// missing or doesn't match the state persisted for the authorization attempt.
// It matches ErrInvalidState via errors.Is.
type InvalidStateError struct {
	Reason string
}

// Error satisfies the error interface.
func (e *InvalidStateError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrInvalidState.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidState, e.Reason)
}

// Is reports whether target is ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// RequestError is returned when a call to the token endpoint fails. A zero
// StatusCode means no response was received (a transport failure); otherwise
// StatusCode and Body hold what the provider sent back.  It matches
// ErrOAuthRequest via errors.Is.
type RequestError struct {
	// StatusCode is the http status of the response, or 0 if there was none.
	StatusCode int

	// Body is the raw response body (possibly truncated), if any.
	Body []byte

	// ErrorCode and ErrorDescription are the RFC 6749 section 5.2 "error"
	// and "error_description" values, when the provider sent them.
	ErrorCode        string
	ErrorDescription string

	// Err is the underlying cause, if any.
	Err error
}

// Error satisfies the error interface.
func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(ErrOAuthRequest.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.ErrorCode != "" {
		fmt.Fprintf(&b, ": %s", e.ErrorCode)
		if e.ErrorDescription != "" {
			fmt.Fprintf(&b, " (%s)", e.ErrorDescription)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrOAuthRequest.
func (e *RequestError) Is(target error) bool {
	return target == ErrOAuthRequest
}

// IsTransportFailure reports whether the request failed before any response
// was received from the provider (dial errors, timeouts, cancellation).
func (e *RequestError) IsTransportFailure() bool {
	return e.StatusCode == 0
}

// DecodeError is returned when a compact token can't be decoded. It matches
// ErrTokenDecode via errors.Is.
type DecodeError struct {
	Reason string
	Err    error
}

// Error satisfies the error interface.
func (e *DecodeError) Error() string {
	msg := ErrTokenDecode.Error()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrTokenDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrTokenDecode
}
