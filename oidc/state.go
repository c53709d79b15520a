// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/subtle"
	"fmt"
)

// VerifyState compares the state persisted when the authorization request was
// created with the state received by the callback. Callers must verify the
// state before making any token request: a mismatch invalidates the entire
// authorization attempt.
//
// The comparison is exact (byte-for-byte) and constant-time. An
// *InvalidStateError is returned when either value is empty or they differ.
func VerifyState(persisted, received string) error {
	const op = "oidc.VerifyState"
	switch {
	case persisted == "":
		return fmt.Errorf("%s: %w", op, &InvalidStateError{Reason: "no persisted state for this authorization attempt"})
	case received == "":
		return fmt.Errorf("%s: %w", op, &InvalidStateError{Reason: "callback state is missing"})
	case subtle.ConstantTimeCompare([]byte(persisted), []byte(received)) != 1:
		return fmt.Errorf("%s: %w", op, &InvalidStateError{Reason: "callback state does not match persisted state"})
	}
	return nil
}
