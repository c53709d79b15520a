// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		persisted string
		received  string
		wantErr   bool
	}{
		{name: "equal", persisted: "st_abc123", received: "st_abc123"},
		{name: "mismatch", persisted: "st_abc123", received: "st_abc124", wantErr: true},
		{name: "prefix-only", persisted: "st_abc123", received: "st_abc", wantErr: true},
		{name: "case-differs", persisted: "st_ABC", received: "st_abc", wantErr: true},
		{name: "missing-received", persisted: "st_abc123", wantErr: true},
		{name: "missing-persisted", received: "st_abc123", wantErr: true},
		{name: "both-empty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			err := VerifyState(tt.persisted, tt.received)
			if !tt.wantErr {
				require.NoError(err)
				return
			}
			require.Error(err)
			assert.Truef(errors.Is(err, ErrInvalidState), "wanted \"%s\" but got \"%s\"", ErrInvalidState, err)
			var stateErr *InvalidStateError
			require.True(errors.As(err, &stateErr))
			assert.NotEmpty(stateErr.Reason)
		})
	}
}
