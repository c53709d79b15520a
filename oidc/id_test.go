// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var urlSafeID = regexp.MustCompile(`^([A-Za-z]+_)?[0-9A-Za-z]+$`)

func TestNewID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		opt        []Option
		wantErr    bool
		wantIsErr  error
		wantPrefix string
		wantLen    int
	}{
		{
			name:    "no-prefix",
			wantLen: DefaultIDLength,
		},
		{
			name:       "with-prefix",
			opt:        []Option{WithPrefix("alice")},
			wantPrefix: "alice",
			wantLen:    DefaultIDLength + len("alice_"),
		},
		{
			name:    "with-length",
			opt:     []Option{WithLength(64)},
			wantLen: 64,
		},
		{
			name:      "too-short",
			opt:       []Option{WithLength(MinIDLength - 1)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "failing-reader",
			opt:       []Option{WithRandomReader(bytes.NewReader(nil))},
			wantErr:   true,
			wantIsErr: ErrRandomSource,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewID(tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				assert.Empty(got)
				return
			}
			require.NoError(err)
			if tt.wantPrefix != "" {
				assert.Truef(strings.HasPrefix(got, tt.wantPrefix+"_"), "NewID() = %v and wanted prefix %s", got, tt.wantPrefix)
			}
			assert.Equalf(tt.wantLen, len(got), "NewID() = %v, with len of %d and wanted len of %v", got, len(got), tt.wantLen)
			assert.Regexp(urlSafeID, got)
		})
	}
}

func TestNewState(t *testing.T) {
	t.Parallel()
	t.Run("unique-concurrent", func(t *testing.T) {
		assert := assert.New(t)
		const workers, perWorker = 8, 250
		var mu sync.Mutex
		seen := make(map[string]struct{}, workers*perWorker)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					s, err := NewState()
					if !assert.NoError(err) {
						return
					}
					mu.Lock()
					seen[s] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Len(seen, workers*perWorker)
		for s := range seen {
			assert.True(strings.HasPrefix(s, statePrefix+"_"))
			assert.Regexp(urlSafeID, s)
		}
	})
	t.Run("seeded-reader", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewState(WithRandomReader(rand.New(rand.NewSource(7))))
		require.NoError(err)
		b, err := NewState(WithRandomReader(rand.New(rand.NewSource(7))))
		require.NoError(err)
		assert.Equal(a, b)
	})
	t.Run("failing-reader", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewState(WithRandomReader(bytes.NewReader([]byte{1, 2, 3})))
		require.Error(err)
		assert.ErrorIs(err, ErrRandomSource)
	})
}

func Test_WithPrefix(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getIDOpts(WithPrefix("alice"))
	testOpts := idDefaults()
	testOpts.withPrefix = "alice"
	assert.Equal(opts, testOpts)
}
