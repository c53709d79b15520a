// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codegrant/codegrant/oidc"
)

// testSuccessFn is a test SuccessResponseFunc
func testSuccessFn(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("login successful"))
}

// testFailFn is a test ErrorResponseFunc
func testFailFn(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
	if e != nil {
		status := http.StatusInternalServerError
		if errors.Is(e, oidc.ErrInvalidState) {
			status = http.StatusForbidden
		}
		w.WriteHeader(status)
		j, _ := json.Marshal(&AuthenErrorResponse{
			Error:       "internal-callback-error",
			Description: e.Error(),
		})
		_, _ = w.Write(j)
		return
	}
	if r != nil {
		w.WriteHeader(http.StatusUnauthorized)
		j, _ := json.Marshal(r)
		_, _ = w.Write(j)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	j, _ := json.Marshal(&AuthenErrorResponse{
		Error: "unknown-callback-error",
	})
	_, _ = w.Write(j)
}
