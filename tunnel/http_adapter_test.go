// Copyright (c) 2026 The ratunnel Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tunnel

import (
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatchHTTPRequest(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/uptime", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	msg := inner{Type: msgHTTPRequest, RequestID: "r1", Method: "GET", URL: "http://relay.local/uptime"}
	resp := dispatchHTTPRequest(handler, msg)

	require.Equal(t, "r1", resp.RequestID)
	require.Equal(t, http.StatusOK, resp.Status)

	body, err := base64.StdEncoding.DecodeString(string(resp.Body))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestDispatchHTTPRequestBadURL(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	msg := inner{Type: msgHTTPRequest, RequestID: "r2", Method: "GET", URL: "://not-a-url"}
	resp := dispatchHTTPRequest(handler, msg)
	require.NotEmpty(t, resp.Err)
}

func TestWithBodyRoundTripsThroughDispatch(t *testing.T) {
	var gotBody []byte
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})

	msg := inner{Type: msgHTTPRequest, RequestID: "r3", Method: "POST", URL: "http://relay.local/echo"}
	WithBody([]byte("hello world"))(&msg)

	resp := dispatchHTTPRequest(handler, msg)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, []byte("hello world"), gotBody)
}
