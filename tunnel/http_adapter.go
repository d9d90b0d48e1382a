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
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	log "github.com/sirupsen/logrus"
)

// dispatchHTTPRequest materializes an http_request inner message as a
// real *http.Request, drives it through handler using an
// httptest.ResponseRecorder, and frames the recorded response back as
// an http_response. Bodies are always base64-encoded at this layer, in
// both directions, avoiding a content-type-sniffing branch.
func dispatchHTTPRequest(handler http.Handler, msg inner) inner {
	resp := inner{Type: msgHTTPResponse, RequestID: msg.RequestID}

	var body io.Reader
	if len(msg.Body) > 0 {
		decoded, err := base64.StdEncoding.DecodeString(string(msg.Body))
		if err != nil {
			resp.Err = fmt.Sprintf("failed to decode request body: %v", err)
			return resp
		}
		body = bytes.NewReader(decoded)
	}
	req, err := http.NewRequest(msg.Method, msg.URL, body)
	if err != nil {
		resp.Err = fmt.Sprintf("failed to construct request: %v", err)
		return resp
	}
	for k, v := range msg.Headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp.Status = rec.Code
	resp.Headers = flattenHeader(rec.Header())
	resp.Body = []byte(base64.StdEncoding.EncodeToString(rec.Body.Bytes()))
	log.Tracef("dispatched virtual HTTP request %s %s -> %d", msg.Method, msg.URL, resp.Status)
	return resp
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// FetchOption configures a client-side virtual HTTP request.
type FetchOption func(*inner)

// WithMethod sets the HTTP method, defaulting to GET.
func WithMethod(method string) FetchOption {
	return func(m *inner) { m.Method = method }
}

// WithHeader adds a request header.
func WithHeader(key, value string) FetchOption {
	return func(m *inner) {
		if m.Headers == nil {
			m.Headers = make(map[string]string)
		}
		m.Headers[key] = value
	}
}

// WithBody sets the request body, base64-encoded to match the
// response body's wire encoding.
func WithBody(body []byte) FetchOption {
	return func(m *inner) { m.Body = []byte(base64.StdEncoding.EncodeToString(body)) }
}

// Response is the result of a Client.Fetch call.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Fetch issues a virtualized HTTP request over the tunnel and blocks
// until the relay's response arrives or the request times out.
func (c *Client) Fetch(url string, opts ...FetchOption) (*Response, error) {
	msg := inner{
		Type:      msgHTTPRequest,
		RequestID: newID(),
		Method:    "GET",
		URL:       url,
	}
	for _, o := range opts {
		o(&msg)
	}

	sess := c.currentSession()
	sess.mu.Lock()
	ready := sess.state == stateReady
	sess.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}

	ch := sess.registerWaiter(msg.RequestID, sess.cfg.requestTimeout)
	if err := sess.sendEncrypted(msg); err != nil {
		return nil, fmt.Errorf("failed to send http_request: %w", err)
	}

	result := <-ch
	if result.Err != "" {
		return nil, fmt.Errorf("%s", result.Err)
	}
	body, err := base64.StdEncoding.DecodeString(string(result.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &Response{Status: result.Status, Headers: result.Headers, Body: body}, nil
}
