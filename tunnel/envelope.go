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

// envelopeType discriminates the outer CBOR envelope carried by every
// WebSocket message on /__ra__. Only server_kx and client_kx are ever
// sent unencrypted; everything else must be wrapped in an enc
// envelope once the symmetric key is installed.
type envelopeType string

const (
	envServerKx envelopeType = "server_kx"
	envClientKx envelopeType = "client_kx"
	envEnc      envelopeType = "enc"
)

// envelope is the outer wire structure. Only the payload fields that
// belong to Type are populated: Quote and ServerPub for server_kx,
// SealedKey for client_kx, Nonce and Ciphertext for enc.
type envelope struct {
	Type       envelopeType `cbor:"type"`
	Quote      []byte       `cbor:"quote,omitempty"`
	ServerPub  []byte       `cbor:"server_pub,omitempty"`
	SealedKey  []byte       `cbor:"sealed_key,omitempty"`
	Nonce      []byte       `cbor:"nonce,omitempty"`
	Ciphertext []byte       `cbor:"ciphertext,omitempty"`
}

// innerType discriminates the messages carried inside a decrypted enc
// envelope.
type innerType string

const (
	msgHTTPRequest    innerType = "http_request"
	msgHTTPResponse   innerType = "http_response"
	msgWSClientConnect innerType = "ws_client_connect"
	msgWSEvent        innerType = "ws_event"
	msgWSMessage      innerType = "ws_message"
	msgWSClientClose  innerType = "ws_client_close"
)

type inner struct {
	Type innerType `cbor:"type"`

	// http_request / http_response
	RequestID string            `cbor:"requestId,omitempty"`
	Method    string            `cbor:"method,omitempty"`
	URL       string            `cbor:"url,omitempty"`
	Headers   map[string]string `cbor:"headers,omitempty"`
	Body      []byte            `cbor:"body,omitempty"`
	Status    int               `cbor:"status,omitempty"`
	Err       string            `cbor:"error,omitempty"`

	// ws_client_connect / ws_event / ws_message / ws_client_close
	ConnectionID string `cbor:"connectionId,omitempty"`
	TargetURL    string `cbor:"targetUrl,omitempty"`
	Event        string `cbor:"event,omitempty"` // "open" | "close" | "error"
	Code         int    `cbor:"code,omitempty"`
	Reason       string `cbor:"reason,omitempty"`
	IsBinary     bool   `cbor:"isBinary,omitempty"`
}
