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

// Package tunnel implements the attested, multiplexed, end-to-end
// encrypted channel carried over a single WebSocket connection to
// /__ra__: virtualized HTTP request/response and virtualized
// WebSocket sub-connections, with key exchange bound to the peer's
// attested enclave identity.
package tunnel

import "errors"

var (
	ErrSessionClosed       = errors.New("tunnel: session closed")
	ErrKeyAlreadyInstalled = errors.New("tunnel: symmetric key already installed")
	ErrNotReady            = errors.New("tunnel: session not ready")
	ErrRequestTimeout      = errors.New("tunnel: request timed out")
	ErrUnknownRequest      = errors.New("tunnel: response for unknown requestId")
	ErrUnknownConnection   = errors.New("tunnel: message for unknown connectionId")
	ErrBadEnvelope         = errors.New("tunnel: malformed envelope")
	ErrDecryptFailed       = errors.New("tunnel: envelope decryption failed")
)
