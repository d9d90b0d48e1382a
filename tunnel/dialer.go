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
	"fmt"

	"github.com/gorilla/websocket"
)

// realDialer is the WSDialer implementation the relay uses to open
// upstream WebSocket connections for ws_client_connect requests.
type realDialer struct {
	dialer websocket.Dialer
}

// NewRealDialer returns a WSDialer backed by an actual
// gorilla/websocket dial, the one used outside tests.
func NewRealDialer() WSDialer {
	return &realDialer{dialer: *websocket.DefaultDialer}
}

func (d *realDialer) Dial(url string) (wsConn, error) {
	conn, _, err := d.dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial upstream %s: %w", url, err)
	}
	return conn, nil
}
