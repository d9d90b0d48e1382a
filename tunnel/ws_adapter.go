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
	"sync"

	log "github.com/sirupsen/logrus"
)

// wsState is the virtual WebSocket sub-connection's lifecycle, mapped
// directly onto the browser WebSocket readyState values.
type wsState int

const (
	wsConnecting wsState = iota
	wsOpen
	wsClosing
	wsClosed
)

// virtualWS is one multiplexed WebSocket sub-connection carried inside
// a Session. On the relay side it proxies to a real outbound
// *websocket.Conn; on the client SDK side it is the object returned to
// the application and driven by inbound ws_event/ws_message frames.
type virtualWS struct {
	id      string
	session *Session

	mu    sync.Mutex
	state wsState

	// upstream is non-nil on the relay side once the outbound dial
	// completes; it is the real socket a ws_message from the tunnel
	// client is relayed onto, and vice versa.
	upstream wsConn

	onOpen    func()
	onMessage func(data []byte, isBinary bool)
	onClose   func(code int, reason string)
	onError   func(error)
}

func newVirtualWS(id string, s *Session) *virtualWS {
	return &virtualWS{id: id, session: s, state: wsConnecting}
}

func (v *virtualWS) setState(st wsState) {
	v.mu.Lock()
	v.state = st
	v.mu.Unlock()
}

func (v *virtualWS) getState() wsState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// handleOpen transitions CONNECTING -> OPEN on receipt of an "open"
// ws_event.
func (v *virtualWS) handleOpen() {
	if v.getState() != wsConnecting {
		log.Tracef("ws %s: ignoring open event outside CONNECTING", v.id)
		return
	}
	v.setState(wsOpen)
	if v.onOpen != nil {
		v.onOpen()
	}
}

// handleMessage delivers a payload while OPEN; messages arriving after
// CLOSING/CLOSED are dropped, not errored, since a close race between
// peers is expected traffic rather than a protocol violation.
func (v *virtualWS) handleMessage(data []byte, isBinary bool) {
	if v.getState() != wsOpen {
		log.Tracef("ws %s: dropping message outside OPEN state", v.id)
		return
	}
	if v.onMessage != nil {
		v.onMessage(data, isBinary)
	}
}

// handleClose transitions to CLOSED from any prior state.
func (v *virtualWS) handleClose(code int, reason string) {
	prev := v.getState()
	if prev == wsClosed {
		return
	}
	v.setState(wsClosed)
	if v.onClose != nil {
		v.onClose(code, reason)
	}
}

// abnormalClose is invoked when the underlying tunnel socket goes away
// entirely, delivering close code 1006 (abnormal closure) to every
// live sub-connection.
func (v *virtualWS) abnormalClose() {
	v.handleClose(1006, "tunnel session closed")
}

// Send transmits data on the virtual WebSocket as an outbound
// ws_message, refusing to send outside the OPEN state.
func (v *virtualWS) Send(data []byte, isBinary bool) error {
	if v.getState() != wsOpen {
		return fmt.Errorf("ws %s: cannot send outside OPEN state", v.id)
	}
	return v.session.sendEncrypted(inner{
		Type:         msgWSMessage,
		ConnectionID: v.id,
		Body:         data,
		IsBinary:     isBinary,
	})
}

// Close requests closure of the virtual WebSocket, transitioning
// OPEN/CONNECTING -> CLOSING and emitting a ws_client_close.
func (v *virtualWS) Close(code int, reason string) error {
	st := v.getState()
	if st == wsClosed || st == wsClosing {
		return nil
	}
	v.setState(wsClosing)
	return v.session.sendEncrypted(inner{
		Type:         msgWSClientClose,
		ConnectionID: v.id,
		Code:         code,
		Reason:       reason,
	})
}
