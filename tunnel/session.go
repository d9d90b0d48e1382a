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
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// state is the control channel's handshake state machine.
type state int

const (
	stateHandshaking state = iota
	stateReady
	stateClosed
)

// wsConn is the narrow slice of *websocket.Conn this package depends
// on, so the session logic can be exercised without a real socket in
// tests.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// httpWaiter is a one-shot completion for a pending virtual HTTP
// request.
type httpWaiter struct {
	ch    chan inner
	timer *time.Timer
}

// Session owns all mutable state for one /__ra__ WebSocket
// connection: the installed symmetric key, pending virtual HTTP
// requests and virtual WebSocket sub-connections. The state is guarded
// by mu: besides the goroutine running readLoop, Fetch and Close
// callers, request timer callbacks and request-dispatch goroutines
// read and mutate it from other goroutines.
type Session struct {
	id   string
	conn wsConn
	cfg  sessionConfig

	mu           sync.Mutex
	state        state
	key          [symmetricKeySize]byte
	keyInstalled bool

	pending map[string]*httpWaiter
	wsSubs  map[string]*virtualWS

	handler   http.Handler
	dialer    WSDialer
	onClosed  func()
}

// WSDialer opens an outbound WebSocket connection for a
// ws_client_connect request on the relay side. It abstracts over
// gorilla/websocket.Dialer so the server logic can be tested without a
// real network dial.
type WSDialer interface {
	Dial(url string) (wsConn, error)
}

func newSession(id string, conn wsConn, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Session{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		state:   stateHandshaking,
		pending: make(map[string]*httpWaiter),
		wsSubs:  make(map[string]*virtualWS),
	}
}

func (s *Session) send(env envelope) error {
	b, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return s.conn.WriteMessage(2, b) // binary message
}

func (s *Session) sendEncrypted(msg inner) error {
	s.mu.Lock()
	if !s.keyInstalled {
		s.mu.Unlock()
		return ErrNotReady
	}
	key := s.key
	s.mu.Unlock()

	plain, err := cbor.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal inner message: %w", err)
	}
	nonce, ct, err := encrypt(key, plain)
	if err != nil {
		return err
	}
	return s.send(envelope{Type: envEnc, Nonce: nonce[:], Ciphertext: ct})
}

// installKey sets the session's symmetric key exactly once; a second
// client_kx is silently ignored per the handshake invariant that only
// the first key installation takes effect.
func (s *Session) installKey(key [symmetricKeySize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyInstalled {
		return ErrKeyAlreadyInstalled
	}
	s.key = key
	s.keyInstalled = true
	s.state = stateReady
	return nil
}

func (s *Session) registerWaiter(requestID string, timeout time.Duration) chan inner {
	ch := make(chan inner, 1)
	w := &httpWaiter{ch: ch}
	w.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		_, ok := s.pending[requestID]
		delete(s.pending, requestID)
		s.mu.Unlock()
		if ok {
			ch <- inner{Type: msgHTTPResponse, RequestID: requestID, Err: ErrRequestTimeout.Error()}
		}
	})
	s.mu.Lock()
	s.pending[requestID] = w
	s.mu.Unlock()
	return ch
}

func (s *Session) resolveWaiter(msg inner) {
	s.mu.Lock()
	w, ok := s.pending[msg.RequestID]
	if ok {
		delete(s.pending, msg.RequestID)
	}
	s.mu.Unlock()
	if !ok {
		log.Tracef("session %s: response for unknown or already-resolved request %s", s.id, msg.RequestID)
		return
	}
	w.timer.Stop()
	w.ch <- msg
}

// Close tears down the session: fails all pending HTTP waiters with
// ErrSessionClosed and closes every virtual WebSocket sub-connection
// with close code 1006, matching an abnormal-closure fan-out to
// dependents of a single physical socket going away.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = stateClosed
	pending := s.pending
	s.pending = make(map[string]*httpWaiter)
	subs := s.wsSubs
	s.wsSubs = make(map[string]*virtualWS)
	s.mu.Unlock()

	for id, w := range pending {
		w.timer.Stop()
		w.ch <- inner{Type: msgHTTPResponse, RequestID: id, Err: ErrSessionClosed.Error()}
	}
	for _, sub := range subs {
		sub.abnormalClose()
	}
	if s.onClosed != nil {
		s.onClosed()
	}
	return s.conn.Close()
}

func newID() string {
	return uuid.New().String()
}
