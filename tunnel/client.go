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
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/confidential-edge/ratunnel/quote"
	"github.com/confidential-edge/ratunnel/verify"
)

// reconnectDelay is how long the client waits before re-dialing after
// the underlying WebSocket connection drops.
const reconnectDelay = time.Second

// Client is the tunnel SDK's connection object: one attested,
// multiplexed channel to a relay's /__ra__ endpoint. A Client
// transparently reconnects with a fresh handshake and symmetric key
// whenever the underlying socket drops; callers see outstanding Fetch
// and OpenWebSocket calls fail rather than hang across a reconnect.
type Client struct {
	url    string
	store  verify.TrustStore
	policy verify.TcbPolicy
	opts   []Option

	// dialFn opens the underlying transport for connect/reconnect.
	// It defaults to a real gorilla/websocket dial; tests substitute a
	// fake wsConn to exercise handshake and reconnection without a
	// network socket, the same seam WSDialer gives the relay side.
	dialFn func(url string) (wsConn, error)

	mu      sync.RWMutex
	session *Session
	closed  bool
}

// Dial connects to url (a ws:// or wss:// address ending in /__ra__),
// verifies the relay's presented quote against store and policy, and
// completes the key exchange. The connection is unusable for Fetch or
// OpenWebSocket calls until this returns without error. Once
// connected, a supervising goroutine keeps the tunnel alive across
// disconnects by re-dialing and re-handshaking automatically.
func Dial(url string, store verify.TrustStore, policy verify.TcbPolicy, opts ...Option) (*Client, error) {
	c := &Client{url: url, store: store, policy: policy, opts: opts, dialFn: dialWebsocket}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.superviseLoop()
	return c, nil
}

// dialWebsocket is the default dialFn: an actual gorilla/websocket
// dial to url.
func dialWebsocket(url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return conn, nil
}

// connect dials a fresh WebSocket and runs the handshake, installing
// the resulting Session as the client's current one.
func (c *Client) connect() error {
	conn, err := c.dialFn(c.url)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	sess := newSession(newID(), conn, c.opts...)
	if err := c.handshake(sess); err != nil {
		_ = sess.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return nil
}

func (c *Client) currentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// superviseLoop keeps the tunnel connected: each call to readLoop runs
// until the socket drops, after which it waits reconnectDelay and
// dials again, until Close is called.
func (c *Client) superviseLoop() {
	for {
		c.readLoop()

		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		log.Warnf("tunnel client: connection to %s lost, reconnecting in %s", c.url, reconnectDelay)
		time.Sleep(reconnectDelay)
		if err := c.connect(); err != nil {
			log.Warnf("tunnel client: reconnect to %s failed: %v", c.url, err)
			continue
		}
		log.Infof("tunnel client: reconnected to %s", c.url)
	}
}

func (c *Client) handshake(sess *Session) error {
	_, data, err := sess.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server_kx: %w", err)
	}
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal server_kx: %w", err)
	}
	if env.Type != envServerKx {
		return fmt.Errorf("expected server_kx, got %s", env.Type)
	}

	q, err := quote.Parse(env.Quote)
	if err != nil {
		return fmt.Errorf("failed to parse server quote: %w", err)
	}
	if _, err := verify.Verify(q, c.store, c.policy); err != nil {
		return fmt.Errorf("failed to verify server quote: %w", err)
	}
	if !sess.cfg.measurementPolicy(measurementOf(q)) {
		return fmt.Errorf("server measurement rejected by policy")
	}
	if len(env.ServerPub) != 32 {
		return fmt.Errorf("server_pub has unexpected length %d", len(env.ServerPub))
	}
	var serverPub [32]byte
	copy(serverPub[:], env.ServerPub)

	key, err := generateSymmetricKey()
	if err != nil {
		return err
	}
	sealed, err := sealKeyForServer(key, serverPub)
	if err != nil {
		return err
	}
	if err := sess.send(envelope{Type: envClientKx, SealedKey: sealed}); err != nil {
		return fmt.Errorf("failed to send client_kx: %w", err)
	}
	if err := sess.installKey(key); err != nil {
		return err
	}
	log.Debug("tunnel handshake complete, session ready")
	return nil
}

// measurementOf returns the workload-identity measurement (MRTD for
// TDX, MRENCLAVE for SGX) a MeasurementPolicy should judge.
func measurementOf(q quote.Quote) []byte {
	switch {
	case q.TdxV4Body != nil:
		return q.TdxV4Body.MRTd[:]
	case q.TdxV5Body != nil:
		return q.TdxV5Body.MRTd[:]
	case q.SgxBody != nil:
		return q.SgxBody.MREnclave[:]
	}
	return nil
}

func (c *Client) readLoop() {
	sess := c.currentSession()
	defer func() { _ = sess.Close() }()
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			log.Debugf("tunnel client: read loop ending: %v", err)
			return
		}
		var env envelope
		if err := cbor.Unmarshal(data, &env); err != nil {
			log.Warnf("tunnel client: dropping malformed envelope: %v", err)
			continue
		}
		if env.Type != envEnc {
			log.Tracef("tunnel client: dropping unexpected envelope type %s", env.Type)
			continue
		}
		c.handleEncrypted(sess, env)
	}
}

func (c *Client) handleEncrypted(sess *Session, env envelope) {
	sess.mu.Lock()
	key := sess.key
	sess.mu.Unlock()

	var nonce [nonceSize]byte
	if len(env.Nonce) != nonceSize {
		log.Warn(ErrBadEnvelope)
		return
	}
	copy(nonce[:], env.Nonce)
	plain, err := decrypt(key, nonce, env.Ciphertext)
	if err != nil {
		log.Warn(err)
		return
	}
	var msg inner
	if err := cbor.Unmarshal(plain, &msg); err != nil {
		log.Warnf("%v: %v", ErrBadEnvelope, err)
		return
	}

	switch msg.Type {
	case msgHTTPResponse:
		sess.resolveWaiter(msg)
	case msgWSEvent:
		c.dispatchWSEvent(sess, msg)
	case msgWSMessage:
		c.dispatchWSMessage(sess, msg)
	default:
		log.Tracef("tunnel client: unexpected inner message type %s from relay", msg.Type)
	}
}

func (c *Client) dispatchWSEvent(sess *Session, msg inner) {
	sess.mu.Lock()
	v, ok := sess.wsSubs[msg.ConnectionID]
	sess.mu.Unlock()
	if !ok {
		return
	}
	switch msg.Event {
	case "open":
		v.handleOpen()
	case "close":
		v.handleClose(msg.Code, msg.Reason)
		sess.mu.Lock()
		delete(sess.wsSubs, msg.ConnectionID)
		sess.mu.Unlock()
	case "error":
		if v.onError != nil {
			v.onError(fmt.Errorf("%s", msg.Reason))
		}
	}
}

func (c *Client) dispatchWSMessage(sess *Session, msg inner) {
	sess.mu.Lock()
	v, ok := sess.wsSubs[msg.ConnectionID]
	sess.mu.Unlock()
	if !ok {
		log.Tracef("%v: %s", ErrUnknownConnection, msg.ConnectionID)
		return
	}
	v.handleMessage(msg.Body, msg.IsBinary)
}

// OpenWebSocket opens a virtual WebSocket sub-connection multiplexed
// over the tunnel, proxied by the relay to targetURL.
func (c *Client) OpenWebSocket(targetURL string, onOpen func(), onMessage func([]byte, bool), onClose func(int, string)) (*virtualWS, error) {
	sess := c.currentSession()
	sess.mu.Lock()
	ready := sess.state == stateReady
	sess.mu.Unlock()
	if !ready {
		return nil, ErrNotReady
	}

	id := newID()
	v := newVirtualWS(id, sess)
	v.onOpen, v.onMessage, v.onClose = onOpen, onMessage, onClose

	sess.mu.Lock()
	sess.wsSubs[id] = v
	sess.mu.Unlock()

	if err := sess.sendEncrypted(inner{Type: msgWSClientConnect, ConnectionID: id, TargetURL: targetURL}); err != nil {
		return nil, fmt.Errorf("failed to send ws_client_connect: %w", err)
	}
	return v, nil
}

// Close tears down the tunnel connection and stops the supervising
// reconnect loop.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}
