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
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Server terminates attested tunnels at /__ra__: it upgrades incoming
// connections, performs the server_kx/client_kx handshake bound to a
// caller-supplied quote, and dispatches decrypted virtual HTTP and
// WebSocket traffic into the caller's handler and dialer.
type Server struct {
	upgrader websocket.Upgrader
	keys     KeyPair
	quote    []byte // the server's own attestation quote, sent in server_kx
	handler  http.Handler
	dialer   WSDialer
	opts     []Option
}

// NewServer constructs a Server that will present quoteBytes (this
// process's own attestation quote) to every connecting client, and
// dispatch virtual HTTP traffic into handler and virtual WebSocket
// dial requests into dialer.
func NewServer(keys KeyPair, quoteBytes []byte, handler http.Handler, dialer WSDialer, opts ...Option) *Server {
	return &Server{
		upgrader: websocket.Upgrader{ReadBufferSize: 64 * 1024, WriteBufferSize: 64 * 1024},
		keys:     keys,
		quote:    quoteBytes,
		handler:  handler,
		dialer:   dialer,
		opts:     opts,
	}
}

// ServeHTTP upgrades the connection at /__ra__ and runs its session to
// completion. Any other path reaching this handler is a caller wiring
// error; the relay itself only ever registers this handler at
// /__ra__.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("failed to upgrade /__ra__ connection: %v", err)
		return
	}
	sess := newSession(newID(), conn, srv.opts...)
	sess.handler = srv.handler
	sess.dialer = srv.dialer

	if err := srv.sendServerKx(sess); err != nil {
		log.Warnf("session %s: failed to send server_kx: %v", sess.id, err)
		_ = sess.Close()
		return
	}
	srv.readLoop(sess)
}

func (srv *Server) sendServerKx(s *Session) error {
	return s.send(envelope{
		Type:      envServerKx,
		Quote:     srv.quote,
		ServerPub: srv.keys.Public[:],
	})
}

func (srv *Server) readLoop(s *Session) {
	defer func() { _ = s.Close() }()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Debugf("session %s: read loop ending: %v", s.id, err)
			return
		}
		var env envelope
		if err := cbor.Unmarshal(data, &env); err != nil {
			log.Warnf("session %s: dropping malformed envelope: %v", s.id, err)
			continue
		}
		switch env.Type {
		case envClientKx:
			srv.handleClientKx(s, env)
		case envEnc:
			srv.handleEncrypted(s, env)
		default:
			log.Tracef("session %s: dropping unexpected envelope type %s from client", s.id, env.Type)
		}
	}
}

func (srv *Server) handleClientKx(s *Session, env envelope) {
	key, err := openSealedKey(env.SealedKey, srv.keys)
	if err != nil {
		log.Warnf("session %s: failed to open client_kx sealed key: %v", s.id, err)
		return
	}
	if err := s.installKey(key); err != nil {
		// Second client_kx after installation: ignored per the
		// single-key-install invariant.
		log.Tracef("session %s: %v", s.id, err)
		return
	}
	log.Debugf("session %s: symmetric key installed, session ready", s.id)
}

func (srv *Server) handleEncrypted(s *Session, env envelope) {
	s.mu.Lock()
	if !s.keyInstalled {
		s.mu.Unlock()
		log.Tracef("session %s: dropping enc message before key install", s.id)
		return
	}
	key := s.key
	s.mu.Unlock()

	var nonce [nonceSize]byte
	if len(env.Nonce) != nonceSize {
		log.Warnf("session %s: %v: bad nonce length", s.id, ErrBadEnvelope)
		return
	}
	copy(nonce[:], env.Nonce)
	plain, err := decrypt(key, nonce, env.Ciphertext)
	if err != nil {
		log.Warnf("session %s: %v", s.id, err)
		return
	}
	var msg inner
	if err := cbor.Unmarshal(plain, &msg); err != nil {
		log.Warnf("session %s: %v: %v", s.id, ErrBadEnvelope, err)
		return
	}

	switch msg.Type {
	case msgHTTPRequest:
		go func() {
			resp := dispatchHTTPRequest(s.handler, msg)
			if err := s.sendEncrypted(resp); err != nil {
				log.Warnf("session %s: failed to send http_response: %v", s.id, err)
			}
		}()
	case msgWSClientConnect:
		go srv.handleWSConnect(s, msg)
	case msgWSMessage:
		srv.relayToUpstream(s, msg)
	case msgWSClientClose:
		srv.closeUpstream(s, msg)
	default:
		log.Tracef("session %s: unexpected inner message type %s from client", s.id, msg.Type)
	}
}

func (srv *Server) handleWSConnect(s *Session, msg inner) {
	upstream, err := s.dialer.Dial(msg.TargetURL)
	if err != nil {
		_ = s.sendEncrypted(inner{Type: msgWSEvent, ConnectionID: msg.ConnectionID, Event: "error", Reason: err.Error()})
		return
	}
	v := newVirtualWS(msg.ConnectionID, s)
	v.upstream = upstream
	s.mu.Lock()
	s.wsSubs[msg.ConnectionID] = v
	s.mu.Unlock()

	v.handleOpen()
	_ = s.sendEncrypted(inner{Type: msgWSEvent, ConnectionID: msg.ConnectionID, Event: "open"})

	for {
		mt, data, err := upstream.ReadMessage()
		if err != nil {
			v.handleClose(1006, err.Error())
			_ = s.sendEncrypted(inner{Type: msgWSEvent, ConnectionID: msg.ConnectionID, Event: "close", Code: 1006, Reason: err.Error()})
			s.mu.Lock()
			delete(s.wsSubs, msg.ConnectionID)
			s.mu.Unlock()
			return
		}
		_ = s.sendEncrypted(inner{
			Type:         msgWSMessage,
			ConnectionID: msg.ConnectionID,
			Body:         data,
			IsBinary:     mt == websocket.BinaryMessage,
		})
	}
}

func (srv *Server) relayToUpstream(s *Session, msg inner) {
	s.mu.Lock()
	v, ok := s.wsSubs[msg.ConnectionID]
	s.mu.Unlock()
	if !ok {
		log.Tracef("session %s: %v: %s", s.id, ErrUnknownConnection, msg.ConnectionID)
		return
	}
	mt := websocket.TextMessage
	if msg.IsBinary {
		mt = websocket.BinaryMessage
	}
	if err := v.upstream.WriteMessage(mt, msg.Body); err != nil {
		log.Debugf("session %s: upstream write failed for %s: %v", s.id, msg.ConnectionID, err)
	}
}

func (srv *Server) closeUpstream(s *Session, msg inner) {
	s.mu.Lock()
	v, ok := s.wsSubs[msg.ConnectionID]
	delete(s.wsSubs, msg.ConnectionID)
	s.mu.Unlock()
	if !ok {
		return
	}
	v.setState(wsClosed)
	if v.upstream != nil {
		_ = v.upstream.Close()
	}
}
