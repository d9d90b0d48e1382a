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
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// symmetricKeySize is the XSalsa20-Poly1305 key size used for the
// post-handshake channel.
const symmetricKeySize = 32

// nonceSize is the secretbox nonce size; a fresh random nonce is drawn
// for every encrypted message rather than a counter, since the
// channel is message- not stream-oriented.
const nonceSize = 24

// KeyPair is an X25519 key pair used for sealed-box key delivery
// during the handshake.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a fresh X25519 key pair for a relay
// endpoint's long-term handshake identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// generateSymmetricKey draws a fresh random key for the post-handshake
// secretbox channel. A new key is generated for every connection and
// every reconnection, never reused across sessions.
func generateSymmetricKey() ([symmetricKeySize]byte, error) {
	var key [symmetricKeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("failed to generate symmetric key: %w", err)
	}
	return key, nil
}

// sealKeyForServer seals key to serverPub using an anonymous sealed
// box, so only the holder of serverPriv can recover it. This is the
// one-time key-delivery step of the handshake; the sealed box carries
// no sender identity, and the client is not attested: only the
// server presents a quote.
func sealKeyForServer(key [symmetricKeySize]byte, serverPub [32]byte) ([]byte, error) {
	sealed, err := box.SealAnonymous(nil, key[:], &serverPub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to seal symmetric key: %w", err)
	}
	return sealed, nil
}

// openSealedKey recovers a symmetric key sealed by sealKeyForServer.
func openSealedKey(sealed []byte, kp KeyPair) ([symmetricKeySize]byte, error) {
	var key [symmetricKeySize]byte
	opened, ok := box.OpenAnonymous(nil, sealed, &kp.Public, &kp.Private)
	if !ok {
		return key, fmt.Errorf("failed to open sealed symmetric key")
	}
	if len(opened) != symmetricKeySize {
		return key, fmt.Errorf("unexpected symmetric key length %d", len(opened))
	}
	copy(key[:], opened)
	return key, nil
}

// encrypt seals plaintext under key with a fresh random nonce,
// returning the nonce and ciphertext separately for envelope framing.
func encrypt(key [symmetricKeySize]byte, plaintext []byte) (nonce [nonceSize]byte, ciphertext []byte, err error) {
	if _, err = rand.Read(nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext = secretbox.Seal(nil, plaintext, &nonce, &key)
	return nonce, ciphertext, nil
}

// decrypt opens a ciphertext produced by encrypt.
func decrypt(key [symmetricKeySize]byte, nonce [nonceSize]byte, ciphertext []byte) ([]byte, error) {
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
