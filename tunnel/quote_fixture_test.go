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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confidential-edge/ratunnel/quote"
	"github.com/confidential-edge/ratunnel/verify"
)

// sgxFmspcExtension builds the Intel SGX X.509 extension carrying only
// the FMSPC entry, so a fixture PCK leaf carries an FMSPC the TCB
// policy hook can read.
func sgxFmspcExtension(t *testing.T, fmspc []byte) pkix.Extension {
	t.Helper()
	type entry struct {
		Id    asn1.ObjectIdentifier
		Value []byte
	}
	fmspcOID := append(append(asn1.ObjectIdentifier{}, quote.SgxExtensionOID...), 4)
	entryBytes, err := asn1.Marshal(entry{Id: fmspcOID, Value: fmspc})
	require.NoError(t, err)
	seqBytes, err := asn1.Marshal([]asn1.RawValue{{FullBytes: entryBytes}})
	require.NoError(t, err)
	return pkix.Extension{Id: quote.SgxExtensionOID, Value: seqBytes}
}

func selfSignedRoot(t *testing.T, key *ecdsa.PrivateKey, cn string) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func caSignedIntermediate(t *testing.T, ca *x509.Certificate, caKey, interKey *ecdsa.PrivateKey, cn string) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &interKey.PublicKey, caKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func caSignedPckLeaf(t *testing.T, ca *x509.Certificate, caKey, leafKey *ecdsa.PrivateKey, cn string) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber:    big.NewInt(3),
		Subject:         pkix.Name{CommonName: cn},
		NotBefore:       time.Now().Add(-time.Hour),
		NotAfter:        time.Now().Add(time.Hour),
		ExtraExtensions: []pkix.Extension{sgxFmspcExtension(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func certToPem(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func signRS(t *testing.T, priv *ecdsa.PrivateKey, msg []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	require.NoError(t, err)
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out
}

func uncompressedPoint(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 64)
	pub.X.FillBytes(out[:32])
	pub.Y.FillBytes(out[32:])
	return out
}

// trustedSgxQuoteFixture is a self-contained, independently verifiable
// SGX quote plus the trust store that accepts it: a fresh
// root/intermediate/PCK-leaf chain, an attestation key whose signature
// over the quote body validates, and a QE report correctly bound and
// signed by the PCK leaf. Used to drive Client.handshake through a
// real verify.Verify call without a real Intel DCAP collateral fetch.
type trustedSgxQuoteFixture struct {
	raw   []byte
	store verify.TrustStore
}

func buildTrustedSgxQuoteFixture(t *testing.T) trustedSgxQuoteFixture {
	t.Helper()
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	interKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	attKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	root := selfSignedRoot(t, rootKey, "Intel SGX Root CA")
	inter := caSignedIntermediate(t, root, rootKey, interKey, "Intel SGX PCK Platform CA")
	leaf := caSignedPckLeaf(t, inter, interKey, leafKey, "Intel SGX PCK Certificate")
	bundle := append(append(certToPem(leaf), certToPem(inter)...), certToPem(root)...)

	header := new(bytes.Buffer)
	binary.Write(header, binary.LittleEndian, uint16(3))
	binary.Write(header, binary.LittleEndian, uint16(2))
	binary.Write(header, binary.LittleEndian, uint32(quote.TeeTypeSGX))
	header.Write(make([]byte, 4))
	header.Write(make([]byte, 16))
	header.Write(make([]byte, 20))
	body := make([]byte, quote.SgxBodyLen)
	headerAndBody := append(header.Bytes(), body...)

	attPubXY := uncompressedPoint(&attKey.PublicKey)
	bodySig := signRS(t, attKey, headerAndBody)

	authData := []byte("qe-auth")
	h := sha256.Sum256(append(append([]byte{}, attPubXY...), authData...))
	qeReport := make([]byte, quote.SgxBodyLen)
	copy(qeReport[quote.SgxBodyLen-64:quote.SgxBodyLen-32], h[:])
	qeSig := signRS(t, leafKey, qeReport)

	sig := new(bytes.Buffer)
	sig.Write(bodySig)
	sig.Write(attPubXY)
	sig.Write(qeReport)
	sig.Write(qeSig)
	binary.Write(sig, binary.LittleEndian, uint16(len(authData)))
	sig.Write(authData)
	binary.Write(sig, binary.LittleEndian, uint16(quote.CertDataPckCertChainPem))
	binary.Write(sig, binary.LittleEndian, uint32(len(bundle)))
	sig.Write(bundle)

	raw := new(bytes.Buffer)
	raw.Write(headerAndBody)
	binary.Write(raw, binary.LittleEndian, uint32(sig.Len()))
	raw.Write(sig.Bytes())

	return trustedSgxQuoteFixture{
		raw:   raw.Bytes(),
		store: verify.TrustStore{Roots: []*x509.Certificate{root}},
	}
}
