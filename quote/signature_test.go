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

package quote

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildChainCert(t *testing.T, cn string, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, isCA bool) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  isCA,
		BasicConstraintsValid: isCA,
	}
	signer := tmpl
	signerKey := key
	if parent != nil {
		signer = parent
		signerKey = parentKey
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func toPem(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

func TestClassifyCertRolesOrdered(t *testing.T) {
	root, rootKey := buildChainCert(t, "Intel SGX Root CA", nil, nil, true)
	inter, interKey := buildChainCert(t, "Intel SGX PCK Platform CA", root, rootKey, true)
	leaf, _ := buildChainCert(t, "Intel SGX PCK Certificate", inter, interKey, false)

	leafDER, interDER, rootDER, err := classifyCertRoles([][]byte{leaf.Raw, inter.Raw, root.Raw})
	require.NoError(t, err)
	require.Equal(t, leaf.Raw, leafDER)
	require.Equal(t, inter.Raw, interDER)
	require.Equal(t, root.Raw, rootDER)
}

func TestClassifyCertRolesUnordered(t *testing.T) {
	root, rootKey := buildChainCert(t, "Intel SGX Root CA", nil, nil, true)
	inter, interKey := buildChainCert(t, "Intel SGX PCK Platform CA", root, rootKey, true)
	leaf, _ := buildChainCert(t, "Intel SGX PCK Certificate", inter, interKey, false)

	// Root first, leaf last: the classifier must not depend on
	// bundle position.
	leafDER, interDER, rootDER, err := classifyCertRoles([][]byte{root.Raw, leaf.Raw, inter.Raw})
	require.NoError(t, err)
	require.Equal(t, leaf.Raw, leafDER)
	require.Equal(t, inter.Raw, interDER)
	require.Equal(t, root.Raw, rootDER)
}

func TestResolveCertificatesUnorderedPemBundle(t *testing.T) {
	root, rootKey := buildChainCert(t, "Intel SGX Root CA", nil, nil, true)
	inter, interKey := buildChainCert(t, "Intel SGX PCK Platform CA", root, rootKey, true)
	leaf, _ := buildChainCert(t, "Intel SGX PCK Certificate", inter, interKey, false)

	bundle := toPem(inter) + toPem(root) + toPem(leaf)

	sb := SignatureBlock{
		CertDataType: CertDataPckCertChainPem,
		CertData:     []byte(bundle),
	}
	pemToDer := func(block string) ([]byte, error) {
		p, _ := pem.Decode([]byte(block))
		if p == nil {
			return nil, fmt.Errorf("failed to decode PEM block")
		}
		return p.Bytes, nil
	}
	certs, nested, err := sb.ResolveCertificates(pemToDer)
	require.NoError(t, err)
	require.False(t, nested)
	require.Equal(t, leaf.Raw, certs.PckLeaf)
	require.Equal(t, inter.Raw, certs.Intermediate)
	require.Equal(t, root.Raw, certs.Root)
}
