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

// Package certutil provides PEM/DER certificate parsing, chain
// verification and CRL revocation checks shared by the quote verifier
// and the PCK chain verifier.
package certutil

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// ParseCert parses a single DER-encoded certificate.
func ParseCert(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// ParseCertsDer parses a concatenation of DER-encoded certificates.
func ParseCertsDer(der []byte) ([]*x509.Certificate, error) {
	certs, err := x509.ParseCertificates(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificates: %w", err)
	}
	return certs, nil
}

// ParseCertsPem splits a PEM bundle into individual certificates,
// tolerating leading/trailing whitespace between blocks.
func ParseCertsPem(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PEM certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in PEM bundle")
	}
	return certs, nil
}

// SplitPemBundle splits a bundle of concatenated PEM blocks on the
// standard certificate delimiter, returning one PEM string per
// certificate. Used for cert data type 5 (PCK chain as a single PEM
// blob) and for the PEM bundle nested inside qe_auth_data for the
// Azure vTPM cert data types.
func SplitPemBundle(bundle string) []string {
	const marker = "-----BEGIN CERTIFICATE-----"
	var out []string
	idx := 0
	for {
		start := indexFrom(bundle, marker, idx)
		if start < 0 {
			break
		}
		next := indexFrom(bundle, marker, start+len(marker))
		if next < 0 {
			out = append(out, bundle[start:])
			break
		}
		out = append(out, bundle[start:next])
		idx = next
	}
	return out
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	i := bytes.Index([]byte(s[from:]), []byte(substr))
	if i < 0 {
		return -1
	}
	return i + from
}

// ChainStatus is the outcome of verifying a leaf certificate against a
// set of pinned roots.
type ChainStatus string

const (
	ChainValid          ChainStatus = "valid"
	ChainExpired        ChainStatus = "expired"
	ChainUntrustedRoot  ChainStatus = "untrusted_root"
	ChainRevoked        ChainStatus = "revoked"
	ChainBadSignature   ChainStatus = "bad_signature"
	ChainIncomplete     ChainStatus = "incomplete"
)

// VerifyCertChain verifies leaf against roots using intermediates as
// helpers, at the given point in time, accepting any extended key
// usage (PCK certificates carry no EKU extension). On success it
// returns the actual leaf/intermediate/root chain x509.Verify
// resolved, not merely the certificates passed in.
func VerifyCertChain(leaf *x509.Certificate, intermediates, roots []*x509.Certificate, at time.Time) (ChainStatus, []*x509.Certificate, error) {
	rootPool := x509.NewCertPool()
	for _, c := range roots {
		rootPool.AddCert(c)
	}
	interPool := x509.NewCertPool()
	for _, c := range intermediates {
		interPool.AddCert(c)
	}

	opts := x509.VerifyOptions{
		Roots:         rootPool,
		Intermediates: interPool,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	chains, err := leaf.Verify(opts)
	if err != nil {
		if isExpired(err) {
			return ChainExpired, nil, err
		}
		if isUnknownAuthority(err) {
			return ChainUntrustedRoot, nil, err
		}
		return ChainBadSignature, nil, err
	}
	return ChainValid, chains[0], nil
}

func isExpired(err error) bool {
	ie, ok := err.(x509.CertificateInvalidError)
	return ok && ie.Reason == x509.Expired
}

func isUnknownAuthority(err error) bool {
	_, ok := err.(x509.UnknownAuthorityError)
	return ok
}

// CheckSubjectKeyPin verifies that cert's SubjectKeyId matches one of
// the pinned identifiers, used to bind a root certificate delivered in
// the quote to the operator's trusted Intel SGX Root CA.
func CheckSubjectKeyPin(cert *x509.Certificate, pinned [][]byte) bool {
	for _, p := range pinned {
		if bytes.Equal(cert.SubjectKeyId, p) {
			return true
		}
	}
	return false
}
