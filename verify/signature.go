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

package verify

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"math/big"

	log "github.com/sirupsen/logrus"

	"github.com/confidential-edge/ratunnel/quote"
)

// Result is the structured outcome of verifying a quote's signature
// chain, reporting each of the three sub-checks independently so a
// caller can distinguish which stage failed.
type Result struct {
	BodySignatureValid    bool
	QeReportBindingValid  bool
	QeReportSignatureValid bool
	Success               bool
	Details               string
}

// VerifyQuoteSignature performs the three checks that bind an SGX or
// TDX quote body to the QE and PCK key material:
//
//  1. the ECDSA P-256 signature over header||body validates against
//     the quote's embedded attestation public key;
//  2. SHA-256(attestation_pub||qe_auth_data) equals the first 32 bytes
//     of the QE report's report_data, with the remaining 32 bytes zero;
//  3. the QE report itself is signed by the PCK leaf certificate.
//
// All three must pass for Success to be true; the first failure is
// still returned with the partial Result populated so far.
func VerifyQuoteSignature(q quote.Quote, pckLeaf *x509.Certificate) (Result, error) {
	var res Result

	bodyOK, err := verifyEcdsaSignature(q.Raw, q.Signature.QuoteSignature, q.Signature.AttestationKey)
	if err != nil {
		return res, fmt.Errorf("body signature: %w", err)
	}
	res.BodySignatureValid = bodyOK
	if !bodyOK {
		res.Details = "quote body signature does not validate against embedded attestation key"
		return res, ErrBadQuoteSignature
	}

	bindingOK := checkQeReportBinding(q.Signature.AttestationKey, q.Signature.QeAuthData, q.Signature.QeReport.ReportData)
	res.QeReportBindingValid = bindingOK
	if !bindingOK {
		res.Details = "QE report does not bind attestation key and auth data"
		return res, ErrQeReportBindingMismatch
	}

	pub, ok := pckLeaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return res, fmt.Errorf("PCK leaf certificate does not carry an ECDSA public key")
	}
	sigOK, err := verifyEcdsaSignatureWithKey(q.Signature.QeReportRaw, q.Signature.QeReportSignature, pub)
	if err != nil {
		return res, fmt.Errorf("qe report signature: %w", err)
	}
	res.QeReportSignatureValid = sigOK
	if !sigOK {
		res.Details = "QE report signature does not validate against PCK leaf key"
		return res, ErrBadQeReportSignature
	}

	res.Success = true
	log.Trace("quote signature chain verified")
	return res, nil
}

// verifyEcdsaSignature verifies a 64-byte r||s signature over msg
// using a 64-byte uncompressed (x||y) P-256 public key, as carried in
// the quote's attestation_key field.
func verifyEcdsaSignature(msg, sig, pubKeyXY []byte) (bool, error) {
	pub, err := decodeP256PublicKey(pubKeyXY)
	if err != nil {
		return false, err
	}
	return verifyEcdsaSignatureWithKey(msg, sig, pub)
}

func verifyEcdsaSignatureWithKey(msg, sig []byte, pub *ecdsa.PublicKey) (bool, error) {
	if len(sig) != 64 {
		return false, fmt.Errorf("expected 64-byte r||s signature, got %d bytes", len(sig))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	digest := sha256.Sum256(msg)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

func decodeP256PublicKey(xy []byte) (*ecdsa.PublicKey, error) {
	if len(xy) != 64 {
		return nil, fmt.Errorf("expected 64-byte uncompressed EC point, got %d bytes", len(xy))
	}
	x := new(big.Int).SetBytes(xy[:32])
	y := new(big.Int).SetBytes(xy[32:])
	curve := elliptic.P256()
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("attestation key is not a valid point on P-256")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// checkQeReportBinding implements the QE report binding invariant:
// SHA-256(attestation_pub||qe_auth_data) must equal report_data[0:32],
// and report_data[32:64] must be all-zero.
func checkQeReportBinding(attestationPub, qeAuthData []byte, reportData [64]byte) bool {
	h := sha256.Sum256(append(append([]byte{}, attestationPub...), qeAuthData...))
	if !bytes.Equal(h[:], reportData[:32]) {
		return false
	}
	var zero [32]byte
	return bytes.Equal(reportData[32:], zero[:])
}
