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
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/confidential-edge/ratunnel/internal/certutil"
	"github.com/confidential-edge/ratunnel/quote"
)

// ChainResult reports the outcome of verifying a quote's PCK chain
// against the operator's pinned Intel SGX Root CA.
type ChainResult struct {
	Status certutil.ChainStatus
	Leaf   *x509.Certificate
	// Chain is the leaf/intermediate/root sequence x509.Verify actually
	// resolved, in leaf-to-root order. Nil unless Status is ChainValid.
	Chain []*x509.Certificate
}

// TrustStore holds the pinned Intel SGX Root CA(s) and optional CRLs
// used to verify a quote's PCK certificate chain.
type TrustStore struct {
	Roots []*x509.Certificate
	CRLs  []*x509.RevocationList
}

// VerifyPckChain verifies that certs form a valid, non-revoked chain
// rooted at one of the trust store's pinned roots as of "at".
//
// The leaf and intermediate roles come from certs as resolved by
// quote.SignatureBlock.ResolveCertificates; their CommonNames are then
// checked against Intel's PCK conventions (the leaf's must contain
// "PCK Certificate", the intermediate's "CA"). A revoked leaf or
// intermediate yields status ChainRevoked with a nil error.
func VerifyPckChain(certs quote.SgxCertificates, at time.Time, store TrustStore) (ChainResult, error) {
	leaf, err := certutil.ParseCert(certs.PckLeaf)
	if err != nil {
		return ChainResult{}, fmt.Errorf("PCK leaf: %w", err)
	}
	if len(certs.Intermediate) == 0 {
		return ChainResult{Status: certutil.ChainIncomplete, Leaf: leaf}, ErrMissingIntermediate
	}
	inter, err := certutil.ParseCert(certs.Intermediate)
	if err != nil {
		return ChainResult{}, fmt.Errorf("PCK intermediate: %w", err)
	}
	if err := checkCN(inter, "CA"); err != nil {
		return ChainResult{}, err
	}
	intermediates := []*x509.Certificate{inter}

	if err := checkCN(leaf, "PCK Certificate"); err != nil {
		return ChainResult{}, err
	}

	status, chain, verr := certutil.VerifyCertChain(leaf, intermediates, store.Roots, at)
	if status != certutil.ChainValid {
		log.Debugf("PCK chain verification failed: %v (%v)", status, verr)
		return ChainResult{Status: status, Leaf: leaf}, verr
	}

	if len(store.CRLs) > 0 {
		revoked, err := certutil.CheckRevocation(leaf, inter, store.CRLs)
		if err != nil {
			return ChainResult{Status: certutil.ChainBadSignature, Leaf: leaf, Chain: chain}, err
		}
		if revoked {
			return ChainResult{Status: certutil.ChainRevoked, Leaf: leaf, Chain: chain}, nil
		}
		for _, root := range store.Roots {
			revoked, err := certutil.CheckRevocation(inter, root, store.CRLs)
			if err != nil {
				continue
			}
			if revoked {
				return ChainResult{Status: certutil.ChainRevoked, Leaf: leaf, Chain: chain}, nil
			}
		}
	}

	return ChainResult{Status: certutil.ChainValid, Leaf: leaf, Chain: chain}, nil
}

func checkCN(cert *x509.Certificate, want string) error {
	if !strings.Contains(cert.Subject.CommonName, want) {
		return fmt.Errorf("unexpected certificate CommonName %q, expected to contain %q", cert.Subject.CommonName, want)
	}
	return nil
}

// PemToDer decodes a single PEM certificate block to DER, the glue
// used by quote.SignatureBlock.ResolveCertificates.
func PemToDer(block string) ([]byte, error) {
	p, _ := pem.Decode([]byte(block))
	if p == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	return p.Bytes, nil
}
