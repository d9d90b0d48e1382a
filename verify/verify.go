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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/confidential-edge/ratunnel/internal/certutil"
	"github.com/confidential-edge/ratunnel/quote"
)

// Report is the full structured outcome of verifying a quote end to
// end: signature chain, PCK certificate chain and TCB policy.
type Report struct {
	Signature Result
	Chain     ChainResult
}

// Verify runs the full quote verification pipeline: resolves the PCK
// chain from the quote's certification data, verifies that chain
// against store, verifies the quote/QE signature chain against the
// resolved PCK leaf, and finally consults policy for the platform's
// TCB level. Any failing stage aborts the pipeline; earlier stages'
// partial results are still returned.
func Verify(q quote.Quote, store TrustStore, policy TcbPolicy, opts ...Option) (Report, error) {
	o := newOptions(opts...)
	var rep Report

	certs, nested, err := q.Signature.ResolveCertificates(PemToDer)
	if err != nil {
		return rep, fmt.Errorf("resolve certificates: %w", err)
	}
	if nested && !o.acceptAzureVTpm {
		return rep, fmt.Errorf("%w: certification data type %d requires WithAzureVTpmAcceptance", ErrUnsupportedCertData, q.Signature.CertDataType)
	}

	evalAt := o.evalTime
	if evalAt.IsZero() {
		evalAt = time.Now()
	}
	chainRes, err := VerifyPckChain(certs, evalAt, store)
	rep.Chain = chainRes
	if err != nil {
		return rep, fmt.Errorf("PCK chain: %w", err)
	}
	if chainRes.Status != certutil.ChainValid {
		return rep, fmt.Errorf("PCK chain: status %s", chainRes.Status)
	}

	if nested && o.acceptAzureVTpm {
		log.Debug("skipping QE report signature check for Azure vTPM nested certification data")
		rep.Signature.BodySignatureValid, err = verifyEcdsaSignature(q.Raw, q.Signature.QuoteSignature, q.Signature.AttestationKey)
		if err != nil {
			return rep, fmt.Errorf("body signature: %w", err)
		}
		rep.Signature.Success = rep.Signature.BodySignatureValid
		if !rep.Signature.Success {
			return rep, ErrBadQuoteSignature
		}
	} else {
		sigRes, err := VerifyQuoteSignature(q, chainRes.Leaf)
		rep.Signature = sigRes
		if err != nil {
			return rep, fmt.Errorf("signature: %w", err)
		}
	}

	if err := VerifyTcb(policy, chainRes.Leaf, q); err != nil {
		return rep, err
	}

	return rep, nil
}
