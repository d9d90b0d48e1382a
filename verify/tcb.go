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
	"fmt"

	"github.com/confidential-edge/ratunnel/quote"
)

// TcbPolicy decides whether a platform's TCB level, identified by its
// FMSPC, is acceptable. It is caller-supplied: this package carries no
// embedded TCB info collateral and no cache of Intel's TCB status
// service, matching the reference implementation's policy-hook design.
type TcbPolicy func(fmspcHex string, q quote.Quote) bool

// AcceptAll is a permissive TcbPolicy for local development and
// testing; production callers should supply a policy backed by their
// own TCB info collateral.
func AcceptAll(string, quote.Quote) bool { return true }

// VerifyTcb extracts the platform's FMSPC from the PCK leaf's Intel
// SGX extension and asks policy whether that platform's TCB level is
// acceptable.
func VerifyTcb(policy TcbPolicy, pckLeaf *x509.Certificate, q quote.Quote) error {
	ext, err := quote.ParseSgxExtension(pckLeaf)
	if err != nil {
		return fmt.Errorf("failed to extract FMSPC: %w", err)
	}
	if !policy(ext.FMSPCHex(), q) {
		return fmt.Errorf("%w: fmspc %s", ErrTcbRejected, ext.FMSPCHex())
	}
	return nil
}
