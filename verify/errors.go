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

// Package verify implements Intel DCAP quote signature verification,
// PCK certificate chain verification and the TCB policy hook.
package verify

import "errors"

var (
	ErrBadQuoteSignature      = errors.New("verify: quote body signature invalid")
	ErrQeReportBindingMismatch = errors.New("verify: QE report does not bind the attestation key")
	ErrBadQeReportSignature   = errors.New("verify: QE report signature invalid")
	ErrTcbRejected            = errors.New("verify: TCB policy rejected quote")
	ErrUnsupportedCertData    = errors.New("verify: certification data type not independently verifiable")
	ErrMissingIntermediate    = errors.New("verify: PCK chain is missing its intermediate CA certificate")
)
