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

package certutil

import (
	"crypto/x509"
	"fmt"
)

// CheckRevocation checks whether cert appears on any of crls, and that
// each CRL is itself validly signed by issuer. A quote's PCK leaf and
// its issuing intermediate each carry their own CRL, so this is called
// once per link in the chain rather than once for the whole chain.
func CheckRevocation(cert, issuer *x509.Certificate, crls []*x509.RevocationList) (bool, error) {
	for _, crl := range crls {
		if crl.Issuer.String() != issuer.Subject.String() {
			continue
		}
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			return false, fmt.Errorf("CRL signature invalid: %w", err)
		}
		for _, revoked := range crl.RevokedCertificateEntries {
			if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return true, nil
			}
		}
	}
	return false, nil
}
