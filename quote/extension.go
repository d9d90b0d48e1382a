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
	"crypto/x509"
	"encoding/asn1"
	"fmt"
)

// SgxExtensionOID is the Intel SGX extension OID carried on PCK
// certificates, encoding FMSPC, PCEID, per-component TCB SVNs and the
// SGX platform type.
var SgxExtensionOID = asn1.ObjectIdentifier{1, 2, 840, 113741, 1, 13, 1}

// SgxExtension is the decoded content of the Intel SGX X.509
// extension.
type SgxExtension struct {
	PPID       []byte
	TCB        [16]byte
	PCEID      []byte
	FMSPC      []byte
	SGXType    int
	PlatformInstanceID []byte
	Configuration      []byte
}

// FMSPCHex returns FMSPC as a lowercase hex string, the identifier the
// TCB policy hook keys off of.
func (e SgxExtension) FMSPCHex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(e.FMSPC)*2)
	for i, b := range e.FMSPC {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0xf]
	}
	return string(out)
}

type extSeqEntry struct {
	Id    asn1.ObjectIdentifier
	Value asn1.RawValue
}

// ParseSgxExtension locates and decodes the Intel SGX extension on a
// PCK leaf certificate.
func ParseSgxExtension(cert *x509.Certificate) (SgxExtension, error) {
	var ext SgxExtension
	var raw []byte
	for _, e := range cert.Extensions {
		if e.Id.Equal(SgxExtensionOID) {
			raw = e.Value
			break
		}
	}
	if raw == nil {
		return ext, fmt.Errorf("PCK certificate does not carry the Intel SGX extension")
	}

	var seq []asn1.RawValue
	if _, err := asn1.Unmarshal(raw, &seq); err != nil {
		return ext, fmt.Errorf("failed to unmarshal SGX extension sequence: %w", err)
	}

	// TCB sub-extension OID: 1.2.840.113741.1.13.1.2
	tcbOID := append(append(asn1.ObjectIdentifier{}, SgxExtensionOID...), 2)

	for _, item := range seq {
		var entry extSeqEntry
		if _, err := asn1.Unmarshal(item.FullBytes, &entry); err != nil {
			continue
		}
		switch {
		case entry.Id.Equal(append(append(asn1.ObjectIdentifier{}, SgxExtensionOID...), 1)):
			var v []byte
			if _, err := asn1.Unmarshal(entry.Value.FullBytes, &v); err == nil {
				ext.PPID = v
			}
		case entry.Id.Equal(tcbOID):
			if err := parseTcbSequence(entry.Value.FullBytes, &ext); err != nil {
				return ext, fmt.Errorf("failed to parse TCB sub-sequence: %w", err)
			}
		case entry.Id.Equal(append(append(asn1.ObjectIdentifier{}, SgxExtensionOID...), 3)):
			var v []byte
			if _, err := asn1.Unmarshal(entry.Value.FullBytes, &v); err == nil {
				ext.PCEID = v
			}
		case entry.Id.Equal(append(append(asn1.ObjectIdentifier{}, SgxExtensionOID...), 4)):
			var v []byte
			if _, err := asn1.Unmarshal(entry.Value.FullBytes, &v); err == nil {
				ext.FMSPC = v
			}
		case entry.Id.Equal(append(append(asn1.ObjectIdentifier{}, SgxExtensionOID...), 5)):
			var v int
			if _, err := asn1.Unmarshal(entry.Value.FullBytes, &v); err == nil {
				ext.SGXType = v
			}
		}
	}
	if len(ext.FMSPC) == 0 {
		return ext, fmt.Errorf("SGX extension missing FMSPC")
	}
	return ext, nil
}

func parseTcbSequence(raw []byte, ext *SgxExtension) error {
	var seq []asn1.RawValue
	if _, err := asn1.Unmarshal(raw, &seq); err != nil {
		return err
	}
	for _, item := range seq {
		var entry extSeqEntry
		if _, err := asn1.Unmarshal(item.FullBytes, &entry); err != nil {
			continue
		}
		last := entry.Id[len(entry.Id)-1]
		if last >= 1 && last <= 16 {
			var svn int
			if _, err := asn1.Unmarshal(entry.Value.FullBytes, &svn); err == nil {
				ext.TCB[last-1] = byte(svn)
			}
		}
	}
	return nil
}
