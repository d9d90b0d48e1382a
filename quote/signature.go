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
	"fmt"

	"github.com/confidential-edge/ratunnel/internal/certutil"
)

// CertDataType enumerates the certification data types defined for the
// quote signature block's cert_data field.
type CertDataType uint16

const (
	CertDataPpid              CertDataType = 1
	CertDataPpidEncryptedRsa2048 CertDataType = 2
	CertDataPpidEncryptedRsa3072 CertDataType = 3
	CertDataPckLeaf           CertDataType = 4
	CertDataPckCertChainPem   CertDataType = 5
	CertDataQeReportCertChain CertDataType = 6
	CertDataPlatformManifest  CertDataType = 7
)

// QeReport is the QE (Quoting Enclave) report embedded in the
// signature block, always shaped like an SGX enclave report body.
type QeReport = SgxBody

// SignatureBlock is the variable-length signature block trailing the
// quote header+body, common to SGX and TDX quotes.
type SignatureBlock struct {
	QuoteSignature   []byte // r||s, 64 bytes
	AttestationKey   []byte // uncompressed EC point, 64 bytes
	QeReport         QeReport
	QeReportRaw      []byte // the exact 384 bytes the QE report signature covers
	QeReportSignature []byte // r||s, 64 bytes
	QeAuthData       []byte
	CertDataType     CertDataType
	CertData         []byte
}

// SgxCertificates holds the PCK leaf, intermediate CA and root CA
// extracted (or resolved) from a signature block's cert data.
type SgxCertificates struct {
	PckLeaf      []byte // DER
	Intermediate []byte // DER
	Root         []byte // DER
}

func parseSignatureBlock(r *byteReader) (SignatureBlock, error) {
	var sb SignatureBlock
	sigLen, err := r.u32()
	if err != nil {
		return sb, err
	}
	sub := newReader(r.rest())
	if err := skip(r, int(sigLen)); err != nil {
		return sb, err
	}

	if sb.QuoteSignature, err = sub.fixed(64); err != nil {
		return sb, wrapTrunc("quote_signature", err)
	}
	if sb.AttestationKey, err = sub.fixed(64); err != nil {
		return sb, wrapTrunc("attestation_key", err)
	}
	// The QE report's own signature is computed over its exact wire
	// bytes, reserved fields included, so those bytes are captured
	// verbatim alongside the parsed struct rather than re-derived from
	// it later.
	if sb.QeReportRaw, err = sub.fixed(SgxBodyLen); err != nil {
		return sb, wrapTrunc("qe_report", err)
	}
	sb.QeReport, err = parseSgxBody(newReader(sb.QeReportRaw))
	if err != nil {
		return sb, wrapTrunc("qe_report", err)
	}
	if sb.QeReportSignature, err = sub.fixed(64); err != nil {
		return sb, wrapTrunc("qe_report_signature", err)
	}
	authLen, err := sub.u16()
	if err != nil {
		return sb, wrapTrunc("qe_auth_data_len", err)
	}
	if sb.QeAuthData, err = sub.fixed(int(authLen)); err != nil {
		return sb, wrapTrunc("qe_auth_data", err)
	}
	certType, err := sub.u16()
	if err != nil {
		return sb, wrapTrunc("cert_data_type", err)
	}
	sb.CertDataType = CertDataType(certType)
	if sb.CertDataType < CertDataPpid || sb.CertDataType > CertDataPlatformManifest {
		return sb, fmt.Errorf("%w: type %d", ErrUnsupportedCertDataType, sb.CertDataType)
	}
	certLen, err := sub.u32()
	if err != nil {
		return sb, wrapTrunc("cert_data_len", err)
	}
	if sb.CertData, err = sub.fixed(int(certLen)); err != nil {
		return sb, wrapTrunc("cert_data", err)
	}
	return sb, nil
}

func skip(r *byteReader, n int) error {
	_, err := r.take(n)
	return err
}

func wrapTrunc(field string, err error) error {
	return fmt.Errorf("signature block %s: %w", field, err)
}

// ResolveCertificates extracts the PCK leaf/intermediate/root chain
// from the signature block's certification data, in DER form.
//
// Type 4 carries the raw DER PCK leaf alone, with no intermediate or
// root. Type 5 carries a PEM bundle of exactly three concatenated
// certificates. Types 6 and 7 (Azure vTPM) carry the PEM bundle nested
// inside QeAuthData instead of CertData, and the returned flag is set;
// verify.Verify then checks neither the QE report binding nor the QE
// report signature (see verify.WithAzureVTpmAcceptance). Any other
// type, including the PPID types 1-3, returns
// ErrUnsupportedCertDataType.
func (sb SignatureBlock) ResolveCertificates(pemToDer func(string) ([]byte, error)) (SgxCertificates, bool, error) {
	var certs SgxCertificates
	nested := false

	source := sb.CertData
	switch sb.CertDataType {
	case CertDataPckLeaf:
		certs.PckLeaf = sb.CertData
		return certs, false, nil
	case CertDataPckCertChainPem:
		// PEM bundle, fall through to shared PEM-splitting path.
	case CertDataQeReportCertChain, CertDataPlatformManifest:
		source = sb.QeAuthData
		nested = true
	default:
		return certs, false, fmt.Errorf("%w: type %d has no certificate material", ErrUnsupportedCertDataType, sb.CertDataType)
	}

	blocks := certutil.SplitPemBundle(string(source))
	if len(blocks) < 3 {
		return certs, nested, fmt.Errorf("expected 3 certificates in PEM bundle, got %d", len(blocks))
	}
	der := make([][]byte, 0, 3)
	for _, block := range blocks[:3] {
		d, err := pemToDer(block)
		if err != nil {
			return certs, nested, fmt.Errorf("failed to decode PEM certificate: %w", err)
		}
		der = append(der, d)
	}
	leaf, inter, root, err := classifyCertRoles(der)
	if err != nil {
		return certs, nested, err
	}
	certs.PckLeaf, certs.Intermediate, certs.Root = leaf, inter, root
	return certs, nested, nil
}

// classifyCertRoles sorts a bundle of three DER certificates into
// leaf/intermediate/root by their issuer/subject relationships instead
// of trusting the order they arrived in: a self-signed certificate
// (subject == issuer) is the root, and among the remaining two the one
// whose subject is not any other certificate's issuer is the leaf.
func classifyCertRoles(der [][]byte) (leaf, intermediate, root []byte, err error) {
	parsed := make([]*x509.Certificate, len(der))
	for i, d := range der {
		c, perr := x509.ParseCertificate(d)
		if perr != nil {
			return nil, nil, nil, fmt.Errorf("failed to parse certificate for role classification: %w", perr)
		}
		parsed[i] = c
	}

	var rootIdx = -1
	for i, c := range parsed {
		if c.Subject.String() == c.Issuer.String() {
			rootIdx = i
			break
		}
	}
	if rootIdx < 0 {
		return nil, nil, nil, fmt.Errorf("no self-signed root certificate found in bundle")
	}

	var leafIdx = -1
	for i, c := range parsed {
		if i == rootIdx {
			continue
		}
		isIssuerOfAnother := false
		for j, other := range parsed {
			if j == i {
				continue
			}
			if other.Issuer.String() == c.Subject.String() {
				isIssuerOfAnother = true
				break
			}
		}
		if !isIssuerOfAnother {
			leafIdx = i
			break
		}
	}
	if leafIdx < 0 {
		return nil, nil, nil, fmt.Errorf("no leaf certificate found in bundle")
	}

	for i := range parsed {
		if i != rootIdx && i != leafIdx {
			return der[leafIdx], der[i], der[rootIdx], nil
		}
	}
	return nil, nil, nil, fmt.Errorf("no intermediate certificate found in bundle")
}
