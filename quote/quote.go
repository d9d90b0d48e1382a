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
	"encoding/base64"
	"encoding/hex"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Quote is the parsed representation of an SGX or TDX quote, exposing
// the header, TEE-specific body and trailing signature block through
// a single type so verify.VerifyQuoteSignature can operate uniformly.
type Quote struct {
	Header    Header
	Raw       []byte // header||body, the bytes actually signed
	SgxBody   *SgxBody
	TdxV4Body *TdxBodyV4
	TdxV5Body *TdxBodyV5
	Signature SignatureBlock
}

// IsSGX reports whether this quote carries an SGX enclave report body.
func (q Quote) IsSGX() bool { return q.SgxBody != nil }

// IsTDX reports whether this quote carries a TDX TD report body.
func (q Quote) IsTDX() bool { return q.TdxV4Body != nil || q.TdxV5Body != nil }

// ReportData returns the 64-byte report_data field common to SGX and
// TDX report bodies, used for QE report binding checks.
func (q Quote) ReportData() [64]byte {
	switch {
	case q.SgxBody != nil:
		return q.SgxBody.ReportData
	case q.TdxV5Body != nil:
		return q.TdxV5Body.ReportData
	case q.TdxV4Body != nil:
		return q.TdxV4Body.ReportData
	}
	return [64]byte{}
}

// ParseSGX parses a raw SGX DCAP quote (header + 384-byte enclave
// report body + signature block).
func ParseSGX(b []byte) (Quote, error) {
	r := newReader(b)
	h, err := parseHeader(r)
	if err != nil {
		return Quote{}, fmt.Errorf("header: %w", err)
	}
	if h.TeeType != TeeTypeSGX {
		return Quote{}, fmt.Errorf("%w: header tee_type 0x%x is not SGX", ErrUnsupportedTeeType, h.TeeType)
	}
	bodyStart := r.pos
	body, err := parseSgxBody(r)
	if err != nil {
		return Quote{}, fmt.Errorf("body: %w", err)
	}
	sig, err := parseSignatureBlock(r)
	if err != nil {
		return Quote{}, fmt.Errorf("signature: %w", err)
	}
	log.Tracef("parsed SGX quote, mrenclave=%x", body.MREnclave)
	return Quote{
		Header:    h,
		Raw:       b[:bodyStart+SgxBodyLen],
		SgxBody:   &body,
		Signature: sig,
	}, nil
}

// ParseTDX parses a raw TDX quote, supporting both version 4 (fixed
// 584-byte TDX 1.0 body) and version 5 (descriptor-prefixed body that
// may carry TDX-1.5 extensions).
func ParseTDX(b []byte) (Quote, error) {
	r := newReader(b)
	h, err := parseHeader(r)
	if err != nil {
		return Quote{}, fmt.Errorf("header: %w", err)
	}
	if h.TeeType != TeeTypeTDX {
		return Quote{}, fmt.Errorf("%w: header tee_type 0x%x is not TDX", ErrUnsupportedTeeType, h.TeeType)
	}

	bodyStart := r.pos
	switch h.Version {
	case 4:
		body, err := parseTdxBodyV4(r)
		if err != nil {
			return Quote{}, fmt.Errorf("body: %w", err)
		}
		sig, err := parseSignatureBlock(r)
		if err != nil {
			return Quote{}, fmt.Errorf("signature: %w", err)
		}
		log.Tracef("parsed TDX v4 quote, mrtd=%x", body.MRTd)
		return Quote{
			Header:    h,
			Raw:       b[:bodyStart+TdxBodyV4Len],
			TdxV4Body: &body,
			Signature: sig,
		}, nil
	case 5:
		// TDX quote header version 5 additionally prefixes a
		// (tee_type, body_type, body_size) descriptor before the body.
		teeType, err := r.u16()
		if err != nil {
			return Quote{}, fmt.Errorf("v5 descriptor tee_type: %w", err)
		}
		_ = teeType
		if _, err := r.u16(); err != nil {
			return Quote{}, fmt.Errorf("v5 descriptor body_type: %w", err)
		}
		bodySize, err := r.u32()
		if err != nil {
			return Quote{}, fmt.Errorf("v5 descriptor body_size: %w", err)
		}
		bodyStart = r.pos
		body, err := parseTdxBodyV5(r, int(bodySize))
		if err != nil {
			return Quote{}, fmt.Errorf("body: %w", err)
		}
		sig, err := parseSignatureBlock(r)
		if err != nil {
			return Quote{}, fmt.Errorf("signature: %w", err)
		}
		log.Tracef("parsed TDX v5 quote, mrtd=%x", body.MRTd)
		return Quote{
			Header:    h,
			Raw:       b[:bodyStart+int(bodySize)],
			TdxV5Body: &body,
			Signature: sig,
		}, nil
	default:
		return Quote{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, h.Version)
	}
}

// Parse dispatches to ParseSGX or ParseTDX based on the quote header's
// tee_type field, without needing the caller to know in advance which
// kind of quote it is receiving.
func Parse(b []byte) (Quote, error) {
	if len(b) < HeaderLen {
		return Quote{}, fmt.Errorf("%w: buffer shorter than header", ErrTruncatedField)
	}
	r := newReader(b)
	h, err := parseHeader(r)
	if err != nil {
		return Quote{}, err
	}
	switch h.TeeType {
	case TeeTypeSGX:
		return ParseSGX(b)
	case TeeTypeTDX:
		return ParseTDX(b)
	default:
		return Quote{}, fmt.Errorf("%w: 0x%x", ErrUnsupportedTeeType, h.TeeType)
	}
}

// ParseBase64 decodes a base64-encoded quote envelope, as delivered by
// Tappd/Phala style TDX quote endpoints.
func ParseBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if b2, err2 := base64.RawStdEncoding.DecodeString(s); err2 == nil {
			return b2, nil
		}
		return nil, fmt.Errorf("failed to decode base64 quote: %w", err)
	}
	return b, nil
}

// ParseHex decodes a hex-encoded quote envelope.
func ParseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex quote: %w", err)
	}
	return b, nil
}
