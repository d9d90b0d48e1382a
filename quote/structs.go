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

// TeeType identifies the attested execution environment carried in the
// quote header.
type TeeType uint32

const (
	TeeTypeSGX TeeType = 0x00000000
	TeeTypeTDX TeeType = 0x00000081
)

// Header is the 48-byte common quote header shared by SGX and TDX
// quotes.
type Header struct {
	Version            uint16
	AttestationKeyType uint16
	TeeType            TeeType
	Reserved1          [4]byte
	VendorID           [16]byte
	UserData           [20]byte
}

const HeaderLen = 48

func parseHeader(r *byteReader) (Header, error) {
	var h Header
	var err error
	if h.Version, err = r.u16(); err != nil {
		return h, err
	}
	if h.AttestationKeyType, err = r.u16(); err != nil {
		return h, err
	}
	teeType, err := r.u32()
	if err != nil {
		return h, err
	}
	h.TeeType = TeeType(teeType)
	b, err := r.fixed(4)
	if err != nil {
		return h, err
	}
	copy(h.Reserved1[:], b)
	b, err = r.fixed(16)
	if err != nil {
		return h, err
	}
	copy(h.VendorID[:], b)
	b, err = r.fixed(20)
	if err != nil {
		return h, err
	}
	copy(h.UserData[:], b)
	return h, nil
}

// SgxBody is the 384-byte SGX enclave report body.
type SgxBody struct {
	CPUSVN     [16]byte
	MiscSelect uint32
	Reserved1  [28]byte
	Attributes [16]byte
	MREnclave  [32]byte
	Reserved2  [32]byte
	MRSigner   [32]byte
	Reserved3  [96]byte
	ISVProdID  uint16
	ISVSVN     uint16
	Reserved4  [60]byte
	ReportData [64]byte
}

const SgxBodyLen = 384

func parseSgxBody(r *byteReader) (SgxBody, error) {
	var b SgxBody
	var err error
	if b.CPUSVN, err = fixed16(r); err != nil {
		return b, err
	}
	if b.MiscSelect, err = r.u32(); err != nil {
		return b, err
	}
	if _, err = r.take(28); err != nil {
		return b, err
	}
	if b.Attributes, err = fixed16(r); err != nil {
		return b, err
	}
	if b.MREnclave, err = fixed32(r); err != nil {
		return b, err
	}
	if _, err = r.take(32); err != nil {
		return b, err
	}
	if b.MRSigner, err = fixed32(r); err != nil {
		return b, err
	}
	if _, err = r.take(96); err != nil {
		return b, err
	}
	if b.ISVProdID, err = r.u16(); err != nil {
		return b, err
	}
	if b.ISVSVN, err = r.u16(); err != nil {
		return b, err
	}
	if _, err = r.take(60); err != nil {
		return b, err
	}
	if b.ReportData, err = fixed64(r); err != nil {
		return b, err
	}
	return b, nil
}

func fixed16(r *byteReader) (out [16]byte, err error) {
	b, err := r.take(16)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func fixed32(r *byteReader) (out [32]byte, err error) {
	b, err := r.take(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func fixed48(r *byteReader) (out [48]byte, err error) {
	b, err := r.take(48)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func fixed64(r *byteReader) (out [64]byte, err error) {
	b, err := r.take(64)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// TdxBodyV4 is the 584-byte TDX 1.0 report body carried by TDX quote
// version 4.
type TdxBodyV4 struct {
	TeeTcbSvn      [16]byte
	MRSeam         [48]byte
	MRSignerSeam   [48]byte
	SeamAttributes [8]byte
	TdAttributes   [8]byte
	Xfam           [8]byte
	MRTd           [48]byte
	MRConfigID     [48]byte
	MROwner        [48]byte
	MROwnerConfig  [48]byte
	RTMR0          [48]byte
	RTMR1          [48]byte
	RTMR2          [48]byte
	RTMR3          [48]byte
	ReportData     [64]byte
}

const TdxBodyV4Len = 584

func parseTdxBodyV4(r *byteReader) (TdxBodyV4, error) {
	var b TdxBodyV4
	var err error
	if b.TeeTcbSvn, err = fixed16(r); err != nil {
		return b, err
	}
	if b.MRSeam, err = fixed48(r); err != nil {
		return b, err
	}
	if b.MRSignerSeam, err = fixed48(r); err != nil {
		return b, err
	}
	if b.SeamAttributes, err = fixed8(r); err != nil {
		return b, err
	}
	if b.TdAttributes, err = fixed8(r); err != nil {
		return b, err
	}
	if b.Xfam, err = fixed8(r); err != nil {
		return b, err
	}
	if b.MRTd, err = fixed48(r); err != nil {
		return b, err
	}
	if b.MRConfigID, err = fixed48(r); err != nil {
		return b, err
	}
	if b.MROwner, err = fixed48(r); err != nil {
		return b, err
	}
	if b.MROwnerConfig, err = fixed48(r); err != nil {
		return b, err
	}
	if b.RTMR0, err = fixed48(r); err != nil {
		return b, err
	}
	if b.RTMR1, err = fixed48(r); err != nil {
		return b, err
	}
	if b.RTMR2, err = fixed48(r); err != nil {
		return b, err
	}
	if b.RTMR3, err = fixed48(r); err != nil {
		return b, err
	}
	if b.ReportData, err = fixed64(r); err != nil {
		return b, err
	}
	return b, nil
}

func fixed8(r *byteReader) (out [8]byte, err error) {
	b, err := r.take(8)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// TdxBodyV5 is the TDX v4 body shape followed on the wire by the
// TDX-1.5 MRServiceTd field. Fields beyond the documented TDX-1.5 set are preserved
// verbatim in Extended rather than rejected, per the reference's
// treatment of forward-compatible trailing report fields.
type TdxBodyV5 struct {
	TdxBodyV4
	MRServiceTd [48]byte
	Extended    []byte
}

const tdxV5PrefixLen = 48

func parseTdxBodyV5(r *byteReader, totalLen int) (TdxBodyV5, error) {
	var b TdxBodyV5
	v4, err := parseTdxBodyV4(r)
	if err != nil {
		return b, err
	}
	b.TdxBodyV4 = v4
	remaining := totalLen - TdxBodyV4Len
	if remaining < tdxV5PrefixLen {
		// No 1.5 descriptor present; nothing further to read.
		return b, nil
	}
	if b.MRServiceTd, err = fixed48(r); err != nil {
		return b, err
	}
	remaining -= tdxV5PrefixLen
	if remaining > 0 {
		extra, err := r.take(remaining)
		if err != nil {
			return b, err
		}
		b.Extended = append([]byte(nil), extra...)
	}
	return b, nil
}
