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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSgxQuote(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	// header
	binary.Write(buf, binary.LittleEndian, uint16(3))          // version
	binary.Write(buf, binary.LittleEndian, uint16(2))          // attestation key type
	binary.Write(buf, binary.LittleEndian, uint32(TeeTypeSGX)) // tee_type
	buf.Write(make([]byte, 4))                                 // reserved1
	buf.Write(make([]byte, 16))                                // vendor id
	buf.Write(make([]byte, 20))                                // user data
	require.Equal(t, HeaderLen, buf.Len())

	// body (384 bytes)
	buf.Write(make([]byte, SgxBodyLen))

	// signature block
	sig := new(bytes.Buffer)
	sig.Write(make([]byte, 64))  // quote signature
	sig.Write(make([]byte, 64))  // attestation key
	sig.Write(make([]byte, SgxBodyLen)) // qe report
	sig.Write(make([]byte, 64))  // qe report signature
	binary.Write(sig, binary.LittleEndian, uint16(0)) // qe_auth_data_len
	binary.Write(sig, binary.LittleEndian, uint16(CertDataPckLeaf))
	binary.Write(sig, binary.LittleEndian, uint32(0)) // cert_data_len

	binary.Write(buf, binary.LittleEndian, uint32(sig.Len()))
	buf.Write(sig.Bytes())

	return buf.Bytes()
}

func TestParseSGXRoundTrip(t *testing.T) {
	raw := buildSgxQuote(t)
	q, err := ParseSGX(raw)
	require.NoError(t, err)
	require.True(t, q.IsSGX())
	require.Equal(t, uint16(3), q.Header.Version)
	require.Equal(t, TeeTypeSGX, q.Header.TeeType)
	require.Equal(t, CertDataPckLeaf, q.Signature.CertDataType)
}

func TestParseSGXTruncated(t *testing.T) {
	raw := buildSgxQuote(t)
	_, err := ParseSGX(raw[:HeaderLen+10])
	require.Error(t, err)
}

func TestParseSGXWrongTeeType(t *testing.T) {
	raw := buildSgxQuote(t)
	binary.LittleEndian.PutUint32(raw[4:8], uint32(TeeTypeTDX))
	_, err := ParseSGX(raw)
	require.ErrorIs(t, err, ErrUnsupportedTeeType)
}

func TestParseDispatchesByTeeType(t *testing.T) {
	raw := buildSgxQuote(t)
	q, err := Parse(raw)
	require.NoError(t, err)
	require.True(t, q.IsSGX())
}

func TestParseBase64AndHex(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	b64 := "AQIDBA=="
	got, err := ParseBase64(b64)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	h := "01020304"
	got, err = ParseHex(h)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}
