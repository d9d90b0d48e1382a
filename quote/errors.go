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

import "errors"

// Sentinel errors returned by the parsers. Wrapped with additional
// context via fmt.Errorf("...: %w", err) at the call site.
var (
	ErrTruncatedField          = errors.New("quote: truncated field")
	ErrLengthOverflow          = errors.New("quote: declared length exceeds remaining buffer")
	ErrUnsupportedVersion      = errors.New("quote: unsupported quote version")
	ErrUnsupportedTeeType      = errors.New("quote: unsupported TEE type")
	ErrUnsupportedCertDataType = errors.New("quote: unsupported certification data type")
)
