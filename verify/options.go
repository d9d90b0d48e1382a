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

import "time"

// Options configures optional relaxations to quote verification.
type Options struct {
	acceptAzureVTpm bool
	evalTime        time.Time
}

// Option mutates Options; the functional-options shape mirrors the
// ConnectionOption pattern used throughout the tunnel package.
type Option func(*Options)

// WithAzureVTpmAcceptance allows verification of quotes whose
// certification data type is 6 or 7 (Azure vTPM nested PCK chain)
// without checking the QE report signature or the QE report binding,
// matching the reference implementation's disabled assertion for this
// vendor-specific delivery path. The PCK chain and the quote body
// signature are still verified.
func WithAzureVTpmAcceptance() Option {
	return func(o *Options) { o.acceptAzureVTpm = true }
}

// WithEvaluationTime pins the point in time at which the PCK chain's
// certificate validity is evaluated, instead of the moment Verify
// runs. Used by callers re-checking archived quotes.
func WithEvaluationTime(t time.Time) Option {
	return func(o *Options) { o.evalTime = t }
}

func newOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
