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

package tunnel

import "time"

// Option configures a Session at construction time, following the
// functional-options pattern used throughout this codebase's
// connection setup surfaces.
type Option func(*sessionConfig)

type sessionConfig struct {
	requestTimeout    time.Duration
	measurementPolicy MeasurementPolicy
}

// MeasurementPolicy decides whether a verified quote's measurements
// (mr_td / mr_enclave) are acceptable for establishing a tunnel. It is
// distinct from verify.TcbPolicy, which judges platform freshness
// rather than workload identity.
type MeasurementPolicy func(mrenclaveOrMrtd []byte) bool

// AcceptAnyMeasurement is a permissive MeasurementPolicy for local
// development; production callers should pin an allow-list.
func AcceptAnyMeasurement([]byte) bool { return true }

// WithRequestTimeout overrides the default 30s virtual HTTP request
// timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *sessionConfig) { c.requestTimeout = d }
}

// WithMeasurementPolicy installs a MeasurementPolicy other than
// AcceptAnyMeasurement.
func WithMeasurementPolicy(p MeasurementPolicy) Option {
	return func(c *sessionConfig) { c.measurementPolicy = p }
}

func defaultConfig() sessionConfig {
	return sessionConfig{
		requestTimeout:    30 * time.Second,
		measurementPolicy: AcceptAnyMeasurement,
	}
}
