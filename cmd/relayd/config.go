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

package main

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/confidential-edge/ratunnel/internal/certutil"
	"github.com/confidential-edge/ratunnel/tunnel"
	"github.com/confidential-edge/ratunnel/verify"
)

// config mirrors the relay's JSON configuration file; command-line
// flags parsed in main.go supersede whatever is set here.
type config struct {
	Addr           string `json:"addr"`
	QuotePath      string `json:"quotePath,omitempty"`
	LogLevel       string `json:"logLevel"`
	RequestTimeout string `json:"requestTimeout,omitempty"`

	// RootCAPath pins the Intel SGX/TDX Root CA bundle (PEM, one or
	// more certificates) used to self-verify the relay's own quote at
	// startup before it starts serving.
	RootCAPath string `json:"rootCAPath,omitempty"`
	// CRLPaths lists DER-encoded CRL files checked during that
	// self-verification.
	CRLPaths []string `json:"crlPaths,omitempty"`
	// TCBPolicy names a built-in verify.TcbPolicy. Only "accept-all"
	// is currently wired; unset defaults to it.
	TCBPolicy string `json:"tcbPolicy,omitempty"`
	// MeasurementAllowList is a set of hex-encoded MRENCLAVE/MRTD
	// values installed as the tunnel server's measurement policy
	// (tunnel.WithMeasurementPolicy). The relay's own measurement is
	// not checked against it at startup. Empty leaves the tunnel's
	// default policy in place.
	MeasurementAllowList []string `json:"measurementAllowList,omitempty"`
}

// requestTimeout parses RequestTimeout, falling back to the tunnel
// package's default when unset or malformed.
func (c *config) requestTimeout() (time.Duration, bool) {
	if c.RequestTimeout == "" {
		return 0, false
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, false
	}
	return d, true
}

// trustStore builds a verify.TrustStore from RootCAPath and CRLPaths.
// A zero value is returned, without error, when RootCAPath is unset.
func (c *config) trustStore() (verify.TrustStore, error) {
	var store verify.TrustStore
	if c.RootCAPath == "" {
		return store, nil
	}
	pemBytes, err := os.ReadFile(c.RootCAPath)
	if err != nil {
		return store, fmt.Errorf("failed to read root CA bundle %s: %w", c.RootCAPath, err)
	}
	roots, err := certutil.ParseCertsPem(pemBytes)
	if err != nil {
		return store, fmt.Errorf("failed to parse root CA bundle %s: %w", c.RootCAPath, err)
	}
	store.Roots = roots

	for _, p := range c.CRLPaths {
		der, err := os.ReadFile(p)
		if err != nil {
			return store, fmt.Errorf("failed to read CRL %s: %w", p, err)
		}
		crl, err := x509.ParseRevocationList(der)
		if err != nil {
			return store, fmt.Errorf("failed to parse CRL %s: %w", p, err)
		}
		store.CRLs = append(store.CRLs, crl)
	}
	return store, nil
}

// builtinTcbPolicies is the plugin hook's initial set of named
// verify.TcbPolicy implementations. Only accept-all is provided; a
// deployment wanting live TCB recovery data would add an entry here.
var builtinTcbPolicies = map[string]verify.TcbPolicy{
	"accept-all": verify.AcceptAll,
}

// tcbPolicy resolves TCBPolicy to a verify.TcbPolicy, defaulting to
// accept-all when unset.
func (c *config) tcbPolicy() (verify.TcbPolicy, error) {
	name := c.TCBPolicy
	if name == "" {
		name = "accept-all"
	}
	p, ok := builtinTcbPolicies[name]
	if !ok {
		return nil, fmt.Errorf("unknown TCB policy %q", name)
	}
	return p, nil
}

// measurementPolicy builds a tunnel.MeasurementPolicy from
// MeasurementAllowList's hex-encoded values, or nil when the list is
// empty, leaving the tunnel package's own default in place.
func (c *config) measurementPolicy() (tunnel.MeasurementPolicy, error) {
	if len(c.MeasurementAllowList) == 0 {
		return nil, nil
	}
	allowed := make(map[string]bool, len(c.MeasurementAllowList))
	for _, h := range c.MeasurementAllowList {
		b, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("invalid measurementAllowList entry %q: %w", h, err)
		}
		allowed[string(b)] = true
	}
	return func(measurement []byte) bool {
		return allowed[string(measurement)]
	}, nil
}

var logLevels = map[string]logrus.Level{
	"panic": logrus.PanicLevel,
	"fatal": logrus.FatalLevel,
	"error": logrus.ErrorLevel,
	"warn":  logrus.WarnLevel,
	"info":  logrus.InfoLevel,
	"debug": logrus.DebugLevel,
	"trace": logrus.TraceLevel,
}

func loadConfig(path string) (*config, error) {
	c := &config{Addr: ":8443", LogLevel: "info"}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return c, nil
}

func (c *config) applyLogLevel() error {
	l, ok := logLevels[strings.ToLower(c.LogLevel)]
	if !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	logrus.SetLevel(l)
	return nil
}
