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

// Command relayd hosts the attested tunnel's /__ra__ endpoint,
// dispatching virtualized HTTP requests into a sample host
// application and proxying virtualized WebSocket sub-connections to
// their target URLs through an outbound WebSocket dialer.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/confidential-edge/ratunnel/quote"
	"github.com/confidential-edge/ratunnel/tunnel"
	"github.com/confidential-edge/ratunnel/verify"
)

var log = logrus.WithField("service", "relayd")

func main() {
	var configPath, addr string
	cmd := &cli.Command{
		Name:  "relayd",
		Usage: "attested tunnel relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Destination: &configPath, Usage: "path to relayd JSON config"},
			&cli.StringFlag{Name: "addr", Destination: &addr, Usage: "listen address, overrides config"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(configPath, addr)
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, addrOverride string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	if err := cfg.applyLogLevel(); err != nil {
		return err
	}

	keys, err := tunnel.GenerateKeyPair()
	if err != nil {
		return err
	}

	// The relay's own quote is read from QuotePath; nothing in this
	// module generates it.
	quoteBytes, err := loadOwnQuote(cfg)
	if err != nil {
		log.Warnf("no attestation quote configured, serving with an empty quote (development mode): %v", err)
	}

	if len(quoteBytes) > 0 && cfg.RootCAPath != "" {
		if err := verifyOwnQuote(cfg, quoteBytes); err != nil {
			return fmt.Errorf("self-verification of relay quote failed: %w", err)
		}
		log.Info("relay quote self-verification passed")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/uptime", uptimeHandler)

	var opts []tunnel.Option
	if d, ok := cfg.requestTimeout(); ok {
		opts = append(opts, tunnel.WithRequestTimeout(d))
	}
	measurementPolicy, err := cfg.measurementPolicy()
	if err != nil {
		return err
	}
	if measurementPolicy != nil {
		opts = append(opts, tunnel.WithMeasurementPolicy(measurementPolicy))
	}
	srv := tunnel.NewServer(keys, quoteBytes, mux, tunnel.NewRealDialer(), opts...)

	httpMux := http.NewServeMux()
	httpMux.Handle("/__ra__", srv)

	log.Infof("relayd listening on %s", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, httpMux)
}

func loadOwnQuote(cfg *config) ([]byte, error) {
	if cfg.QuotePath == "" {
		return nil, fmt.Errorf("quotePath not configured")
	}
	return os.ReadFile(cfg.QuotePath)
}

// verifyOwnQuote runs the full PCK chain, signature and TCB policy
// pipeline against the relay's own quote before it starts serving,
// exercising the same pinned trust store, CRLs and TCB policy a
// client would need to accept the relay's attestation.
func verifyOwnQuote(cfg *config, quoteBytes []byte) error {
	q, err := quote.Parse(quoteBytes)
	if err != nil {
		return fmt.Errorf("failed to parse quote: %w", err)
	}
	store, err := cfg.trustStore()
	if err != nil {
		return err
	}
	policy, err := cfg.tcbPolicy()
	if err != nil {
		return err
	}
	report, err := verify.Verify(q, store, policy)
	if err != nil {
		return err
	}
	if !report.Signature.Success {
		return fmt.Errorf("quote signature verification did not succeed")
	}
	return nil
}
