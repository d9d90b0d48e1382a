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

// Command qvlctl parses and verifies SGX/TDX quotes offline, for
// operators inspecting a captured quote without standing up a relay.
package main

import (
	"context"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/confidential-edge/ratunnel/internal/certutil"
	"github.com/confidential-edge/ratunnel/quote"
	"github.com/confidential-edge/ratunnel/verify"
)

var log = logrus.WithField("service", "qvlctl")

func main() {
	cmd := &cli.Command{
		Name:  "qvlctl",
		Usage: "parse and verify Intel SGX/TDX DCAP quotes",
		Commands: []*cli.Command{
			parseCmd(),
			verifyCmd(),
			dumpFmspcCmd(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadQuote(path string) (quote.Quote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("failed to read quote file %s: %w", path, err)
	}
	return quote.Parse(data)
}

func parseCmd() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse a raw quote file and print its header fields",
		ArgsUsage: "<quote-file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("usage: qvlctl parse <quote-file>")
			}
			q, err := loadQuote(path)
			if err != nil {
				return err
			}
			fmt.Printf("version=%d tee_type=0x%x\n", q.Header.Version, q.Header.TeeType)
			if q.IsSGX() {
				fmt.Printf("mrenclave=%x\nmrsigner=%x\n", q.SgxBody.MREnclave, q.SgxBody.MRSigner)
			}
			if q.TdxV4Body != nil {
				fmt.Printf("mrtd=%x\nrtmr0=%x\n", q.TdxV4Body.MRTd, q.TdxV4Body.RTMR0)
			}
			if q.TdxV5Body != nil {
				fmt.Printf("mrtd=%x\nrtmr0=%x\n", q.TdxV5Body.MRTd, q.TdxV5Body.RTMR0)
			}
			fmt.Printf("cert_data_type=%d\n", q.Signature.CertDataType)
			return nil
		},
	}
}

func verifyCmd() *cli.Command {
	var rootPath string
	return &cli.Command{
		Name:      "verify",
		Usage:     "verify a quote's signature chain and PCK certificate chain",
		ArgsUsage: "<quote-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Usage: "path to pinned Intel SGX Root CA PEM", Destination: &rootPath},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("usage: qvlctl verify --root <root.pem> <quote-file>")
			}
			q, err := loadQuote(path)
			if err != nil {
				return err
			}
			var roots []*x509.Certificate
			if rootPath != "" {
				data, err := os.ReadFile(rootPath)
				if err != nil {
					return fmt.Errorf("failed to read root CA file: %w", err)
				}
				roots, err = certutil.ParseCertsPem(data)
				if err != nil {
					return err
				}
			}
			store := verify.TrustStore{Roots: roots}
			report, err := verify.Verify(q, store, verify.AcceptAll)
			if err != nil {
				fmt.Printf("FAIL: %v\n", err)
				return err
			}
			fmt.Printf("chain=%s signature=%v\n", report.Chain.Status, report.Signature.Success)
			return nil
		},
	}
}

func dumpFmspcCmd() *cli.Command {
	return &cli.Command{
		Name:      "dump-fmspc",
		Usage:     "print the FMSPC embedded in a quote's PCK leaf certificate",
		ArgsUsage: "<quote-file>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("usage: qvlctl dump-fmspc <quote-file>")
			}
			q, err := loadQuote(path)
			if err != nil {
				return err
			}
			certs, _, err := q.Signature.ResolveCertificates(verify.PemToDer)
			if err != nil {
				return err
			}
			leaf, err := certutil.ParseCert(certs.PckLeaf)
			if err != nil {
				return err
			}
			ext, err := quote.ParseSgxExtension(leaf)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(ext.FMSPC))
			return nil
		},
	}
}
