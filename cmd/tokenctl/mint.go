package main

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

func newMintCmd(a *app) *cobra.Command {
	var (
		claimsArg string
		opts      token.MintOptions
		audience  []string
		service   string
		holderKey string
		certFile  string
		version   int
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token",
		Long: `Mint issues a token through the router. --svc forces a service kind
(jwt, dpop-jwt, mtls-jwt, paseto-v4, ssh-cert); otherwise the router picks one
from the claims and --alg.

DPoP-bound tokens need --holder-key, a PEM private key whose public half is
bound through cnf.jkt. Certificate-bound tokens need --cert.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			claims, err := readClaims(claimsArg, cmd.InOrStdin())
			if err != nil {
				return err
			}
			opts.Audience = audience
			if version > 0 {
				opts.KeyVersion = token.Version(version)
			}
			if service != "" {
				opts.Headers = map[string]any{"svc": service}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if holderKey != "" {
				signer, err := readPrivateKey(holderKey)
				if err != nil {
					return err
				}
				ctx = dpop.WithHolderKey(ctx, signer.Public())
			}
			if certFile != "" {
				cert, err := readCertificate(certFile)
				if err != nil {
					return err
				}
				ctx = token.WithClientCertificate(ctx, cert)
			}

			e, cleanup, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			raw, err := e.Mint(ctx, claims, opts)
			if err != nil {
				return fmt.Errorf("minting failed: %w", err)
			}
			_, err = fmt.Fprintln(a.out, raw)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&claimsArg, "claims", "", `Claims as a JSON object, @file, or "-" for stdin`)
	f.StringVar(&opts.Subject, "sub", "", "Subject")
	f.StringVar(&opts.Issuer, "iss", "", "Issuer")
	f.StringSliceVar(&audience, "aud", nil, "Audience (repeatable)")
	f.StringVar(&opts.Scope, "scope", "", "Scope")
	f.StringVar(&opts.Alg, "alg", "", "Signing algorithm or PASETO purpose")
	f.StringVar(&opts.Kid, "kid", "", "Key id")
	f.IntVar(&version, "key-version", 0, "Key version (default latest)")
	f.DurationVar(&opts.Lifetime, "lifetime", 0, "Token lifetime (default from config)")
	f.StringVar(&service, "svc", "", "Service kind to mint with")
	f.StringVar(&holderKey, "holder-key", "", "PEM private key of the DPoP holder")
	f.StringVar(&certFile, "cert", "", "PEM client certificate for certificate-bound tokens")
	return cmd
}

// readClaims parses a JSON object given inline, as @file or on stdin.
func readClaims(arg string, stdin io.Reader) (token.Claims, error) {
	var data []byte
	switch {
	case arg == "":
		return token.Claims{}, nil
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading claims: %w", err)
		}
		data = b
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("reading claims: %w", err)
		}
		data = b
	default:
		data = []byte(arg)
	}
	claims := token.Claims{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("parsing claims: %w", err)
	}
	return claims, nil
}

func readPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	signer, err := keys.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", path, err)
	}
	return signer, nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("certificate file holds no PEM certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}
