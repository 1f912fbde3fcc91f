package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goToken/token"
)

func newVerifyCmd(a *app) *cobra.Command {
	var (
		opts     token.VerifyOptions
		useCfg   bool
		proof    token.ProofContext
		certFile string
	)
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its claims",
		Long: `Verify checks a token through the router and prints its claims as JSON.
The token is read from stdin when no argument is given.

DPoP-bound tokens need --proof, --htm and --htu; certificate-bound tokens
need --cert.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := tokenArg(cmd, args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if proof.Proof != "" {
				ctx = token.WithProofContext(ctx, proof)
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

			if useCfg {
				defaults := e.DefaultVerifyOptions()
				if opts.Issuer == "" {
					opts.Issuer = defaults.Issuer
				}
				if len(opts.Audience) == 0 {
					opts.Audience = defaults.Audience
				}
				if !cmd.Flags().Changed("leeway") {
					opts.Leeway = defaults.Leeway
				}
			}

			claims, err := e.Verify(ctx, raw, opts)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			return a.printJSON(claims)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Issuer, "iss", "", "Expected issuer")
	f.StringSliceVar(&opts.Audience, "aud", nil, "Accepted audience (repeatable)")
	f.DurationVar(&opts.Leeway, "leeway", 0, "Clock skew leeway")
	f.BoolVar(&useCfg, "config-defaults", true, "Fill unset expectations from the engine config")
	f.StringVar(&proof.Proof, "proof", "", "DPoP proof JWT")
	f.StringVar(&proof.HTM, "htm", "GET", "HTTP method the proof was made for")
	f.StringVar(&proof.HTU, "htu", "", "HTTP URI the proof was made for")
	f.StringVar(&proof.Nonce, "nonce", "", "Server-issued DPoP nonce")
	f.StringVar(&certFile, "cert", "", "PEM client certificate presented with the token")
	return cmd
}

func tokenArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no token given")
	}
	return strings.TrimSpace(sc.Text()), nil
}
