package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goToken/token"
)

func newJWKSCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the merged public key set of every registered service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			set, err := e.JWKS(ctx)
			if err != nil {
				return err
			}
			return a.printJSON(set)
		},
	}
}

type serviceInfo struct {
	Kind    string   `json:"kind"`
	Variant string   `json:"variant"`
	Formats []string `json:"formats"`
	Algs    []string `json:"algs"`
}

func newSupportsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supports",
		Short: "Print the registered services and their combined capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()

			out := struct {
				Services []serviceInfo     `json:"services"`
				Combined token.Capabilities `json:"combined"`
			}{Combined: e.Supports()}
			for _, svc := range e.Router().Services() {
				caps := svc.Supports()
				out.Services = append(out.Services, serviceInfo{
					Kind:    svc.Kind(),
					Variant: svc.Variant().String(),
					Formats: caps.Formats,
					Algs:    caps.Algs,
				})
			}
			return a.printJSON(out)
		},
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
