package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	goToken "github.com/MrEthical07/goToken"
)

func newLintCmd(a *app) *cobra.Command {
	var failOn string
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Report configuration settings that weaken token binding or replay protection",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			threshold, err := parseSeverity(failOn)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			findings := cfg.Lint()
			if findings == nil {
				findings = goToken.LintResult{}
			}
			if err := a.printJSON(findings); err != nil {
				return err
			}
			if err := findings.AsError(threshold); err != nil {
				return err
			}
			a.log.Info().Int("findings", len(findings)).Msg("configuration passes lint")
			return nil
		},
	}
	cmd.Flags().StringVar(&failOn, "fail-on", "high", "Lowest severity that fails the command (info, warn, high)")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the security posture of the configured engine",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			e, cleanup, err := a.buildEngine()
			if err != nil {
				return err
			}
			defer cleanup()
			return a.printJSON(e.SecurityReport())
		},
	}
}

func parseSeverity(s string) (goToken.LintSeverity, error) {
	switch strings.ToLower(s) {
	case "info":
		return goToken.LintInfo, nil
	case "warn":
		return goToken.LintWarn, nil
	case "high", "":
		return goToken.LintHigh, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}
