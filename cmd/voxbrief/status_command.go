package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxbrief/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check dependencies, directories, and the capture device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			printLines(out, renderSection("Configuration", colorize))
			rows := [][]string{
				{"Config file", ctx.configPath},
				{"Capture", fmt.Sprintf("%s (%s)", cfg.Capture.Backend, cfg.Capture.Device)},
				{"Transcription", fmt.Sprintf("%s (%s)", cfg.Transcription.Backend, cfg.Transcription.Model)},
				{"Analysis", fmt.Sprintf("%s (%s)", cfg.Analysis.Provider, cfg.Analysis.Model)},
				{"Credential set", yesNo(cfg.HasCredential())},
				{"Server", cfg.Server.Bind},
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows, 1))

			fmt.Fprintln(out)
			printLines(out, renderSection("Checks", colorize))
			for _, result := range preflight.RunAll(cmd.Context(), cfg, preflight.Options{Remote: remote}) {
				kind := statusOK
				switch {
				case !result.Passed && result.Optional:
					kind = statusWarn
				case !result.Passed:
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also check the analysis API with the configured credential")
	return cmd
}
