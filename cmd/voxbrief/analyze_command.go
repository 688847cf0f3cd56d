package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Transcribe and analyze an existing recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read recording: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := newController(cfg, nil, nil, logger)
			defer ctrl.Close()

			if err := ctrl.LoadModel(runCtx); err != nil {
				return fmt.Errorf("load transcription model: %w", err)
			}
			if err := ctrl.Ingest(runCtx, blob); err != nil {
				return err
			}
			snap, err := ctrl.Wait(runCtx)
			if err != nil {
				return err
			}
			return finishSession(cmd, snap, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the session snapshot as JSON")
	return cmd
}
