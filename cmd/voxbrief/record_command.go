package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voxbrief/internal/preflight"
	"voxbrief/internal/session"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var skipChecks bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone, then transcribe and analyze",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if !skipChecks {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, preflight.Options{})); len(failed) > 0 {
					for _, r := range failed {
						fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(r.Name, statusError, r.Detail, false))
					}
					return fmt.Errorf("preflight failed; run `voxbrief status` for details or pass --skip-checks")
				}
			}

			source, err := newCaptureSource(cfg, logger)
			if err != nil {
				return err
			}
			ctrl := newController(cfg, newRecorder(cfg, source, logger), nil, logger)
			defer ctrl.Close()

			fmt.Fprintln(out, renderStatusLine("Model", statusInfo, session.StatusLoading, colorize))
			if err := ctrl.LoadModel(cmd.Context()); err != nil {
				return fmt.Errorf("load transcription model: %w", err)
			}
			if err := ctrl.Start(cmd.Context()); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			interactive := isInteractive(cmd.InOrStdin())
			prompt := "send SIGINT (Ctrl+C) to stop"
			if interactive {
				prompt = "press Enter to stop"
			}
			fmt.Fprintln(out, renderStatusLine("Recording", statusInfo, fmt.Sprintf("%s on %s; %s", session.StatusRecording, source.Device(), prompt), colorize))

			waitForStop(cmd.Context(), ctrl, cmd.InOrStdin(), interactive, sigCh, duration)
			if err := ctrl.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, session.StatusTranscribing, colorize))

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-runCtx.Done():
				}
			}()
			snap, err := ctrl.Wait(runCtx)
			if err != nil {
				return err
			}
			return finishSession(cmd, snap, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the session snapshot as JSON")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip dependency and device checks before recording")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop automatically after this long (0 records until stopped)")
	return cmd
}

// waitForStop returns when the user asks to stop, the duration elapses, ctx
// ends, or the session leaves Recording on its own.
func waitForStop(ctx context.Context, ctrl *session.Controller, in io.Reader, interactive bool, sigCh <-chan os.Signal, duration time.Duration) {
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	enter := make(chan struct{})
	if interactive {
		go func() {
			_, _ = bufio.NewReader(in).ReadString('\n')
			close(enter)
		}()
	}
	var timeout <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-enter:
			return
		case <-sigCh:
			return
		case <-timeout:
			return
		case snap, ok := <-updates:
			if !ok || snap.State != session.StateRecording {
				return
			}
		}
	}
}
