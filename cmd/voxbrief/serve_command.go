package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"voxbrief/internal/capture"
	"voxbrief/internal/logging"
	"voxbrief/internal/metrics"
	"voxbrief/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var localMic bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the presentation server for the browser front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			serverCfg := cfg.Server
			if strings.TrimSpace(bind) != "" {
				serverCfg.Bind = strings.TrimSpace(bind)
			}

			var source capture.Source
			var sink server.ChunkSink
			if localMic {
				source, err = newCaptureSource(cfg, logger)
				if err != nil {
					return err
				}
			} else {
				push := capture.NewPushSource()
				source, sink = push, push
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(registry)

			ctrl := newController(cfg, newRecorder(cfg, source, logger), m, logger)
			defer ctrl.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(serverCfg, ctrl, sink,
				server.WithLogger(logger),
				server.WithMetrics(m, registry),
			)
			if err := srv.Start(runCtx); err != nil {
				return err
			}
			defer srv.Stop()

			go func() {
				if err := ctrl.LoadModel(runCtx); err != nil && !errors.Is(err, runCtx.Err()) {
					logging.ErrorWithContext(logger, "model load failed", "model_load_failed", err,
						logging.String(logging.FieldErrorHint, "check transcription settings, then retry with POST /api/model"),
					)
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatusLine("Server", statusOK, fmt.Sprintf("listening on http://%s", srv.Addr()), shouldColorize(out)))
			<-runCtx.Done()
			logger.Info("server shutting down", slog.String(logging.FieldEventType, "server_shutdown"))
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override the configured bind address")
	cmd.Flags().BoolVar(&localMic, "local-mic", false, "Record from the configured microphone instead of browser audio")
	return cmd
}
