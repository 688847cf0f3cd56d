package main

import (
	"fmt"
	"log/slog"

	"voxbrief/internal/analysis"
	"voxbrief/internal/audio"
	"voxbrief/internal/capture"
	"voxbrief/internal/config"
	"voxbrief/internal/metrics"
	"voxbrief/internal/session"
	"voxbrief/internal/transcribe"
)

// newCaptureSource returns the configured microphone source.
func newCaptureSource(cfg *config.Config, logger *slog.Logger) (capture.Source, error) {
	switch cfg.Capture.Backend {
	case config.CaptureBackendPortAudio:
		return newPortAudioSource(cfg.Capture)
	case config.CaptureBackendCommand, "":
		return capture.NewCommandSource(cfg.Capture, logger), nil
	default:
		return nil, fmt.Errorf("unsupported capture backend %q", cfg.Capture.Backend)
	}
}

// newRecorder wraps source with device locking and, when enabled, the udev
// removal watcher.
func newRecorder(cfg *config.Config, source capture.Source, logger *slog.Logger) *capture.Recorder {
	opts := []capture.Option{capture.WithLogger(logger)}
	if cfg.Capture.Hotplug {
		opts = append(opts, capture.WithHotplug(capture.NewHotplugWatcher(logger)))
	}
	return capture.NewRecorder(source, cfg.Paths.LockDir, opts...)
}

// newController wires the pipeline stages from cfg. recorder may be nil for
// file ingestion.
func newController(cfg *config.Config, recorder *capture.Recorder, m *metrics.Metrics, logger *slog.Logger) *session.Controller {
	backend := transcribe.NewBackend(cfg.Transcription, cfg.Paths.WorkDir, logger)
	return session.NewController(session.Deps{
		Recorder:    recorder,
		Decoder:     audio.NewDecoder(cfg.Capture.FFmpegBinary, cfg.Paths.WorkDir),
		Transcriber: backend,
		Loader:      backend,
		Analyzer:    analysis.New(cfg.Analysis),
		Options:     transcribe.OptionsFromSettings(cfg.Transcription),
		Credential:  cfg.Analysis.APIKey,
		Metrics:     m,
		Logger:      logger,
	})
}
