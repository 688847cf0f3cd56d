package transcribe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"voxbrief/internal/audio"
	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

const stageTranscribe = "transcribe"

// Options are the fixed decoding parameters passed to every backend.
type Options struct {
	ChunkLength      time.Duration
	Stride           time.Duration
	Language         string
	ReturnTimestamps bool
}

// DefaultOptions returns 30 s chunks with a 5 s stride, English, and no
// timestamps.
func DefaultOptions() Options {
	return Options{
		ChunkLength: 30 * time.Second,
		Stride:      5 * time.Second,
		Language:    "english",
	}
}

// OptionsFromSettings maps the [transcription] config section, keeping the
// defaults for unset values.
func OptionsFromSettings(cfg config.Transcription) Options {
	opts := DefaultOptions()
	if cfg.ChunkLengthSeconds > 0 {
		opts.ChunkLength = time.Duration(cfg.ChunkLengthSeconds) * time.Second
	}
	if cfg.StrideSeconds > 0 {
		opts.Stride = time.Duration(cfg.StrideSeconds) * time.Second
	}
	if lang := strings.TrimSpace(cfg.Language); lang != "" {
		opts.Language = lang
	}
	opts.ReturnTimestamps = cfg.ReturnTimestamps
	return opts
}

// Transcriber converts mono samples to text.
type Transcriber interface {
	Transcribe(ctx context.Context, buf audio.Buffer, opts Options) (string, error)
}

// Loader prepares a model so that the first transcription does not pay the
// download or warm-up cost.
type Loader interface {
	Load(ctx context.Context) error
}

// Backend is a loadable, named transcriber.
type Backend interface {
	Transcriber
	Loader
	Name() string
}

// NewBackend returns the configured backend.
func NewBackend(cfg config.Transcription, workDir string, logger *slog.Logger) Backend {
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), config.TranscriptionBackendOpenAI) {
		return NewOpenAI(cfg)
	}
	return NewWhisperX(cfg, workDir, logger)
}

// Invoke runs t and guarantees that every failure, including an empty
// transcript, is classified as services.ErrTranscription.
func Invoke(ctx context.Context, t Transcriber, buf audio.Buffer, opts Options) (string, error) {
	if t == nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "invoke", "no transcriber configured", nil)
	}
	if buf.Len() == 0 {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "invoke", "audio buffer is empty", nil)
	}
	text, err := t.Transcribe(ctx, buf, opts)
	if err != nil {
		if services.Kind(err) == "TranscriptionError" {
			return "", err
		}
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "invoke", "transcriber failed", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "invoke", "no speech recognized", nil)
	}
	return text, nil
}
