package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"voxbrief/internal/audio"
	"voxbrief/internal/config"
	"voxbrief/internal/logging"
	"voxbrief/internal/services"
)

// WhisperX settings.
const (
	WhisperXDefaultModel = "large-v3-turbo"
	UVXCommand           = "uvx"
	CUDAIndexURL         = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL         = "https://pypi.org/simple"
	whisperXBatchSize    = "8"
	whisperXVADMethod    = "silero"
	cpuDevice            = "cpu"
	cudaDevice           = "cuda"
	cpuComputeType       = "float32"
	recordingBaseName    = "recording"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// WhisperX transcribes with the WhisperX CLI run through uvx.
type WhisperX struct {
	model         string
	cudaEnabled   bool
	workDir       string
	logger        *slog.Logger
	commandRunner CommandRunner
	lookPath      func(string) (string, error)
}

// NewWhisperX creates a WhisperX backend. Temporary audio and JSON output are
// written under workDir.
func NewWhisperX(cfg config.Transcription, workDir string, logger *slog.Logger) *WhisperX {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = WhisperXDefaultModel
	}
	return &WhisperX{
		model:       model,
		cudaEnabled: cfg.CUDAEnabled,
		workDir:     workDir,
		logger:      logging.NewComponentLogger(logger, "whisperx"),
		lookPath:    exec.LookPath,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperX) WithCommandRunner(runner CommandRunner) {
	w.commandRunner = runner
}

// Name returns the configured model name for logging.
func (w *WhisperX) Name() string {
	return "whisperx/" + w.model
}

// Load resolves the WhisperX tool environment so that the first
// transcription does not download packages.
func (w *WhisperX) Load(ctx context.Context) error {
	if w.commandRunner == nil {
		if _, err := w.lookPath(UVXCommand); err != nil {
			return services.Wrap(services.ErrTranscription, stageTranscribe, "load", UVXCommand+" not found in PATH", err)
		}
	}
	args := append(w.indexArgs(), "whisperx", "--help")
	if err := w.run(ctx, UVXCommand, args...); err != nil {
		return services.Wrap(services.ErrTranscription, stageTranscribe, "load", "prepare whisperx", err)
	}
	w.logger.Info("whisperx ready",
		logging.String(logging.FieldEventType, "model_loaded"),
		logging.String("model", w.model),
		logging.Bool("cuda", w.cudaEnabled),
	)
	return nil
}

// Transcribe writes buf to a WAV file and runs WhisperX on it.
func (w *WhisperX) Transcribe(ctx context.Context, buf audio.Buffer, opts Options) (string, error) {
	if w.workDir != "" {
		if err := os.MkdirAll(w.workDir, 0o755); err != nil {
			return "", services.Wrap(services.ErrTranscription, stageTranscribe, "prepare", "ensure work dir", err)
		}
	}
	dir, err := os.MkdirTemp(w.workDir, "whisperx-")
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "prepare", "create temp dir", err)
	}
	defer os.RemoveAll(dir)

	wav, err := audio.EncodeBuffer(buf)
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "prepare", "encode audio", err)
	}
	source := filepath.Join(dir, recordingBaseName+".wav")
	if err := os.WriteFile(source, wav, 0o600); err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "prepare", "write audio", err)
	}

	if err := w.run(ctx, UVXCommand, w.buildArgs(source, dir, opts)...); err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "whisperx", "run whisperx", err)
	}
	text, err := loadTranscriptText(filepath.Join(dir, recordingBaseName+".json"))
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageTranscribe, "whisperx", "read transcript", err)
	}
	return text, nil
}

func (w *WhisperX) run(ctx context.Context, name string, args ...string) error {
	if w.commandRunner != nil {
		return w.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (w *WhisperX) indexArgs() []string {
	if w.cudaEnabled {
		return []string{"--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL}
	}
	return []string{"--index-url", PypiIndexURL}
}

// buildArgs constructs the uvx command arguments. WhisperX segments audio by
// voice activity, so the stride has no CLI equivalent; the chunk length maps
// to --chunk_size.
func (w *WhisperX) buildArgs(source, outputDir string, opts Options) []string {
	args := append(make([]string, 0, 32), w.indexArgs()...)
	args = append(args,
		"whisperx",
		source,
		"--model", w.model,
		"--batch_size", whisperXBatchSize,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--vad_method", whisperXVADMethod,
	)
	if secs := int(opts.ChunkLength.Seconds()); secs > 0 {
		args = append(args, "--chunk_size", strconv.Itoa(secs))
	}
	if lang := LanguageCode(opts.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if !opts.ReturnTimestamps {
		args = append(args, "--no_align")
	}
	if w.cudaEnabled {
		args = append(args, "--device", cudaDevice)
	} else {
		args = append(args, "--device", cpuDevice, "--compute_type", cpuComputeType)
	}
	return args
}

// segment is one transcribed span of WhisperX JSON output.
type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperXPayload struct {
	Segments []segment `json:"segments"`
}

// loadTranscriptText loads and concatenates text from a WhisperX JSON file.
func loadTranscriptText(jsonPath string) (string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parse whisperx json: %w", err)
	}
	parts := make([]string, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
