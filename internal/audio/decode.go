package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voxbrief/internal/services"
)

const (
	stageDecode = "decode"

	// FFmpegCommand is the default converter binary.
	FFmpegCommand = "ffmpeg"
)

// CommandRunner executes an external command and returns its failure, if any.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Decoder converts an encoded recording into a Buffer.
type Decoder struct {
	ffmpegBinary  string
	workDir       string
	commandRunner CommandRunner
}

// NewDecoder creates a decoder that falls back to ffmpegBinary for anything
// that is not PCM WAV. Temporary files go under workDir, or the system temp
// directory when empty.
func NewDecoder(ffmpegBinary, workDir string) *Decoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = FFmpegCommand
	}
	return &Decoder{ffmpegBinary: ffmpegBinary, workDir: workDir}
}

// WithCommandRunner sets a custom command runner (for testing).
func (d *Decoder) WithCommandRunner(runner CommandRunner) {
	d.commandRunner = runner
}

// Decode reads the whole blob and returns 16 kHz mono samples. Failures are
// wrapped with services.ErrDecode.
func (d *Decoder) Decode(ctx context.Context, blob []byte) (Buffer, error) {
	if len(blob) == 0 {
		return Buffer{}, services.Wrap(services.ErrDecode, stageDecode, "read", "recording is empty", nil)
	}

	var (
		channels [][]float32
		rate     int
		err      error
	)
	if IsWAV(blob) {
		channels, rate, err = decodeWAV(blob)
		if errors.Is(err, errUnsupportedWAV) {
			channels, rate, err = d.decodeWithFFmpeg(ctx, blob)
		}
	} else {
		channels, rate, err = d.decodeWithFFmpeg(ctx, blob)
	}
	if err != nil {
		return Buffer{}, services.Wrap(services.ErrDecode, stageDecode, "decode", "audio could not be decoded", err)
	}

	for i := range channels {
		channels[i] = Resample(channels[i], rate, SampleRate)
	}
	mono, err := Downmix(channels)
	if err != nil {
		return Buffer{}, services.Wrap(services.ErrDecode, stageDecode, "downmix", "audio could not be mixed", err)
	}
	if len(mono) == 0 {
		return Buffer{}, services.Wrap(services.ErrDecode, stageDecode, "decode", "recording contains no samples", nil)
	}
	clamp(mono)
	return Buffer{samples: mono}, nil
}

func (d *Decoder) decodeWithFFmpeg(ctx context.Context, blob []byte) ([][]float32, int, error) {
	if d.workDir != "" {
		if err := os.MkdirAll(d.workDir, 0o755); err != nil {
			return nil, 0, fmt.Errorf("ensure work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(d.workDir, "decode-")
	if err != nil {
		return nil, 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, "input")
	dest := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(source, blob, 0o600); err != nil {
		return nil, 0, fmt.Errorf("write input: %w", err)
	}
	if err := d.run(ctx, d.ffmpegBinary, buildConvertArgs(source, dest)...); err != nil {
		return nil, 0, err
	}
	converted, err := os.ReadFile(dest)
	if err != nil {
		return nil, 0, fmt.Errorf("read converted audio: %w", err)
	}
	return decodeWAV(converted)
}

func (d *Decoder) run(ctx context.Context, name string, args ...string) error {
	if d.commandRunner != nil {
		return d.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildConvertArgs keeps native channels so stereo input is down-mixed by
// Downmix rather than by ffmpeg.
func buildConvertArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ar", fmt.Sprint(SampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}

func clamp(samples []float32) {
	for i, s := range samples {
		if s > 1 {
			samples[i] = 1
		} else if s < -1 {
			samples[i] = -1
		}
	}
}
