package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"voxbrief/internal/analysis"
	"voxbrief/internal/config"
	"voxbrief/internal/deps"
)

// soundDir holds ALSA PCM device nodes.
var soundDir = "/dev/snd"

var alsaDevicePattern = regexp.MustCompile(`^(?:plug)?hw:(?:CARD=)?(\d+)(?:,(?:DEV=)?(\d+))?`)

// CheckAnalysis verifies that the analysis API is reachable and the key is
// valid. One attempt with a 30-second timeout.
func CheckAnalysis(ctx context.Context, cfg config.Analysis, credential string) Result {
	const name = "Analysis API"
	if strings.TrimSpace(credential) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientCfg := analysis.ConfigFromSettings(cfg)
	if strings.EqualFold(cfg.Provider, config.AnalysisProviderOpenAI) {
		clientCfg.BaseURL = strings.TrimRight(clientCfg.BaseURL, "/")
		if !strings.HasSuffix(clientCfg.BaseURL, "/chat/completions") {
			clientCfg.BaseURL += "/chat/completions"
		}
	}
	client := analysis.NewClient(clientCfg)
	if err := client.HealthCheck(checkCtx, credential); err != nil {
		return Result{Name: name, Detail: summarizeAnalysisError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCaptureDevice verifies access to the ALSA capture node behind a
// hw:/plughw: device. Other devices are resolved by the sound server at
// capture time and are reported as passed.
func CheckCaptureDevice(cfg config.Capture) Result {
	const name = "Capture device"
	device := strings.TrimSpace(cfg.Device)
	if cfg.Backend == config.CaptureBackendPortAudio {
		return Result{Name: name, Passed: true, Detail: "PortAudio default input"}
	}
	if !strings.EqualFold(cfg.InputFormat, "alsa") {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s via %s", describe(device), cfg.InputFormat)}
	}
	node, ok := captureNode(device)
	if !ok {
		return Result{Name: name, Passed: true, Detail: describe(device) + " (resolved by ALSA)"}
	}
	if _, err := os.Stat(node); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s missing)", device, node)}
	}
	if err := unix.Access(node, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s not accessible: %v; is the user in the audio group?)", device, node, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s ok)", device, node)}
}

// captureNode maps hw:C[,D] to /dev/snd/pcmC<C>D<D>c.
func captureNode(device string) (string, bool) {
	m := alsaDevicePattern.FindStringSubmatch(device)
	if m == nil {
		return "", false
	}
	card, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}
	dev := 0
	if m[2] != "" {
		if dev, err = strconv.Atoi(m[2]); err != nil {
			return "", false
		}
	}
	return filepath.Join(soundDir, fmt.Sprintf("pcmC%dD%dc", card, dev)), true
}

func describe(device string) string {
	if device == "" {
		return "default"
	}
	return device
}

// CheckSystemDeps evaluates the external binaries the configured backends
// need.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	needsCaptureFFmpeg := cfg.Capture.Backend != config.CaptureBackendPortAudio
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Capture.FFmpegBinary,
			Description: "Captures microphone audio and converts non-WAV recordings",
			Optional:    !needsCaptureFFmpeg,
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Runs WhisperX transcription",
			Optional:    !strings.EqualFold(cfg.Transcription.Backend, config.TranscriptionBackendWhisperX),
			VersionArgs: []string{"--version"},
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

// summarizeAnalysisError produces a human-readable summary for health check failures.
func summarizeAnalysisError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (analysis API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (analysis API unreachable)"
	}
	return err.Error()
}
