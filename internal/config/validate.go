package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable. A missing analysis credential is
// not an error here: the credential can be supplied at runtime, and the
// session controller refuses to start a recording until one is present.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCapture() error {
	switch c.Capture.Backend {
	case CaptureBackendCommand, CaptureBackendPortAudio:
	default:
		return fmt.Errorf("capture.backend must be %q or %q, got %q", CaptureBackendCommand, CaptureBackendPortAudio, c.Capture.Backend)
	}
	if c.Capture.SampleRate < 8000 || c.Capture.SampleRate > 192000 {
		return fmt.Errorf("capture.sample_rate must be between 8000 and 192000, got %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels != 1 && c.Capture.Channels != 2 {
		return fmt.Errorf("capture.channels must be 1 or 2, got %d", c.Capture.Channels)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Backend {
	case TranscriptionBackendWhisperX, TranscriptionBackendOpenAI:
	default:
		return fmt.Errorf("transcription.backend must be %q or %q, got %q", TranscriptionBackendWhisperX, TranscriptionBackendOpenAI, c.Transcription.Backend)
	}
	if c.Transcription.StrideSeconds >= c.Transcription.ChunkLengthSeconds {
		return errors.New("transcription.stride_seconds must be smaller than transcription.chunk_length_seconds")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	switch c.Analysis.Provider {
	case AnalysisProviderHTTP, AnalysisProviderOpenAI:
	default:
		return fmt.Errorf("analysis.provider must be %q or %q, got %q", AnalysisProviderHTTP, AnalysisProviderOpenAI, c.Analysis.Provider)
	}
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		return errors.New("analysis.temperature must be between 0 and 2")
	}
	if c.Analysis.TimeoutSeconds < 0 {
		return errors.New("analysis.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
