package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDevice        = errors.New("device error")
	ErrDecode        = errors.New("decode error")
	ErrTranscription = errors.New("transcription error")
	ErrConfiguration = errors.New("configuration error")
	ErrService       = errors.New("service error")
	ErrFormat        = errors.New("format error")
	ErrBusy          = errors.New("session busy")
	ErrNotReady      = errors.New("model not ready")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the taxonomy name for err ("DeviceError", "DecodeError", ...).
// Unclassified errors report "Error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDevice):
		return "DeviceError"
	case errors.Is(err, ErrDecode):
		return "DecodeError"
	case errors.Is(err, ErrTranscription):
		return "TranscriptionError"
	case errors.Is(err, ErrConfiguration):
		return "ConfigError"
	case errors.Is(err, ErrService):
		return "ServiceError"
	case errors.Is(err, ErrFormat):
		return "FormatError"
	case errors.Is(err, ErrBusy):
		return "BusyError"
	case errors.Is(err, ErrNotReady):
		return "NotReadyError"
	default:
		return "Error"
	}
}

// StatusMessage renders err as the human-readable status line published to the
// presentation layer.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	var prefix string
	switch {
	case errors.Is(err, ErrDevice):
		prefix = "Microphone unavailable"
	case errors.Is(err, ErrDecode):
		prefix = "Could not decode recording"
	case errors.Is(err, ErrTranscription):
		prefix = "Transcription failed"
	case errors.Is(err, ErrConfiguration):
		prefix = "Configuration problem"
	case errors.Is(err, ErrService):
		prefix = "Analysis service error"
	case errors.Is(err, ErrFormat):
		prefix = "Unexpected analysis response"
	case errors.Is(err, ErrBusy):
		prefix = "Busy"
	case errors.Is(err, ErrNotReady):
		prefix = "Model not ready"
	default:
		prefix = "Error"
	}
	return prefix + ": " + trimMarker(err.Error())
}

// trimMarker drops the leading sentinel text so status lines do not repeat it.
func trimMarker(msg string) string {
	for _, marker := range []error{ErrDevice, ErrDecode, ErrTranscription, ErrConfiguration, ErrService, ErrFormat, ErrBusy, ErrNotReady} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
