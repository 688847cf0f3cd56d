package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"voxbrief/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDecode, "decode", "wav", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"decode", "wav", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindMapping(t *testing.T) {
	cases := []struct {
		marker error
		want   string
	}{
		{services.ErrDevice, "DeviceError"},
		{services.ErrDecode, "DecodeError"},
		{services.ErrTranscription, "TranscriptionError"},
		{services.ErrConfiguration, "ConfigError"},
		{services.ErrService, "ServiceError"},
		{services.ErrFormat, "FormatError"},
	}
	for _, tc := range cases {
		err := services.Wrap(tc.marker, "stage", "op", "msg", nil)
		if got := services.Kind(err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", err, got, tc.want)
		}
	}
	if got := services.Kind(errors.New("plain")); got != "Error" {
		t.Fatalf("expected generic kind, got %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("expected empty kind for nil, got %q", got)
	}
}

func TestStatusMessageDropsMarkerText(t *testing.T) {
	err := services.Wrap(services.ErrConfiguration, "analysis", "", "api key required", nil)
	got := services.StatusMessage(err)
	if got != "Configuration problem: analysis: api key required" {
		t.Fatalf("unexpected status message %q", got)
	}

	wrapped := fmt.Errorf("outer: %w", services.Wrap(services.ErrService, "analysis", "request", "http 500", nil))
	if msg := services.StatusMessage(wrapped); !strings.HasPrefix(msg, "Analysis service error: outer:") {
		t.Fatalf("unexpected status message %q", msg)
	}
	if services.StatusMessage(nil) != "" {
		t.Fatal("expected empty status for nil error")
	}
}
