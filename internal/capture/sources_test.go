package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

func TestPushSourceDeliversChunks(t *testing.T) {
	src := NewPushSource()
	if err := src.Push([]byte("x")); !errors.Is(err, ErrNotCapturing) {
		t.Fatalf("expected ErrNotCapturing before open, got %v", err)
	}

	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := src.Open(context.Background()); !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice for second open, got %v", err)
	}

	payload := []byte("webm")
	if err := src.Push(payload); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}
	payload[0] = 'X'
	got := <-stream.Chunks()
	if string(got) != "webm" {
		t.Fatalf("expected pushed chunk to be copied, got %q", got)
	}

	_ = stream.Close()
	if src.Active() {
		t.Fatal("expected source to be idle after close")
	}
	if _, ok := <-stream.Chunks(); ok {
		t.Fatal("expected chunks channel to be closed")
	}
}

func TestCommandSourceArgs(t *testing.T) {
	src := NewCommandSource(config.Capture{
		FFmpegBinary: "ffmpeg",
		InputFormat:  "alsa",
		Device:       "hw:1,0",
		SampleRate:   48000,
		Channels:     2,
		ChunkMillis:  100,
	}, nil)

	args := strings.Join(src.Args(), " ")
	for _, want := range []string{"-f alsa", "-i hw:1,0", "-ac 2", "-ar 48000", "-f s16le", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in args %q", want, args)
		}
	}
	if src.chunkBytes != 4800*4 {
		t.Fatalf("expected chunk of %d bytes, got %d", 4800*4, src.chunkBytes)
	}
}

func TestCommandSourceStreamsStdout(t *testing.T) {
	bin := writeScript(t, "#!/bin/sh\nhead -c 10 /dev/zero\n")
	src := NewCommandSource(config.Capture{FFmpegBinary: bin, SampleRate: 16000, Channels: 1, ChunkMillis: 1}, nil)

	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	total := 0
	for chunk := range stream.Chunks() {
		total += len(chunk)
	}
	if total != 10 {
		t.Fatalf("expected 10 bytes, got %d", total)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestCommandSourceReportsExitFailure(t *testing.T) {
	bin := writeScript(t, "#!/bin/sh\necho 'cannot open audio device' >&2\nexit 1\n")
	src := NewCommandSource(config.Capture{FFmpegBinary: bin, SampleRate: 16000, Channels: 1}, nil)

	stream, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	for range stream.Chunks() {
	}
	if err := stream.Err(); err == nil || !strings.Contains(err.Error(), "cannot open audio device") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestCommandSourceMissingBinary(t *testing.T) {
	src := NewCommandSource(config.Capture{FFmpegBinary: filepath.Join(t.TempDir(), "missing"), SampleRate: 16000, Channels: 1}, nil)
	if _, err := src.Open(context.Background()); !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
}

func TestBuildRemovalMatcher(t *testing.T) {
	matcher := buildRemovalMatcher()

	removed := netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "sound", "DEVPATH": "/devices/pci0000:00/usb1/1-1/sound/card1"},
	}
	if !matcher.Evaluate(removed) {
		t.Error("expected matcher to accept sound removal")
	}
	added := netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "sound"},
	}
	if matcher.Evaluate(added) {
		t.Error("expected matcher to reject ADD action")
	}
	block := netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "block"},
	}
	if matcher.Evaluate(block) {
		t.Error("expected matcher to reject other subsystems")
	}
}

func TestMatchesCard(t *testing.T) {
	tests := []struct {
		device  string
		devpath string
		want    bool
	}{
		{"hw:1,0", "/devices/usb1/1-1/sound/card1", true},
		{"plughw:1", "/devices/usb1/1-1/sound/card1/pcmC1D0c", true},
		{"hw:CARD=2", "/devices/usb1/1-1/sound/card2", true},
		{"hw:1,0", "/devices/usb1/1-1/sound/card12", false},
		{"hw:1,0", "/devices/usb1/1-1/sound/card0", false},
		{"default", "/devices/usb1/1-1/sound/card3", true},
		{"default", "/devices/usb1/1-1/input/input5", false},
	}
	for _, tc := range tests {
		if got := matchesCard(tc.device, tc.devpath); got != tc.want {
			t.Errorf("matchesCard(%q, %q) = %v, want %v", tc.device, tc.devpath, got, tc.want)
		}
	}
}

type fakeUEventConn struct {
	queue  chan netlink.UEvent
	ready  chan struct{}
	closed bool
}

func (c *fakeUEventConn) Monitor(queue chan netlink.UEvent, _ chan error, _ netlink.Matcher) chan struct{} {
	c.queue = queue
	close(c.ready)
	return make(chan struct{})
}

func (c *fakeUEventConn) Close() error {
	c.closed = true
	return nil
}

func TestHotplugWatcherFailsRecording(t *testing.T) {
	conn := &fakeUEventConn{ready: make(chan struct{})}
	watcher := NewHotplugWatcher(nil)
	watcher.connect = func() (ueventConn, error) { return conn, nil }

	stream := newFakeStream()
	rec := NewRecorder(&fakeSource{device: "hw:1,0", stream: stream}, t.TempDir(), WithHotplug(watcher))
	recording, err := rec.Start(context.Background(), nil)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-conn.ready
	conn.queue <- netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "sound", "DEVPATH": "/devices/usb1/1-1/sound/card1"},
	}

	select {
	case err := <-recording.Failed():
		if !errors.Is(err, services.ErrDevice) {
			t.Fatalf("expected ErrDevice, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected hotplug failure")
	}
	_ = recording.Stop()
	if !conn.closed {
		t.Fatal("expected netlink connection to be closed on stop")
	}
}

func TestHotplugWatcherConnectFailureIsNonFatal(t *testing.T) {
	watcher := NewHotplugWatcher(nil)
	watcher.connect = func() (ueventConn, error) { return nil, errors.New("operation not permitted") }
	stop := watcher.Watch(context.Background(), "default", func(string) {
		t.Fatal("unexpected removal callback")
	})
	stop()
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}
