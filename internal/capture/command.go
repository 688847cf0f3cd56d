package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxbrief/internal/audio"
	"voxbrief/internal/config"
	"voxbrief/internal/logging"
)

const (
	defaultChunkMillis = 100
	stopGracePeriod    = 2 * time.Second
	stderrLimit        = 4096
)

// CommandSource captures through ffmpeg, which reads the platform audio input
// (alsa, pulse, avfoundation) and writes raw s16le PCM to stdout.
type CommandSource struct {
	binary      string
	inputFormat string
	device      string
	format      audio.Format
	chunkBytes  int
	logger      *slog.Logger
}

// NewCommandSource builds a source from capture settings.
func NewCommandSource(cfg config.Capture, logger *slog.Logger) *CommandSource {
	binary := strings.TrimSpace(cfg.FFmpegBinary)
	if binary == "" {
		binary = audio.FFmpegCommand
	}
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	millis := cfg.ChunkMillis
	if millis <= 0 {
		millis = defaultChunkMillis
	}
	frames := format.SampleRate * millis / 1000
	if frames <= 0 {
		frames = 1
	}
	return &CommandSource{
		binary:      binary,
		inputFormat: strings.TrimSpace(cfg.InputFormat),
		device:      strings.TrimSpace(cfg.Device),
		format:      format,
		chunkBytes:  frames * format.BytesPerFrame(),
		logger:      logging.NewComponentLogger(logger, "capture-command"),
	}
}

// Format implements Source.
func (s *CommandSource) Format() audio.Format { return s.format }

// Device implements Source.
func (s *CommandSource) Device() string { return s.device }

// Args returns the ffmpeg arguments used to open the device.
func (s *CommandSource) Args() []string {
	device := s.device
	if device == "" {
		device = "default"
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if s.inputFormat != "" {
		args = append(args, "-f", s.inputFormat)
	}
	args = append(args,
		"-i", device,
		"-ac", fmt.Sprint(s.format.Channels),
		"-ar", fmt.Sprint(s.format.SampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	)
	return args
}

// Open starts ffmpeg and streams its stdout in fixed-size chunks.
func (s *CommandSource) Open(ctx context.Context) (Stream, error) {
	if !s.format.Valid() {
		return nil, deviceError("open", "invalid capture format", nil)
	}
	cmd := exec.CommandContext(ctx, s.binary, s.Args()...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, deviceError("open", "attach capture pipe", err)
	}
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, deviceError("open", "capture tool "+s.binary+" not found", err)
		}
		return nil, deviceError("open", "start capture for "+describeDevice(s.device), err)
	}

	st := &commandStream{
		cmd:    cmd,
		name:   s.binary,
		stderr: stderr,
		chunks: make(chan []byte, 16),
		exited: make(chan struct{}),
	}
	go st.read(stdout, s.chunkBytes)
	s.logger.Debug("capture command started",
		logging.String("binary", s.binary),
		logging.String("args", strings.Join(s.Args(), " ")),
	)
	return st, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	name   string
	stderr *limitedBuffer
	chunks chan []byte
	exited chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (st *commandStream) Chunks() <-chan []byte { return st.chunks }

func (st *commandStream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close asks ffmpeg to finish with SIGINT so buffered audio is flushed, then
// kills it if it has not exited within the grace period.
func (st *commandStream) Close() error {
	st.closeOnce.Do(func() {
		st.closed.Store(true)
		if st.cmd.Process == nil {
			return
		}
		if err := st.cmd.Process.Signal(os.Interrupt); err != nil {
			_ = st.cmd.Process.Kill()
			return
		}
		go func() {
			timer := time.NewTimer(stopGracePeriod)
			defer timer.Stop()
			select {
			case <-st.exited:
			case <-timer.C:
				_ = st.cmd.Process.Kill()
			}
		}()
	})
	return nil
}

func (st *commandStream) read(r io.Reader, chunkBytes int) {
	defer close(st.chunks)
	var readErr error
	for {
		buf := make([]byte, chunkBytes)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			st.chunks <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				readErr = err
			}
			break
		}
	}
	waitErr := st.cmd.Wait()
	close(st.exited)

	if st.closed.Load() {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case waitErr != nil:
		st.err = fmt.Errorf("%s: %w: %s", st.name, waitErr, strings.TrimSpace(st.stderr.String()))
	case readErr != nil:
		st.err = fmt.Errorf("%s: read: %w", st.name, readErr)
	}
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
