package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"voxbrief/internal/audio"
	"voxbrief/internal/logging"
)

// Recorder owns scoped acquisition of one capture device.
type Recorder struct {
	source  Source
	lockDir string
	logger  *slog.Logger
	hotplug *HotplugWatcher
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logging.NewComponentLogger(logger, "recorder")
	}
}

// WithHotplug fails active recordings when the watcher sees the sound card
// disappear.
func WithHotplug(w *HotplugWatcher) Option {
	return func(r *Recorder) {
		r.hotplug = w
	}
}

// NewRecorder creates a recorder for source. Device locks live in lockDir, or
// the system temp directory when empty.
func NewRecorder(source Source, lockDir string, opts ...Option) *Recorder {
	r := &Recorder{
		source:  source,
		lockDir: strings.TrimSpace(lockDir),
		logger:  logging.NewComponentLogger(nil, "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.lockDir == "" {
		r.lockDir = os.TempDir()
	}
	return r
}

// Source returns the underlying capture source.
func (r *Recorder) Source() Source {
	return r.source
}

// Start acquires the device and pumps every chunk to onChunk, in arrival
// order, until the returned Recording is stopped. All failures are wrapped
// with services.ErrDevice.
func (r *Recorder) Start(ctx context.Context, onChunk func([]byte)) (*Recording, error) {
	if r.source == nil {
		return nil, deviceError("start", "no capture source configured", nil)
	}
	device := r.source.Device()

	if err := os.MkdirAll(r.lockDir, 0o755); err != nil {
		return nil, deviceError("lock", "ensure lock directory", err)
	}
	lockPath := filepath.Join(r.lockDir, lockFileName(device))
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, deviceError("lock", "acquire device lock", err)
	}
	if !ok {
		return nil, deviceError("lock", describeDevice(device)+" is held by another session", nil)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := r.source.Open(streamCtx)
	if err != nil {
		cancel()
		_ = lock.Unlock()
		return nil, err
	}

	rec := &Recording{
		stream: stream,
		lock:   lock,
		format: r.source.Format(),
		device: device,
		logger: r.logger,
		cancel: cancel,
		done:   make(chan struct{}),
		failed: make(chan error, 1),
	}
	if r.hotplug != nil {
		rec.stopHotplug = r.hotplug.Watch(streamCtx, device, func(devpath string) {
			rec.fail(deviceError("hotplug", "sound card removed ("+devpath+")", nil))
		})
	}

	go rec.pump(onChunk)
	go func() {
		select {
		case <-streamCtx.Done():
			_ = rec.Stop()
		case <-rec.done:
		}
	}()

	r.logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_started"),
		logging.String("device", device),
		logging.String("lock", lockPath),
	)
	return rec, nil
}

// Recording is one active capture. Stop is safe to call more than once.
type Recording struct {
	stream      Stream
	lock        *flock.Flock
	format      audio.Format
	device      string
	logger      *slog.Logger
	cancel      context.CancelFunc
	stopHotplug func()

	done     chan struct{}
	failed   chan error
	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
	chunks   atomic.Int64
	bytes    atomic.Int64
}

// Format describes the chunks delivered by this recording.
func (rec *Recording) Format() audio.Format {
	return rec.format
}

// Failed delivers at most one device failure observed before Stop.
func (rec *Recording) Failed() <-chan error {
	return rec.failed
}

// Stats reports how many chunks and bytes were delivered so far.
func (rec *Recording) Stats() (chunks, bytes int64) {
	return rec.chunks.Load(), rec.bytes.Load()
}

// Stop closes the stream, waits until every pending chunk has been delivered,
// and releases the device.
func (rec *Recording) Stop() error {
	rec.stopOnce.Do(func() {
		rec.stopping.Store(true)
		if err := rec.stream.Close(); err != nil {
			rec.stopErr = deviceError("stop", "close stream", err)
		}
		<-rec.done
		if rec.stopHotplug != nil {
			rec.stopHotplug()
		}
		if err := rec.lock.Unlock(); err != nil {
			logging.WarnWithContext(rec.logger, "failed to release device lock", "capture_unlock_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the stale lock file if it persists"),
				logging.String(logging.FieldImpact, "next recording may report the device as busy"),
			)
		}
		rec.cancel()
		chunks, bytes := rec.Stats()
		rec.logger.Info("capture stopped",
			logging.String(logging.FieldEventType, "capture_stopped"),
			logging.String("device", rec.device),
			logging.Int("chunks", int(chunks)),
			logging.Int("bytes", int(bytes)),
		)
	})
	return rec.stopErr
}

func (rec *Recording) pump(onChunk func([]byte)) {
	defer close(rec.done)
	for chunk := range rec.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		rec.chunks.Add(1)
		rec.bytes.Add(int64(len(chunk)))
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	if rec.stopping.Load() {
		return
	}
	err := rec.stream.Err()
	if err == nil {
		err = errStreamEnded
	}
	rec.fail(deviceError("read", describeDevice(rec.device)+" stopped delivering audio", err))
}

func (rec *Recording) fail(err error) {
	if rec.stopping.Load() {
		return
	}
	select {
	case rec.failed <- err:
		rec.logger.Warn("capture failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "capture_failed"),
			logging.String(logging.FieldErrorHint, "check microphone permissions and connection"),
			logging.String(logging.FieldImpact, "recording aborted"),
		)
	default:
	}
}

func lockFileName(device string) string {
	name := strings.TrimSpace(device)
	if name == "" {
		name = "default"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return "capture-" + name + ".lock"
}
