package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxbrief/internal/analysis"
	"voxbrief/internal/audio"
	"voxbrief/internal/capture"
	"voxbrief/internal/logging"
	"voxbrief/internal/metrics"
	"voxbrief/internal/services"
	"voxbrief/internal/transcribe"
)

// Decoder turns an encoded blob into a 16 kHz mono buffer.
type Decoder interface {
	Decode(ctx context.Context, blob []byte) (audio.Buffer, error)
}

// Deps wires the controller to its stages.
type Deps struct {
	Recorder    *capture.Recorder
	Decoder     Decoder
	Transcriber transcribe.Transcriber
	// Loader prepares the transcription model. When nil and Transcriber
	// implements transcribe.Loader, that is used; otherwise the model counts
	// as loaded after LoadModel.
	Loader     transcribe.Loader
	Analyzer   analysis.Analyzer
	Options    transcribe.Options
	Credential string
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Controller serializes commands against the single current session.
type Controller struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	session      Session
	credential   string
	modelLoaded  bool
	modelLoading bool
	recording    *capture.Recording
	capturing    bool
	stopCh       chan struct{}
	settled      chan struct{}
	subs         subscribers
	closed       bool
}

// NewController builds a controller in the Idle state. Close releases it.
func NewController(deps Deps) *Controller {
	if deps.Loader == nil {
		if loader, ok := deps.Transcriber.(transcribe.Loader); ok {
			deps.Loader = loader
		}
	}
	if deps.Options == (transcribe.Options{}) {
		deps.Options = transcribe.DefaultOptions()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	close(settled)
	c := &Controller{
		deps:       deps,
		logger:     logging.NewComponentLogger(deps.Logger, "session"),
		now:        now,
		ctx:        ctx,
		cancel:     cancel,
		credential: strings.TrimSpace(deps.Credential),
		session:    Session{State: StateIdle, Status: StatusIdle},
		settled:    settled,
	}
	deps.Metrics.SetState(string(StateIdle))
	return c
}

// LoadModel prepares the transcription model. Start is rejected until it
// succeeds.
func (c *Controller) LoadModel(ctx context.Context) error {
	c.mu.Lock()
	if c.modelLoaded || c.modelLoading {
		c.mu.Unlock()
		return nil
	}
	c.modelLoading = true
	c.setIdleStatusLocked(StatusLoading)
	c.publishLocked()
	c.mu.Unlock()

	start := time.Now()
	var err error
	if c.deps.Loader != nil {
		err = c.deps.Loader.Load(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelLoading = false
	if err != nil {
		c.setIdleStatusLocked(services.StatusMessage(err))
		c.publishLocked()
		c.logger.Error("model load failed",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldEventType, "model_load_failed"),
			logging.String(logging.FieldErrorHint, "check the transcription backend configuration"),
		)
		return err
	}
	c.modelLoaded = true
	c.setIdleStatusLocked(StatusModelReady)
	c.publishLocked()
	c.logger.Info("model ready",
		logging.String(logging.FieldEventType, "model_ready"),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// SetCredential replaces the analysis credential.
func (c *Controller) SetCredential(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = strings.TrimSpace(credential)
	c.publishLocked()
}

// Start begins a new recording session. It fails with services.ErrNotReady
// while the model is not loaded, services.ErrBusy while a session is in
// flight, services.ErrConfiguration without a credential, and
// services.ErrDevice when capture cannot begin.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guardLocked("start"); err != nil {
		return err
	}
	if c.deps.Recorder == nil {
		return services.Wrap(services.ErrDevice, "capture", "start", "no recorder configured", nil)
	}

	id := uuid.NewString()
	next, err := Begin(c.session, id, c.now())
	if err != nil {
		return err
	}
	recording, err := c.deps.Recorder.Start(c.ctx, func(chunk []byte) {
		c.appendChunk(id, chunk)
	})
	if err != nil {
		c.logger.Warn("recording could not start",
			logging.Error(err),
			logging.ErrorKind(err),
			logging.String(logging.FieldEventType, "session_start_failed"),
			logging.String(logging.FieldErrorHint, "check microphone permissions and that no other session holds the device"),
			logging.String(logging.FieldImpact, "no session was started"),
		)
		return err
	}

	c.session = next
	c.recording = recording
	c.capturing = true
	c.stopCh = make(chan struct{})
	c.settled = make(chan struct{})
	c.deps.Metrics.RecordSessionStarted()
	c.publishLocked()

	logging.WithContext(services.WithSessionID(ctx, id), c.logger).Info("session started",
		logging.String(logging.FieldEventType, "session_start"),
		logging.String("device", c.deps.Recorder.Source().Device()),
	)

	c.wg.Add(1)
	go c.watchRecording(id, recording, c.stopCh)
	return nil
}

// Stop finalizes capture, releases the device, and starts the processing
// chain. Stop outside Recording is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State != StateRecording {
		c.mu.Unlock()
		return nil
	}
	next, err := c.session.Advance(StateTranscribing, StatusTranscribing, c.now())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.session = next
	recording := c.recording
	c.recording = nil
	close(c.stopCh)
	c.publishLocked()
	c.mu.Unlock()

	stopErr := recording.Stop()

	c.mu.Lock()
	c.capturing = false
	current := c.session
	c.deps.Metrics.RecordRecording(current.RecordingLength(), current.Bytes())
	if stopErr != nil {
		c.failLocked(stopErr)
		c.mu.Unlock()
		return nil
	}
	if c.closed {
		c.failLocked(services.Wrap(services.ErrDevice, "capture", "teardown", StatusAborted, nil))
		c.mu.Unlock()
		return nil
	}
	chunks := current.Chunks
	c.wg.Add(1)
	c.mu.Unlock()

	logging.WithContext(services.WithSessionID(ctx, current.ID), c.logger).Info("recording stopped",
		logging.String(logging.FieldEventType, "session_stop"),
		logging.Int("chunks", len(chunks)),
		logging.Int("bytes", current.Bytes()),
		logging.Duration("length", current.RecordingLength()),
	)

	go func() {
		defer c.wg.Done()
		c.runChain(current.ID, recording.Format(), chunks)
	}()
	return nil
}

// Ingest runs the processing chain on pre-recorded audio under the same
// guards as Start.
func (c *Controller) Ingest(ctx context.Context, blob []byte) error {
	c.mu.Lock()
	if err := c.guardLocked("ingest"); err != nil {
		c.mu.Unlock()
		return err
	}
	id := uuid.NewString()
	next, err := BeginIngest(c.session, id, blob, c.now())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.session = next
	c.settled = make(chan struct{})
	c.deps.Metrics.RecordSessionStarted()
	c.publishLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	logging.WithContext(services.WithSessionID(ctx, id), c.logger).Info("ingest started",
		logging.String(logging.FieldEventType, "session_ingest"),
		logging.Int("bytes", len(blob)),
	)
	go func() {
		defer c.wg.Done()
		c.runChain(id, audio.Format{}, [][]byte{blob})
	}()
	return nil
}

// Wait blocks until the current session settles in Done or Error, or ctx
// ends.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()
	select {
	case <-settled:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always holds the most recent snapshot. A
// slow reader misses intermediate snapshots, never the latest one. The
// returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ch := c.subs.add(c.snapshotLocked())
	if c.closed {
		c.subs.remove(id)
		return ch, func() {}
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.subs.remove(id)
		})
	}
}

// Close aborts any active recording, waits for the chain to unwind, and
// closes subscriber channels.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	recording := c.recording
	c.recording = nil
	if c.session.State == StateRecording {
		c.capturing = false
		close(c.stopCh)
		c.failLocked(services.Wrap(services.ErrDevice, "capture", "teardown", StatusAborted, nil))
	}
	c.mu.Unlock()

	c.cancel()
	if recording != nil {
		_ = recording.Stop()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.subs.closeAll()
	c.mu.Unlock()
	return nil
}

func (c *Controller) guardLocked(operation string) error {
	switch {
	case c.closed:
		return services.Wrap(services.ErrNotReady, "session", operation, "controller is shut down", nil)
	case c.modelLoading:
		return services.Wrap(services.ErrNotReady, "session", operation, "model is still loading", nil)
	case !c.modelLoaded:
		return services.Wrap(services.ErrNotReady, "session", operation, "model is not loaded", nil)
	case c.session.State.Busy():
		return services.Wrap(services.ErrBusy, "session", operation, "a session is already "+string(c.session.State), nil)
	case c.credential == "":
		return services.Wrap(services.ErrConfiguration, "session", operation, "API key is not set", nil)
	}
	return nil
}

func (c *Controller) appendChunk(id string, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing || c.session.ID != id {
		return
	}
	c.session = c.session.AppendChunk(chunk)
	if c.session.State == StateRecording {
		c.publishLocked()
	}
}

// watchRecording moves the session to Error when the device fails before
// Stop.
func (c *Controller) watchRecording(id string, recording *capture.Recording, stopCh <-chan struct{}) {
	defer c.wg.Done()
	select {
	case <-stopCh:
		return
	case err := <-recording.Failed():
		c.mu.Lock()
		if c.session.ID != id || c.session.State != StateRecording {
			c.mu.Unlock()
			return
		}
		c.recording = nil
		c.capturing = false
		close(c.stopCh)
		c.failLocked(err)
		c.mu.Unlock()
		_ = recording.Stop()
	}
}

// failLocked moves the current session to Error and settles it.
func (c *Controller) failLocked(err error) {
	next, terr := c.session.Fail(err, c.now())
	if terr != nil {
		c.logger.Error("session transition rejected", logging.Error(terr))
		return
	}
	c.session = next
	c.logger.Warn("session failed",
		logging.String(logging.FieldSessionID, next.ID),
		logging.Error(err),
		logging.ErrorKind(err),
		logging.String(logging.FieldEventType, "session_failed"),
		logging.String(logging.FieldErrorHint, next.Status),
		logging.String(logging.FieldImpact, "no analysis for this recording"),
	)
	c.deps.Metrics.RecordSessionOutcome(string(StateError), next.ErrorKind)
	c.settleLocked()
}

func (c *Controller) settleLocked() {
	select {
	case <-c.settled:
	default:
		close(c.settled)
	}
	c.publishLocked()
}

func (c *Controller) setIdleStatusLocked(status string) {
	if c.session.State.Busy() {
		return
	}
	c.session.Status = status
}

func (c *Controller) publishLocked() {
	c.deps.Metrics.SetState(string(c.session.State))
	c.subs.publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.session
	return Snapshot{
		SessionID:     s.ID,
		State:         s.State,
		Status:        s.Status,
		Transcript:    s.Transcript,
		Result:        s.Result,
		ErrorKind:     s.ErrorKind,
		Chunks:        len(s.Chunks),
		Bytes:         s.Bytes(),
		ModelLoaded:   c.modelLoaded,
		ModelLoading:  c.modelLoading,
		CredentialSet: c.credential != "",
		StartedAt:     timePtr(s.StartedAt),
		FinishedAt:    timePtr(s.FinishedAt),
	}
}
