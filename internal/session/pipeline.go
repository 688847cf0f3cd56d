package session

import (
	"context"
	"time"

	"voxbrief/internal/analysis"
	"voxbrief/internal/audio"
	"voxbrief/internal/capture"
	"voxbrief/internal/logging"
	"voxbrief/internal/services"
	"voxbrief/internal/transcribe"
)

const (
	stageDecode     = "decode"
	stageTranscribe = "transcribe"
	stageAnalyze    = "analyze"
)

// runChain executes decode, transcribe, and analyze in order. The first
// failure moves the session to Error and skips the remaining stages.
func (c *Controller) runChain(id string, format audio.Format, chunks [][]byte) {
	ctx := services.WithSessionID(c.ctx, id)
	logger := logging.WithContext(ctx, c.logger)
	chainStart := time.Now()

	var buf audio.Buffer
	err := c.runStage(ctx, stageDecode, func(ctx context.Context) error {
		blob, err := capture.Assemble(format, chunks)
		if err != nil {
			return err
		}
		if c.deps.Decoder == nil {
			return services.Wrap(services.ErrDecode, stageDecode, "decode", "no decoder configured", nil)
		}
		buf, err = c.deps.Decoder.Decode(ctx, blob)
		return err
	})
	if err != nil {
		c.failSession(id, err)
		return
	}
	logger.Debug("audio decoded",
		logging.Int("samples", buf.Len()),
		logging.Duration("audio_length", buf.Duration()),
	)

	var transcript string
	err = c.runStage(ctx, stageTranscribe, func(ctx context.Context) error {
		var err error
		transcript, err = transcribe.Invoke(ctx, c.deps.Transcriber, buf, c.deps.Options)
		return err
	})
	if err != nil {
		c.failSession(id, err)
		return
	}
	credential, ok := c.advance(id, func(s Session) (Session, error) {
		return s.WithTranscript(transcript, c.now())
	})
	if !ok {
		return
	}

	var result analysis.Result
	err = c.runStage(ctx, stageAnalyze, func(ctx context.Context) error {
		if c.deps.Analyzer == nil {
			return services.Wrap(services.ErrConfiguration, stageAnalyze, "analyze", "no analyzer configured", nil)
		}
		var err error
		result, err = c.deps.Analyzer.Analyze(ctx, transcript, credential)
		return err
	})
	if err != nil {
		c.failSession(id, err)
		return
	}
	if _, ok := c.advance(id, func(s Session) (Session, error) {
		return s.WithResult(result, c.now())
	}); !ok {
		return
	}

	c.mu.Lock()
	c.deps.Metrics.RecordSessionOutcome(string(StateDone), "")
	c.settleLocked()
	c.mu.Unlock()

	logger.Info("session complete",
		logging.String(logging.FieldEventType, "session_complete"),
		logging.Int("companies", len(result.Companies)),
		logging.Int("products", len(result.Products)),
		logging.Duration("elapsed", time.Since(chainStart)),
	)
}

func (c *Controller) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	stageCtx := services.WithStage(ctx, stage)
	logger := logging.WithContext(stageCtx, c.logger)
	start := time.Now()
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	err := fn(stageCtx)
	elapsed := time.Since(start)
	c.deps.Metrics.RecordStage(stage, elapsed, services.Kind(err))
	if err != nil {
		logging.ErrorWithContext(logger, "stage failed", "stage_failure", err,
			logging.Duration("elapsed", elapsed),
		)
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

// advance applies fn to the session if it is still id, publishes, and returns
// the current credential.
func (c *Controller) advance(id string, fn func(Session) (Session, error)) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id {
		return "", false
	}
	next, err := fn(c.session)
	if err != nil {
		c.logger.Error("session transition rejected", logging.Error(err))
		return "", false
	}
	c.session = next
	c.publishLocked()
	return c.credential, true
}

func (c *Controller) failSession(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.ID != id || !c.session.State.Busy() {
		return
	}
	c.failLocked(err)
}
