package session

import (
	"fmt"
	"time"

	"voxbrief/internal/analysis"
	"voxbrief/internal/services"
)

// State is the lifecycle position of a recording session.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateAnalyzing    State = "analyzing"
	StateDone         State = "done"
	StateError        State = "error"
)

// Busy reports whether a session in s still owns the pipeline.
func (s State) Busy() bool {
	return s == StateRecording || s == StateTranscribing || s == StateAnalyzing
}

// Settled reports whether s accepts a new Start. The empty state counts as
// idle.
func (s State) Settled() bool {
	return s == "" || s == StateIdle || s == StateDone || s == StateError
}

var transitions = map[State][]State{
	StateRecording:    {StateTranscribing, StateError},
	StateTranscribing: {StateAnalyzing, StateError},
	StateAnalyzing:    {StateDone, StateError},
}

// CanTransition reports whether the machine allows moving from s to next
// within one session.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Status lines published alongside states.
const (
	StatusIdle         = "Ready"
	StatusLoading      = "Loading model..."
	StatusModelReady   = "Model ready"
	StatusRecording    = "Recording..."
	StatusTranscribing = "Transcribing..."
	StatusAnalyzing    = "Analyzing transcript..."
	StatusDone         = "Analysis complete"
	StatusAborted      = "Recording aborted"
)

// Session is one recording and everything derived from it. The zero value is
// an idle session.
type Session struct {
	ID         string
	State      State
	Status     string
	Chunks     [][]byte
	Transcript string
	Result     *analysis.Result
	ErrorKind  string

	StartedAt  time.Time
	StoppedAt  time.Time
	FinishedAt time.Time
}

// Begin starts a fresh recording session replacing prev.
func Begin(prev Session, id string, now time.Time) (Session, error) {
	if !prev.State.Settled() {
		return prev, fmt.Errorf("%w: session %s is %s", services.ErrBusy, prev.ID, prev.State)
	}
	return Session{
		ID:        id,
		State:     StateRecording,
		Status:    StatusRecording,
		StartedAt: now,
	}, nil
}

// BeginIngest starts a session for pre-recorded audio. It enters the chain at
// Transcribing since nothing is captured.
func BeginIngest(prev Session, id string, blob []byte, now time.Time) (Session, error) {
	if !prev.State.Settled() {
		return prev, fmt.Errorf("%w: session %s is %s", services.ErrBusy, prev.ID, prev.State)
	}
	return Session{
		ID:        id,
		State:     StateTranscribing,
		Status:    StatusTranscribing,
		Chunks:    [][]byte{blob},
		StartedAt: now,
		StoppedAt: now,
	}, nil
}

// AppendChunk records one captured chunk. Chunks arriving outside Recording
// are only accepted while capture drains after Stop.
func (s Session) AppendChunk(chunk []byte) Session {
	s.Chunks = append(s.Chunks, chunk)
	return s
}

// Advance moves s to next with the given status line.
func (s Session) Advance(next State, status string, now time.Time) (Session, error) {
	if !s.State.CanTransition(next) {
		return s, fmt.Errorf("session %s: invalid transition %s -> %s", s.ID, s.State, next)
	}
	if s.State == StateRecording {
		s.StoppedAt = now
	}
	s.State = next
	s.Status = status
	if next == StateDone || next == StateError {
		s.FinishedAt = now
	}
	return s, nil
}

// WithTranscript records the transcript and moves to Analyzing.
func (s Session) WithTranscript(text string, now time.Time) (Session, error) {
	next, err := s.Advance(StateAnalyzing, StatusAnalyzing, now)
	if err != nil {
		return s, err
	}
	next.Transcript = text
	return next, nil
}

// WithResult records the analysis and completes the session.
func (s Session) WithResult(result analysis.Result, now time.Time) (Session, error) {
	next, err := s.Advance(StateDone, StatusDone, now)
	if err != nil {
		return s, err
	}
	next.Result = &result
	return next, nil
}

// Fail moves s to Error with the status line derived from err.
func (s Session) Fail(err error, now time.Time) (Session, error) {
	next, terr := s.Advance(StateError, services.StatusMessage(err), now)
	if terr != nil {
		return s, terr
	}
	next.ErrorKind = services.Kind(err)
	return next, nil
}

// Bytes is the total size of captured chunks.
func (s Session) Bytes() int {
	total := 0
	for _, chunk := range s.Chunks {
		total += len(chunk)
	}
	return total
}

// RecordingLength is the wall-clock capture time.
func (s Session) RecordingLength() time.Duration {
	if s.StartedAt.IsZero() || s.StoppedAt.IsZero() {
		return 0
	}
	return s.StoppedAt.Sub(s.StartedAt)
}
