package capture

import (
	"context"
	"errors"
	"sync"

	"voxbrief/internal/audio"
)

// ErrNotCapturing is returned by PushSource.Push when no stream is open.
var ErrNotCapturing = errors.New("capture: no active push stream")

const pushBuffer = 64

// PushSource is fed by a remote client (the browser page) that records with
// MediaRecorder and sends encoded chunks over the websocket.
type PushSource struct {
	mu     sync.Mutex
	active *pushStream
}

// NewPushSource creates an idle push source.
func NewPushSource() *PushSource {
	return &PushSource{}
}

// Format implements Source; pushed chunks are container-encoded.
func (p *PushSource) Format() audio.Format { return audio.Format{} }

// Device implements Source.
func (p *PushSource) Device() string { return "browser" }

// Open implements Source. Only one stream may be open at a time.
func (p *PushSource) Open(ctx context.Context) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return nil, deviceError("open", "browser stream already open", nil)
	}
	st := &pushStream{owner: p, chunks: make(chan []byte, pushBuffer)}
	p.active = st
	go func() {
		<-ctx.Done()
		_ = st.Close()
	}()
	return st, nil
}

// Push appends a chunk to the open stream. The chunk is copied.
func (p *PushSource) Push(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return ErrNotCapturing
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	p.active.chunks <- cp
	return nil
}

// Active reports whether a stream is open.
func (p *PushSource) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

type pushStream struct {
	owner  *PushSource
	chunks chan []byte
	once   sync.Once
}

func (st *pushStream) Chunks() <-chan []byte { return st.chunks }

func (st *pushStream) Err() error { return nil }

func (st *pushStream) Close() error {
	st.once.Do(func() {
		st.owner.mu.Lock()
		defer st.owner.mu.Unlock()
		if st.owner.active == st {
			st.owner.active = nil
		}
		close(st.chunks)
	})
	return nil
}
