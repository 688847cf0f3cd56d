//go:build portaudio

package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"voxbrief/internal/audio"
	"voxbrief/internal/capture"
	"voxbrief/internal/config"
	"voxbrief/internal/services"
)

const framesPerBuffer = 1024

// Source reads interleaved int16 frames from the default input device.
type Source struct {
	format audio.Format
}

// NewSource builds a PortAudio source from capture settings.
func NewSource(cfg config.Capture) *Source {
	return &Source{format: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}}
}

// Format implements capture.Source.
func (s *Source) Format() audio.Format { return s.format }

// Device implements capture.Source.
func (s *Source) Device() string { return "portaudio-default" }

// Open initializes PortAudio and starts the default input stream.
func (s *Source) Open(ctx context.Context) (capture.Stream, error) {
	if err := pa.Initialize(); err != nil {
		return nil, services.Wrap(services.ErrDevice, "capture", "open", "portaudio init failed", err)
	}
	in := make([]int16, framesPerBuffer*s.format.Channels)
	stream, err := pa.OpenDefaultStream(s.format.Channels, 0, float64(s.format.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = pa.Terminate()
		return nil, services.Wrap(services.ErrDevice, "capture", "open", "open default input stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, services.Wrap(services.ErrDevice, "capture", "open", "start input stream", err)
	}
	st := &paStream{stream: stream, in: in, chunks: make(chan []byte, 16)}
	go st.read(ctx)
	return st, nil
}

type paStream struct {
	stream *pa.Stream
	in     []int16
	chunks chan []byte

	closed atomic.Bool
	once   sync.Once
	mu     sync.Mutex
	err    error
}

func (st *paStream) Chunks() <-chan []byte { return st.chunks }

func (st *paStream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

func (st *paStream) Close() error {
	st.closed.Store(true)
	return nil
}

func (st *paStream) read(ctx context.Context) {
	defer close(st.chunks)
	defer st.release()
	for !st.closed.Load() && ctx.Err() == nil {
		if err := st.stream.Read(); err != nil {
			if st.closed.Load() {
				return
			}
			st.mu.Lock()
			st.err = fmt.Errorf("portaudio read: %w", err)
			st.mu.Unlock()
			return
		}
		chunk := make([]byte, len(st.in)*2)
		for i, v := range st.in {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
		}
		st.chunks <- chunk
	}
}

func (st *paStream) release() {
	st.once.Do(func() {
		_ = st.stream.Stop()
		_ = st.stream.Close()
		_ = pa.Terminate()
	})
}
