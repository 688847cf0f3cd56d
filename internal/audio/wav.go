package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM = 1
	pcmBitDepth  = 16
)

// IsWAV reports whether blob starts with a RIFF/WAVE header.
func IsWAV(blob []byte) bool {
	return len(blob) >= 12 && string(blob[0:4]) == "RIFF" && string(blob[8:12]) == "WAVE"
}

// EncodePCM16 wraps interleaved s16le PCM into a WAV container. Trailing bytes
// that do not form a whole frame are dropped.
func EncodePCM16(format Format, pcm []byte) ([]byte, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("encode wav: invalid format %+v", format)
	}
	frames := len(pcm) / format.BytesPerFrame()
	if frames == 0 {
		return nil, errors.New("encode wav: no complete frames")
	}
	data := make([]int, frames*format.Channels)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return encodeInts(format, data)
}

// EncodeBuffer renders a Buffer as a 16 kHz mono 16-bit WAV file.
func EncodeBuffer(buf Buffer) ([]byte, error) {
	if buf.Len() == 0 {
		return nil, errors.New("encode wav: empty buffer")
	}
	data := make([]int, buf.Len())
	for i, s := range buf.samples {
		data[i] = int(floatToPCM16(s))
	}
	return encodeInts(Format{SampleRate: SampleRate, Channels: 1}, data)
}

func encodeInts(format Format, data []int) ([]byte, error) {
	out := &memWriteSeeker{}
	enc := wav.NewEncoder(out, format.SampleRate, pcmBitDepth, format.Channels, wavFormatPCM)
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: pcmBitDepth,
	}
	if err := enc.Write(ib); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: close: %w", err)
	}
	return out.Bytes(), nil
}

// errUnsupportedWAV marks WAV files the native decoder does not handle
// (float or compressed payloads); callers may fall back to ffmpeg.
var errUnsupportedWAV = errors.New("unsupported wav encoding")

// decodeWAV returns de-interleaved channels normalized to [-1, 1] and the
// native sample rate.
func decodeWAV(blob []byte) ([][]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(blob))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav header")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, 0, fmt.Errorf("%w: format tag %d", errUnsupportedWAV, dec.WavAudioFormat)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read pcm: %w", err)
	}
	if pcm == nil || pcm.Format == nil {
		return nil, 0, errors.New("read pcm: missing format")
	}
	numChannels := pcm.Format.NumChannels
	if numChannels <= 0 {
		return nil, 0, errors.New("read pcm: no channels")
	}
	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	scale, offset, err := sampleScale(depth)
	if err != nil {
		return nil, 0, err
	}

	frames := len(pcm.Data) / numChannels
	channels := make([][]float32, numChannels)
	for ch := range channels {
		channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChannels; ch++ {
			channels[ch][i] = float32(float64(pcm.Data[i*numChannels+ch]-offset) / scale)
		}
	}
	return channels, pcm.Format.SampleRate, nil
}

// sampleScale returns the divisor and zero offset for integer PCM of depth bits.
func sampleScale(depth int) (float64, int, error) {
	switch depth {
	case 8:
		// 8-bit WAV is unsigned.
		return 128, 128, nil
	case 16:
		return 1 << 15, 0, nil
	case 24:
		return 1 << 23, 0, nil
	case 32:
		return 1 << 31, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d-bit samples", errUnsupportedWAV, depth)
	}
}

func floatToPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

// memWriteSeeker is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch chunk sizes on Close.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	m.pos = next
	return int64(next), nil
}

func (m *memWriteSeeker) Bytes() []byte {
	return m.buf
}
