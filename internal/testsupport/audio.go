package testsupport

import (
	"encoding/binary"
	"math"
	"testing"

	"voxbrief/internal/audio"
)

// TonePCM renders a sine tone as interleaved s16le PCM with the same signal on
// every channel. Amplitude is in [0, 1].
func TonePCM(rate, channels int, seconds, freq, amplitude float64) []byte {
	frames := int(float64(rate) * seconds)
	out := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		sample := int16(v * 32767)
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(sample))
		}
	}
	return out
}

// ToneWAV returns a WAV file containing a sine tone.
func ToneWAV(t testing.TB, rate, channels int, seconds, freq, amplitude float64) []byte {
	t.Helper()

	pcm := TonePCM(rate, channels, seconds, freq, amplitude)
	blob, err := audio.EncodePCM16(audio.Format{SampleRate: rate, Channels: channels}, pcm)
	if err != nil {
		t.Fatalf("encode tone wav: %v", err)
	}
	return blob
}
