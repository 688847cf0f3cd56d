// Package audio turns a captured recording into the 16 kHz mono sample buffer
// the transcription stage consumes.
//
// Decoding reads RIFF/WAVE PCM directly through go-audio and hands every other
// container (webm/opus from browsers, ogg, mp3, float WAV) to ffmpeg, which
// converts it to 16 kHz PCM WAV first. Decoded channels are resampled to
// SampleRate and down-mixed with Downmix, which scales stereo sums by sqrt(2)/2
// to keep perceived loudness.
//
// The package also encodes buffers and raw PCM captures back into WAV so they
// can be uploaded or written for external transcribers.
package audio
