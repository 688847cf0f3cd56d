// Package capture acquires the microphone for one recording at a time.
//
// A Source opens a Stream of audio chunks. The Recorder wraps a Source with
// scoped acquisition: it takes an exclusive file lock on the device, pumps
// chunks to the caller as they arrive, watches udev for the sound card
// disappearing, and releases everything on Stop, on stream failure, and on
// context cancellation.
//
// Chunks from the command and portaudio sources are raw s16le PCM; Assemble
// wraps them in a WAV container once capture ends. The push source carries
// chunks that a browser already encoded (webm/opus), which are concatenated
// unchanged.
package capture
