// Package portaudio captures from the default PortAudio input device. The
// implementation needs cgo and libportaudio, so it is only compiled with the
// "portaudio" build tag.
package portaudio
