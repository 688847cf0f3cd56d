//go:build portaudio

package main

import (
	"voxbrief/internal/capture"
	"voxbrief/internal/capture/portaudio"
	"voxbrief/internal/config"
)

func newPortAudioSource(cfg config.Capture) (capture.Source, error) {
	return portaudio.NewSource(cfg), nil
}
