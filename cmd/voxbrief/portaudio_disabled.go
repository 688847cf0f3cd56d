//go:build !portaudio

package main

import (
	"errors"

	"voxbrief/internal/capture"
	"voxbrief/internal/config"
)

func newPortAudioSource(config.Capture) (capture.Source, error) {
	return nil, errors.New("capture.backend \"portaudio\" requires a build with -tags portaudio")
}
