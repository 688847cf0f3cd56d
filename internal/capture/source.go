package capture

import (
	"context"
	"errors"
	"fmt"

	"voxbrief/internal/audio"
	"voxbrief/internal/services"
)

const stageCapture = "capture"

// Stream delivers audio chunks until it is closed or the device fails.
// Chunks is closed once the stream ends; Err then reports why, or nil after a
// requested Close.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
	Err() error
}

// Source opens capture streams on one device.
type Source interface {
	// Open acquires the device. Failures are wrapped with services.ErrDevice.
	Open(ctx context.Context) (Stream, error)
	// Format describes raw PCM chunks. A zero Format means chunks are already
	// container-encoded.
	Format() audio.Format
	// Device names the captured device for locking and logs.
	Device() string
}

// Assemble joins captured chunks into one encoded blob. Raw PCM chunks are
// wrapped into a WAV container; encoded chunks are concatenated as-is.
func Assemble(format audio.Format, chunks [][]byte) ([]byte, error) {
	size := 0
	for _, chunk := range chunks {
		size += len(chunk)
	}
	if size == 0 {
		return nil, services.Wrap(services.ErrDecode, stageCapture, "assemble", "no audio was captured", nil)
	}
	blob := make([]byte, 0, size)
	for _, chunk := range chunks {
		blob = append(blob, chunk...)
	}
	if !format.Valid() {
		return blob, nil
	}
	wav, err := audio.EncodePCM16(format, blob)
	if err != nil {
		return nil, services.Wrap(services.ErrDecode, stageCapture, "assemble", "captured audio could not be wrapped", err)
	}
	return wav, nil
}

func deviceError(operation, message string, err error) error {
	return services.Wrap(services.ErrDevice, stageCapture, operation, message, err)
}

// errStreamEnded reports a stream that finished without being asked to.
var errStreamEnded = errors.New("capture stream ended unexpectedly")

func describeDevice(device string) string {
	if device == "" {
		return "default device"
	}
	return fmt.Sprintf("device %q", device)
}
