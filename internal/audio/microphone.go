package audio

import (
	"context"
	"fmt"
	"slices"

	"github.com/gordonklaus/portaudio"
)

// Microphone is one open mono 16-bit input stream. It is opened for a
// single utterance and closed right after, so the device is never held
// while the assistant is thinking or talking.
type Microphone struct {
	stream *portaudio.Stream
	buf    []int16
}

func OpenMicrophone(sampleRate, frameSize int) (*Microphone, error) {
	buf := make([]int16, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start input stream: %w", err)
	}

	return &Microphone{stream: stream, buf: buf}, nil
}

// ReadFrame blocks for exactly one frame. The returned slice is a copy, the
// stream reuses its buffer on every read.
func (m *Microphone) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.stream.Read(); err != nil && err != portaudio.InputOverflowed {
		return nil, err
	}
	return slices.Clone(m.buf), nil
}

func (m *Microphone) Close() error {
	stopErr := m.stream.Stop()
	if err := m.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
