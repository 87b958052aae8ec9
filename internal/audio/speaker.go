package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const outputBlock = 1024

// Speaker is an open mono float32 output stream. Write returns once the
// last block has been handed to the device, so consecutive writes play
// back to back.
type Speaker struct {
	stream *portaudio.Stream
	buf    []float32
}

func OpenSpeaker(sampleRate int) (*Speaker, error) {
	buf := make([]float32, outputBlock)

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), &buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	return &Speaker{stream: stream, buf: buf}, nil
}

func (s *Speaker) Write(samples []float32) error {
	for pos := 0; pos < len(samples); pos += len(s.buf) {
		n := copy(s.buf, samples[pos:])
		clear(s.buf[n:])

		if err := s.stream.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

// Close drains what is queued and releases the device.
func (s *Speaker) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
