package notify

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

type decodeFunc func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

func decoderFor(path string) (decodeFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode, nil
	case ".wav":
		return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(rc)
		}, nil
	case ".ogg":
		return vorbis.Decode, nil
	default:
		return nil, fmt.Errorf("unsupported chime format %q", filepath.Ext(path))
	}
}

// Sink is an open mono output stream, the same kind replies are played on.
type Sink interface {
	Write(samples []float32) error
	Close() error
}

// Chime plays a short sound before the assistant starts listening.
type Chime struct {
	path string
	rate int
	open func() (Sink, error)
}

// NewChime plays path on a sink from open running at rate. The device is
// only held while the sound plays.
func NewChime(path string, rate int, open func() (Sink, error)) *Chime {
	return &Chime{path: path, rate: rate, open: open}
}

// Play blocks until the sound has finished so it is not picked up by the
// microphone opened right after.
func (c *Chime) Play() error {
	streamer, format, err := c.decode()
	if err != nil {
		return err
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if rate := beep.SampleRate(c.rate); c.rate > 0 && format.SampleRate != rate {
		s = beep.Resample(3, format.SampleRate, rate, streamer)
	}

	sink, err := c.open()
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		if n > 0 {
			if err := sink.Write(mono(buf[:n])); err != nil {
				sink.Close()
				return fmt.Errorf("write chime: %w", err)
			}
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		sink.Close()
		return fmt.Errorf("stream chime: %w", err)
	}
	return sink.Close()
}

func mono(frames [][2]float64) []float32 {
	out := make([]float32, len(frames))
	for i, f := range frames {
		out[i] = float32((f[0] + f[1]) / 2)
	}
	return out
}

func (c *Chime) decode() (beep.StreamSeekCloser, beep.Format, error) {
	decode, err := decoderFor(c.path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open chime: %w", err)
	}

	streamer, format, err := decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode chime: %w", err)
	}
	return streamer, format, nil
}
