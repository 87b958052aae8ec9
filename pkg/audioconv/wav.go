package audioconv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV stores mono 16-bit PCM as a wav file.
func WriteWAV(path string, samples []int16, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

// WithTempWAV writes samples to a temporary wav file, calls fn with its path
// and removes the file afterwards, whatever fn returns.
func WithTempWAV(samples []int16, rate int, fn func(path string) error) error {
	f, err := os.CreateTemp("", "koyomi-*.wav")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := WriteWAV(path, samples, rate); err != nil {
		return fmt.Errorf("write temp wav: %w", err)
	}
	return fn(path)
}

// DecodePCM16 turns engine output into mono float32 samples. A RIFF payload
// is parsed as wav and its rate returned; anything else is taken as raw
// little-endian 16-bit PCM with rate 0 (unknown).
func DecodePCM16(data []byte) ([]float32, int, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		x, sr, err := readWAV(bytes.NewReader(data))
		if err != nil {
			return nil, 0, fmt.Errorf("decode wav: %w", err)
		}
		return x, sr, nil
	}

	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	ints := make([]int16, len(data)/2)
	for i := range ints {
		ints[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return Int16ToFloat32(ints), 0, nil
}
