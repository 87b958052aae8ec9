package vad

import (
	"context"
	"math"
)

// Classifier decides whether one fixed-size frame contains speech.
type Classifier interface {
	IsSpeech(frame []int16) (bool, error)
}

// FrameSource delivers consecutive frames. io.EOF marks the end of input.
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]int16, error)
}

// Energy is a plain RMS threshold classifier. It needs no particular sample
// rate or frame length.
type Energy struct {
	Threshold float64 // normalized RMS in [0, 1]
}

func NewEnergy(threshold float64) *Energy {
	return &Energy{Threshold: threshold}
}

func (e *Energy) IsSpeech(frame []int16) (bool, error) {
	return FrameRMS(frame) > e.Threshold, nil
}

// FrameRMS returns the RMS level of frame normalized to [0, 1].
func FrameRMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}

	var s float64
	for _, x := range frame {
		v := float64(x) / 32768.0
		s += v * v
	}
	return math.Sqrt(s / float64(len(frame)))
}
