package audio

import (
	"context"
	"fmt"
	"log/slog"

	"koyomi/internal/vad"
)

// Recorder captures one utterance per call from the default input device.
type Recorder struct {
	seg       *vad.Segmenter
	rate      int
	frameSize int
	log       *slog.Logger
}

func NewRecorder(seg *vad.Segmenter, sampleRate, frameSize int, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{seg: seg, rate: sampleRate, frameSize: frameSize, log: log}
}

func (r *Recorder) Record(ctx context.Context) (*vad.Utterance, error) {
	mic, err := OpenMicrophone(r.rate, r.frameSize)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := mic.Close(); err != nil {
			r.log.Warn("Failed to close microphone", "err", err)
		}
	}()

	r.log.Debug("Listening", "rate", r.rate, "frame", r.frameSize)
	utt, err := r.seg.Capture(ctx, mic)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return utt, nil
}
