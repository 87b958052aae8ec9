package vad

import (
	"encoding/binary"
	"fmt"
	"time"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

var validRates = []int{8000, 16000, 32000, 48000}

// WebRTC classifies frames with the WebRTC voice activity detector. Frames
// must be exactly 10, 20 or 30 ms long at one of the supported rates.
type WebRTC struct {
	vad        *webrtcvad.VAD
	sampleRate int
	frameSize  int
	buf        []byte
}

func NewWebRTC(sampleRate int, frameDuration time.Duration, mode int) (*WebRTC, error) {
	valid := false
	for _, r := range validRates {
		if sampleRate == r {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("invalid sample rate %d, must be one of %v", sampleRate, validRates)
	}

	switch frameDuration {
	case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
	default:
		return nil, fmt.Errorf("invalid frame duration %s", frameDuration)
	}

	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("mode %d must be between 0 and 3", mode)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("set vad mode: %w", err)
	}

	frameSize := int(int64(sampleRate) * int64(frameDuration) / int64(time.Second))

	return &WebRTC{
		vad:        v,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		buf:        make([]byte, frameSize*2),
	}, nil
}

func (w *WebRTC) IsSpeech(frame []int16) (bool, error) {
	if len(frame) != w.frameSize {
		return false, fmt.Errorf("frame has %d samples, want %d", len(frame), w.frameSize)
	}

	for i, s := range frame {
		binary.LittleEndian.PutUint16(w.buf[i*2:], uint16(s))
	}

	active, err := w.vad.Process(w.sampleRate, w.buf)
	if err != nil {
		return false, fmt.Errorf("vad process: %w", err)
	}
	return active, nil
}

func (w *WebRTC) FrameSize() int { return w.frameSize }
