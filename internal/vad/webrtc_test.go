package vad

import (
	"testing"
	"time"
)

func TestNewWebRTCValidation(t *testing.T) {
	tests := []struct {
		name  string
		rate  int
		frame time.Duration
		mode  int
	}{
		{"rate", 44100, 30 * time.Millisecond, 3},
		{"frame", 48000, 25 * time.Millisecond, 3},
		{"mode", 48000, 30 * time.Millisecond, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewWebRTC(tt.rate, tt.frame, tt.mode); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWebRTCSilence(t *testing.T) {
	w, err := NewWebRTC(48000, 30*time.Millisecond, 3)
	if err != nil {
		t.Fatal(err)
	}
	if w.FrameSize() != 1440 {
		t.Fatalf("frame size = %d", w.FrameSize())
	}

	speech, err := w.IsSpeech(make([]int16, w.FrameSize()))
	if err != nil {
		t.Fatal(err)
	}
	if speech {
		t.Fatal("digital silence classified as speech")
	}

	if _, err := w.IsSpeech(make([]int16, 100)); err == nil {
		t.Fatal("short frame must be rejected")
	}
}
