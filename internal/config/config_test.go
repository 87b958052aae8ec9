package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cli "github.com/spf13/pflag"
)

func TestDefaultMatchesReference(t *testing.T) {
	c := Default()

	if c.SampleRate != 48000 || c.SpeedScale != 1.13 || c.VADAggressiveness != 3 {
		t.Fatalf("unexpected audio defaults: %+v", c)
	}
	if c.FrameDuration != 30*time.Millisecond || c.SilenceTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected vad timing: %s %s", c.FrameDuration, c.SilenceTimeout)
	}
	if c.HistoryCap != 10 {
		t.Fatalf("history cap = %d, want 10", c.HistoryCap)
	}
	if got := c.FrameSize(); got != 1440 {
		t.Fatalf("frame size = %d, want 1440", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing gemini key", func(c *Config) { c.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"openai without key", func(c *Config) { c.Backend = BackendOpenAI }, "OPENAI_API_KEY"},
		{"bad rate for webrtc", func(c *Config) { c.SampleRate = 44100 }, "sample rate 44100"},
		{"bad frame for webrtc", func(c *Config) { c.FrameDuration = 25 * time.Millisecond }, "frame duration"},
		{"energy accepts any rate", func(c *Config) { c.VADEngine = VADEnergy; c.SampleRate = 44100 }, ""},
		{"aggressiveness", func(c *Config) { c.VADAggressiveness = 4 }, "aggressiveness"},
		{"history", func(c *Config) { c.HistoryCap = 1 }, "history cap"},
		{"exit match", func(c *Config) { c.ExitMatch = "fuzzy" }, "exit match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.GeminiAPIKey = "key"
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "koyomi.yaml")
	yamlData := "speaker_id: 3\nsilence_timeout: 2s\nexit_phrases:\n  - おやすみ\n"
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0o644); err != nil {
		t.Fatal(err)
	}

	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("KOYOMI_TEST_UNUSED=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("KOYOMI_SPEED_SCALE", "1.5")

	c, err := Load(yamlPath, envPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.SpeakerID != 3 {
		t.Errorf("speaker = %d, want 3 from yaml", c.SpeakerID)
	}
	if c.SilenceTimeout != 2*time.Second {
		t.Errorf("silence = %s, want 2s from yaml", c.SilenceTimeout)
	}
	if len(c.ExitPhrases) != 1 || c.ExitPhrases[0] != "おやすみ" {
		t.Errorf("exit phrases = %v", c.ExitPhrases)
	}
	if c.SpeedScale != 1.5 {
		t.Errorf("speed = %v, want 1.5 from env", c.SpeedScale)
	}
	if c.GeminiAPIKey != "from-env" {
		t.Errorf("api key = %q, want unprefixed env value", c.GeminiAPIKey)
	}
	if c.EngineURL != Default().EngineURL {
		t.Errorf("engine url = %q, want default", c.EngineURL)
	}
}

func TestLoadIgnoresGenericEnvNames(t *testing.T) {
	// common names set by other tools in the same shell
	t.Setenv("PROXY", "socks5://elsewhere:1080")
	t.Setenv("HOTKEY", "ctrl+q")
	t.Setenv("DUCK", "true")
	t.Setenv("SAMPLE_RATE", "8000")
	t.Setenv("LANGUAGE", "en_US:en")

	c, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if c.Proxy != def.Proxy || c.Hotkey != def.Hotkey || c.Duck != def.Duck {
		t.Errorf("proxy/hotkey/duck = %q/%q/%v, want defaults", c.Proxy, c.Hotkey, c.Duck)
	}
	if c.SampleRate != def.SampleRate || c.Language != def.Language {
		t.Errorf("rate/language = %d/%q, want defaults", c.SampleRate, c.Language)
	}

	t.Setenv("KOYOMI_LLM_PROXY", "127.0.0.1:1080")
	t.Setenv("KOYOMI_TOGGLE_HOTKEY", "ctrl+shift+k")
	t.Setenv("KOYOMI_DUCK_OTHERS", "true")
	t.Setenv("KOYOMI_AUDIO_SAMPLE_RATE", "16000")

	c, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Proxy != "127.0.0.1:1080" || c.Hotkey != "ctrl+shift+k" || !c.Duck || c.SampleRate != 16000 {
		t.Errorf("prefixed env not applied: %q %q %v %d", c.Proxy, c.Hotkey, c.Duck, c.SampleRate)
	}
}

func TestOverridesOnlyApplyChangedFlags(t *testing.T) {
	fs := cli.NewFlagSet("test", cli.ContinueOnError)
	o := NewOverrides(fs)

	if err := fs.Parse([]string{"--speaker", "8", "--duck"}); err != nil {
		t.Fatal(err)
	}

	c := Default()
	c.EngineURL = "http://engine:50021"
	o.Apply(&c)

	if c.SpeakerID != 8 || !c.Duck {
		t.Fatalf("flags not applied: speaker=%d duck=%v", c.SpeakerID, c.Duck)
	}
	if c.EngineURL != "http://engine:50021" {
		t.Fatalf("unset flag overwrote engine url: %q", c.EngineURL)
	}
}
