package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment key, e.g. KOYOMI_SPEAKER_ID.
// API keys are also read without the prefix.
const EnvPrefix = "koyomi"

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"

	VADWebRTC = "webrtc"
	VADEnergy = "energy"

	ExitMatchSubstring = "substring"
	ExitMatchExact     = "exact"
)

const defaultSystemPrompt = "あなたはユーザーの作業中の話し相手となる、知識が豊富で受動的な女性アシスタントの「こよみ」です。" +
	"質問には簡潔に、親しみやすいトーンで答えてください。ゆったりした話し方で、ため口での会話をしてください。" +
	"応答に特殊文字や絵文字を含めないでください。箇条書きでの回答を控えてください。" +
	"事実の回答を除いて断言を控えてください。AI側から積極的に話題を振らないでください。"

type Config struct {
	// Language model
	Backend      string        `yaml:"backend" envconfig:"LLM_BACKEND"`
	Model        string        `yaml:"model" envconfig:"LLM_MODEL"`
	SystemPrompt string        `yaml:"system_prompt" envconfig:"SYSTEM_PROMPT"`
	GeminiAPIKey string        `yaml:"gemini_api_key" envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey string        `yaml:"openai_api_key" envconfig:"OPENAI_API_KEY"`
	Proxy        string        `yaml:"proxy" envconfig:"LLM_PROXY"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`

	// VOICEVOX engine
	EngineURL  string  `yaml:"engine_url" envconfig:"ENGINE_URL"`
	SpeakerID  int     `yaml:"speaker_id" envconfig:"SPEAKER_ID"`
	SpeedScale float64 `yaml:"speed_scale" envconfig:"SPEED_SCALE"`

	// Audio, shared by capture and playback
	SampleRate int `yaml:"sample_rate" envconfig:"AUDIO_SAMPLE_RATE"`

	// VAD
	VADEngine         string        `yaml:"vad_engine" envconfig:"VAD_ENGINE"`
	VADAggressiveness int           `yaml:"vad_aggressiveness" envconfig:"VAD_AGGRESSIVENESS"`
	EnergyThreshold   float64       `yaml:"energy_threshold" envconfig:"ENERGY_THRESHOLD"`
	FrameDuration     time.Duration `yaml:"frame_duration" envconfig:"FRAME_DURATION"`
	SilenceTimeout    time.Duration `yaml:"silence_timeout" envconfig:"SILENCE_TIMEOUT"`
	MaxUtterance      time.Duration `yaml:"max_utterance" envconfig:"MAX_UTTERANCE"`

	// Whisper
	WhisperModel string `yaml:"whisper_model" envconfig:"WHISPER_MODEL"`
	Language     string `yaml:"language" envconfig:"WHISPER_LANGUAGE"`
	Threads      int    `yaml:"threads" envconfig:"WHISPER_THREADS"`

	// Conversation
	HistoryCap  int           `yaml:"history_cap" envconfig:"HISTORY_CAP"`
	ExitPhrases []string      `yaml:"exit_phrases" envconfig:"EXIT_PHRASES"`
	ExitMatch   string        `yaml:"exit_match" envconfig:"EXIT_MATCH"`
	Farewell    string        `yaml:"farewell" envconfig:"FAREWELL"`
	Apology     string        `yaml:"apology" envconfig:"APOLOGY"`
	Terminators []string      `yaml:"terminators" envconfig:"TERMINATORS"`
	ErrorPause  time.Duration `yaml:"error_pause" envconfig:"ERROR_PAUSE"`
	IdlePause   time.Duration `yaml:"idle_pause" envconfig:"IDLE_PAUSE"`

	// Control and side channels
	SocketPath  string  `yaml:"socket_path" envconfig:"SOCKET_PATH"`
	Hotkey      string  `yaml:"hotkey" envconfig:"TOGGLE_HOTKEY"`
	EventsURL   string  `yaml:"events_url" envconfig:"EVENTS_URL"`
	MetricsAddr string  `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	ChimePath   string  `yaml:"chime_path" envconfig:"CHIME_PATH"`
	Duck        bool    `yaml:"duck" envconfig:"DUCK_OTHERS"`
	DuckFactor  float64 `yaml:"duck_factor" envconfig:"DUCK_FACTOR"`
}

func Default() Config {
	return Config{
		Backend:      BackendGemini,
		Model:        "gemini-2.5-flash",
		SystemPrompt: defaultSystemPrompt,
		HTTPTimeout:  120 * time.Second,

		EngineURL:  "http://127.0.0.1:50021",
		SpeakerID:  14,
		SpeedScale: 1.13,

		SampleRate: 48000,

		VADEngine:         VADWebRTC,
		VADAggressiveness: 3,
		EnergyThreshold:   0.015,
		FrameDuration:     30 * time.Millisecond,
		SilenceTimeout:    1500 * time.Millisecond,
		MaxUtterance:      30 * time.Second,

		WhisperModel: "models/ggml-small.bin",
		Language:     "ja",

		HistoryCap:  10,
		ExitPhrases: []string{"さようなら", "さよなら"},
		ExitMatch:   ExitMatchSubstring,
		Farewell:    "またお話しできるのを楽しみにしてるよ。またね！",
		Apology:     "API接続でエラーが発生しました。時間を置いて再度お話しください。",
		Terminators: []string{"。", "！", "？", "\n"},
		ErrorPause:  time.Second,
		IdlePause:   500 * time.Millisecond,

		SocketPath: "/tmp/koyomi.sock",
		DuckFactor: 0.3,
	}
}

// Load layers the YAML file at path (optional), the given .env files and the
// process environment on top of Default.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load(envFiles...)

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	return &cfg, nil
}

// FrameSize is the number of samples in one VAD frame.
func (c *Config) FrameSize() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// APIKey returns the credential of the selected backend.
func (c *Config) APIKey() string {
	if c.Backend == BackendOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

var webrtcRates = []int{8000, 16000, 32000, 48000}

func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid sample rate %d", c.SampleRate))
	}

	switch c.VADEngine {
	case VADWebRTC:
		valid := false
		for _, r := range webrtcRates {
			if c.SampleRate == r {
				valid = true
				break
			}
		}
		if !valid {
			errs = append(errs, fmt.Errorf("webrtc vad: sample rate %d must be one of %v", c.SampleRate, webrtcRates))
		}
		switch c.FrameDuration {
		case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
		default:
			errs = append(errs, fmt.Errorf("webrtc vad: frame duration %s must be 10ms, 20ms or 30ms", c.FrameDuration))
		}
		if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
			errs = append(errs, fmt.Errorf("vad aggressiveness %d out of range 0-3", c.VADAggressiveness))
		}
	case VADEnergy:
		if c.EnergyThreshold <= 0 {
			errs = append(errs, fmt.Errorf("invalid energy threshold %v", c.EnergyThreshold))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vad engine %q", c.VADEngine))
	}

	if c.FrameDuration <= 0 || c.SilenceTimeout <= 0 || c.MaxUtterance <= 0 {
		errs = append(errs, errors.New("frame duration, silence timeout and max utterance must be positive"))
	}
	if c.HistoryCap < 2 {
		errs = append(errs, fmt.Errorf("history cap %d must hold at least one exchange", c.HistoryCap))
	}
	if c.ExitMatch != ExitMatchSubstring && c.ExitMatch != ExitMatchExact {
		errs = append(errs, fmt.Errorf("unknown exit match mode %q", c.ExitMatch))
	}
	if len(c.Terminators) == 0 {
		errs = append(errs, errors.New("no sentence terminators configured"))
	}
	if c.SpeedScale <= 0 {
		errs = append(errs, fmt.Errorf("invalid speed scale %v", c.SpeedScale))
	}

	return errors.Join(errs...)
}
