package config

import (
	cli "github.com/spf13/pflag"
)

// Overrides holds command-line values. Only flags that were set on the
// command line are applied, so file and environment values survive.
type Overrides struct {
	fs *cli.FlagSet
	v  Config
}

func NewOverrides(fs *cli.FlagSet) *Overrides {
	o := &Overrides{fs: fs, v: Default()}

	fs.StringVarP(&o.v.Backend, "backend", "b", o.v.Backend, "Language model backend (gemini|openai)")
	fs.StringVarP(&o.v.Model, "model", "m", o.v.Model, "Language model name")
	fs.StringVarP(&o.v.Proxy, "proxy", "p", o.v.Proxy, "Socks proxy address for the language model")
	fs.StringVar(&o.v.EngineURL, "engine", o.v.EngineURL, "VOICEVOX engine url")
	fs.IntVarP(&o.v.SpeakerID, "speaker", "s", o.v.SpeakerID, "VOICEVOX speaker id")
	fs.Float64Var(&o.v.SpeedScale, "speed", o.v.SpeedScale, "VOICEVOX speed scale")
	fs.StringVarP(&o.v.WhisperModel, "whisper", "w", o.v.WhisperModel, "Whisper ggml model path")
	fs.StringVar(&o.v.Language, "lang", o.v.Language, "Transcription language hint")
	fs.StringVar(&o.v.VADEngine, "vad", o.v.VADEngine, "Voice activity detector (webrtc|energy)")
	fs.IntVar(&o.v.VADAggressiveness, "vad-mode", o.v.VADAggressiveness, "WebRTC VAD aggressiveness 0-3")
	fs.DurationVar(&o.v.SilenceTimeout, "silence", o.v.SilenceTimeout, "Trailing silence that ends an utterance")
	fs.IntVar(&o.v.HistoryCap, "history", o.v.HistoryCap, "Conversation history cap (turns)")
	fs.StringVar(&o.v.ExitMatch, "exit-match", o.v.ExitMatch, "Exit phrase matching (substring|exact)")
	fs.StringVar(&o.v.SocketPath, "socket", o.v.SocketPath, "Control socket path")
	fs.StringVar(&o.v.Hotkey, "hotkey", o.v.Hotkey, "Global start/stop hotkey, e.g. ctrl+shift+k")
	fs.StringVar(&o.v.EventsURL, "events", o.v.EventsURL, "Websocket url receiving session events")
	fs.StringVar(&o.v.MetricsAddr, "metrics", o.v.MetricsAddr, "Prometheus listen address")
	fs.StringVar(&o.v.ChimePath, "chime", o.v.ChimePath, "Sound played before listening")
	fs.BoolVar(&o.v.Duck, "duck", o.v.Duck, "Lower other applications while speaking")

	return o
}

func (o *Overrides) Apply(c *Config) {
	o.fs.Visit(func(f *cli.Flag) {
		switch f.Name {
		case "backend":
			c.Backend = o.v.Backend
		case "model":
			c.Model = o.v.Model
		case "proxy":
			c.Proxy = o.v.Proxy
		case "engine":
			c.EngineURL = o.v.EngineURL
		case "speaker":
			c.SpeakerID = o.v.SpeakerID
		case "speed":
			c.SpeedScale = o.v.SpeedScale
		case "whisper":
			c.WhisperModel = o.v.WhisperModel
		case "lang":
			c.Language = o.v.Language
		case "vad":
			c.VADEngine = o.v.VADEngine
		case "vad-mode":
			c.VADAggressiveness = o.v.VADAggressiveness
		case "silence":
			c.SilenceTimeout = o.v.SilenceTimeout
		case "history":
			c.HistoryCap = o.v.HistoryCap
		case "exit-match":
			c.ExitMatch = o.v.ExitMatch
		case "socket":
			c.SocketPath = o.v.SocketPath
		case "hotkey":
			c.Hotkey = o.v.Hotkey
		case "events":
			c.EventsURL = o.v.EventsURL
		case "metrics":
			c.MetricsAddr = o.v.MetricsAddr
		case "chime":
			c.ChimePath = o.v.ChimePath
		case "duck":
			c.Duck = o.v.Duck
		}
	})
}
