package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrStatus is wrapped by every non-2xx engine response.
var ErrStatus = errors.New("unexpected status")

type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %d: %s", e.Endpoint, ErrStatus, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

type Config struct {
	URL        string
	Speaker    int
	SpeedScale float64
	SampleRate int
	Timeout    time.Duration
}

// Voicevox talks to a VOICEVOX engine. Each synthesis is an audio_query
// followed by a synthesis call for the same speaker.
type Voicevox struct {
	base *url.URL
	cfg  Config
	http *http.Client
}

func NewVoicevox(cfg Config, httpClient *http.Client) (*Voicevox, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse engine url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("engine url %q needs scheme and host", cfg.URL)
	}

	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Voicevox{base: base, cfg: cfg, http: httpClient}, nil
}

// Version probes the engine; used once at startup.
func (v *Voicevox) Version(ctx context.Context) (string, error) {
	body, err := v.do(ctx, http.MethodGet, "/version", nil, nil)
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal(body, &version); err != nil {
		return strings.TrimSpace(string(body)), nil
	}
	return version, nil
}

// AudioQuery returns the engine's phoneme/prosody query for text. The query
// is kept as a generic object so fields this client does not know about are
// sent back unchanged.
func (v *Voicevox) AudioQuery(ctx context.Context, text string) (map[string]any, error) {
	q := url.Values{}
	q.Set("speaker", strconv.Itoa(v.cfg.Speaker))
	q.Set("text", text)

	body, err := v.do(ctx, http.MethodPost, "/audio_query", q, nil)
	if err != nil {
		return nil, err
	}

	var query map[string]any
	if err := json.Unmarshal(body, &query); err != nil {
		return nil, fmt.Errorf("decode audio_query: %w", err)
	}
	return query, nil
}

// Synthesize returns the audio (wav) for text.
func (v *Voicevox) Synthesize(ctx context.Context, text string) ([]byte, error) {
	query, err := v.AudioQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	query["speedScale"] = v.cfg.SpeedScale
	if v.cfg.SampleRate > 0 {
		query["outputSamplingRate"] = v.cfg.SampleRate
	}

	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(v.cfg.Speaker))

	return v.do(ctx, http.MethodPost, "/synthesis", q, payload)
}

func (v *Voicevox) do(ctx context.Context, method, endpoint string, query url.Values, payload []byte) ([]byte, error) {
	u := *v.base
	u.Path = strings.TrimRight(u.Path, "/") + endpoint
	if query != nil {
		// QueryEscape turns spaces into '+', the engine expects %20
		u.RawQuery = strings.ReplaceAll(query.Encode(), "+", "%20")
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: msg}
	}
	return data, nil
}
