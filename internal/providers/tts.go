package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TTSConfig configures the HTTP text-to-speech provider.
type TTSConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTPTTSClient is a TTSProvider that POSTs one line at a time to a
// synthesize endpoint and receives raw audio bytes back.
type HTTPTTSClient struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPTTSClient(cfg TTSConfig) (*HTTPTTSClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("TTS URL is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPTTSClient{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
	Emotion string `json:"emotion,omitempty"`
}

// Synthesize converts one line of text to audio. Non-2xx responses and
// timeouts surface as errors; the voice stage decides what to do with them.
func (c *HTTPTTSClient) Synthesize(ctx context.Context, text string, voice VoiceSettings) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Speaker: voice.Speaker, Emotion: voice.Emotion})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("TTS provider returned status %d: %s", resp.StatusCode, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("TTS provider returned empty audio")
	}
	return audio, nil
}
