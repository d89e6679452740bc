package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"podforge/internal/models"
)

// AIConfig configures the OpenAI-compatible chat completion client used for
// both research and script generation. Injected explicitly; nothing here is
// read from ambient process state.
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
}

// AIClient implements ResearchProvider and ScriptProvider against any
// OpenAI-compatible endpoint.
type AIClient struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	maxAttempts int
}

func NewAIClient(cfg AIConfig) (*AIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("AI API key is not configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("AI model is not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &AIClient{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

// complete runs one chat completion with retries and returns the first
// choice's content.
func (c *AIClient) complete(ctx context.Context, messages []ChatMessage, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.7,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("chat completion failed")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("empty response from AI provider")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// Research asks the model to research the prompt and returns the raw text.
func (c *AIClient) Research(ctx context.Context, prompt string) (ResearchResult, error) {
	messages := []ChatMessage{
		{
			Role: openai.ChatMessageRoleSystem,
			Content: "You are a meticulous podcast researcher. Produce a dense, factual research " +
				"brief for the requested topic. Write one standalone fact per line. Cite the single " +
				"most authoritative source URL on the last line, prefixed with 'Source: '.",
		},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	text, err := c.complete(ctx, messages, false)
	if err != nil {
		return ResearchResult{}, err
	}

	result := ResearchResult{Text: text}
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Source: "); ok {
			result.SourceURL = strings.TrimSpace(rest)
		}
	}
	return result, nil
}

// GenerateScript asks the model for one structured episode script. The
// response is parsed from JSON; shape validation is the caller's job.
func (c *AIClient) GenerateScript(ctx context.Context, messages []ChatMessage) (models.Script, error) {
	content, err := c.complete(ctx, messages, true)
	if err != nil {
		return models.Script{}, err
	}

	var script models.Script
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &script); err != nil {
		return models.Script{}, fmt.Errorf("failed to parse script JSON: %w", err)
	}
	return script, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models emit even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
