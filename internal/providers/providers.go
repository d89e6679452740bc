// Package providers holds the external AI service boundaries of the
// pipeline. Each provider is an interface so worker handlers can be tested
// against in-memory fakes.
package providers

import (
	"context"

	"podforge/internal/models"
)

// ResearchResult is the raw output of the research provider.
type ResearchResult struct {
	Text      string
	SourceURL string
}

// ResearchProvider produces topic research from a prompt.
type ResearchProvider interface {
	Research(ctx context.Context, prompt string) (ResearchResult, error)
}

// ChatMessage is one prompt message passed to the script provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ScriptProvider turns prompt messages into one structured episode script.
// Callers must validate the returned script before accepting it.
type ScriptProvider interface {
	GenerateScript(ctx context.Context, messages []ChatMessage) (models.Script, error)
}

// VoiceSettings selects the voice for a single synthesize call.
type VoiceSettings struct {
	Speaker string
	Emotion string
}

// TTSProvider converts one line of text to raw audio bytes. There is no
// batch primitive; the voice stage drives it one line at a time.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice VoiceSettings) ([]byte, error)
}
