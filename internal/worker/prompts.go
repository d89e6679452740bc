package worker

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"podforge/internal/models"
	"podforge/internal/providers"
)

var tierWordTarget = map[models.LengthTier]int{
	models.TierMini:     600,
	models.TierStandard: 1500,
	models.TierDeep:     3500,
}

func buildResearchPrompt(cfg models.JobConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research the topic %q for a podcast.\n", strings.TrimSpace(cfg.Topic))
	fmt.Fprintf(&b, "Target audience: %s.\n", strings.Join(cfg.TargetAudience, ", "))
	if cfg.Tone != "" {
		fmt.Fprintf(&b, "Desired tone: %s.\n", cfg.Tone)
	}
	if cfg.CustomInstructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", cfg.CustomInstructions)
	}
	b.WriteString("Collect enough distinct facts to fill ")
	fmt.Fprintf(&b, "%d episode(s).", cfg.EpisodeCount)
	return b.String()
}

// extractFacts splits research text into one fact per non-empty line,
// dropping the trailing source citation.
func extractFacts(text string) []string {
	var facts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Source: ") {
			continue
		}
		facts = append(facts, line)
	}
	return facts
}

// partitionFacts splits facts into n contiguous, non-overlapping chunks of
// roughly ceil(len/n) each, so multi-episode series don't repeat material.
// Trailing chunks may be empty when there are fewer facts than episodes.
func partitionFacts(facts []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	size := (len(facts) + n - 1) / n
	chunks := make([][]string, n)
	for i := 0; i < n; i++ {
		lo := i * size
		hi := lo + size
		if lo > len(facts) {
			lo = len(facts)
		}
		if hi > len(facts) {
			hi = len(facts)
		}
		chunks[i] = facts[lo:hi]
	}
	return chunks
}

func buildScriptMessages(cfg models.JobConfig, research models.Research, episode, totalEpisodes int, facts []string) []providers.ChatMessage {
	system := fmt.Sprintf(
		"You write podcast episode scripts. Respond with a single JSON object of the shape "+
			`{"title": string, "description": string, "segments": [{"type": "intro"|"main"|"outro", `+
			`"lines": [{"id": string, "speaker": string, "text": string, "emotion": string}]}]}. `+
			"Every segment must contain at least one line; every line needs a speaker and text. "+
			"Target roughly %d spoken words.", tierWordTarget[cfg.LengthTier])

	var b strings.Builder
	fmt.Fprintf(&b, "Write episode %d of %d about %q.\n", episode, totalEpisodes, cfg.Topic)
	fmt.Fprintf(&b, "Target audience: %s.\n", strings.Join(cfg.TargetAudience, ", "))
	if cfg.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", cfg.Tone)
	}
	if cfg.CustomInstructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", cfg.CustomInstructions)
	}
	if len(facts) > 0 {
		b.WriteString("Base this episode only on the following facts:\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	} else {
		fmt.Fprintf(&b, "Research brief:\n%s\n", research.Text)
	}
	if cfg.PromoText != "" && episode == 1 {
		fmt.Fprintf(&b, "Weave in this promotional message naturally:\n%s\n", cfg.PromoText)
	}

	return []providers.ChatMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}
}
