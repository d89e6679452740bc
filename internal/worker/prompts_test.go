package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podforge/internal/models"
)

func TestExtractFacts(t *testing.T) {
	text := "Rooftop hives thrive in cities.\n\n  Urban honey varies by neighborhood.  \nSource: https://example.com/bees\n"
	assert.Equal(t, []string{
		"Rooftop hives thrive in cities.",
		"Urban honey varies by neighborhood.",
	}, extractFacts(text))

	assert.Nil(t, extractFacts(""))
	assert.Nil(t, extractFacts("\n\nSource: https://example.com\n"))
}

func TestPartitionFacts(t *testing.T) {
	facts := []string{"a", "b", "c", "d", "e", "f", "g"}

	chunks := partitionFacts(facts, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, chunks[0])
	assert.Equal(t, []string{"d", "e", "f"}, chunks[1])
	assert.Equal(t, []string{"g"}, chunks[2])

	// More episodes than facts leaves trailing chunks empty.
	chunks = partitionFacts([]string{"a", "b"}, 5)
	require.Len(t, chunks, 5)
	assert.Equal(t, []string{"a"}, chunks[0])
	assert.Equal(t, []string{"b"}, chunks[1])
	for _, c := range chunks[2:] {
		assert.Empty(t, c)
	}

	chunks = partitionFacts(nil, 2)
	require.Len(t, chunks, 2)
	assert.Empty(t, chunks[0])
	assert.Empty(t, chunks[1])
}

func TestBuildResearchPrompt(t *testing.T) {
	prompt := buildResearchPrompt(models.JobConfig{
		Topic:              "  urban beekeeping ",
		TargetAudience:     []string{"hobbyists", "city planners"},
		Tone:               "casual",
		CustomInstructions: "Mention winter care.",
		EpisodeCount:       2,
	})

	assert.Contains(t, prompt, `"urban beekeeping"`)
	assert.Contains(t, prompt, "hobbyists, city planners")
	assert.Contains(t, prompt, "casual")
	assert.Contains(t, prompt, "Mention winter care.")
	assert.Contains(t, prompt, "2 episode(s)")
}

func TestBuildScriptMessagesUsesAssignedFacts(t *testing.T) {
	cfg := models.JobConfig{
		Topic:          "urban beekeeping",
		TargetAudience: []string{"hobbyists"},
		LengthTier:     models.TierStandard,
		EpisodeCount:   2,
		PromoText:      "Try HiveWatch today.",
	}
	research := models.Research{Text: "full brief"}

	messages := buildScriptMessages(cfg, research, 2, 2, []string{"fact d"})
	require.Len(t, messages, 2)

	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "1500")

	assert.Equal(t, "user", messages[1].Role)
	assert.Contains(t, messages[1].Content, "episode 2 of 2")
	assert.Contains(t, messages[1].Content, "- fact d")
	assert.NotContains(t, messages[1].Content, "full brief")
	// Promo text lands only in episode 1.
	assert.NotContains(t, messages[1].Content, "Try HiveWatch today.")

	first := buildScriptMessages(cfg, research, 1, 2, nil)
	assert.Contains(t, first[1].Content, "Try HiveWatch today.")
	// Without assigned facts the full research brief is supplied instead.
	assert.Contains(t, first[1].Content, "full brief")
}
