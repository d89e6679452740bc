package feed

import (
	"fmt"
	"time"

	"github.com/eduncan911/podcast"

	"podforge/internal/models"
)

// GenerateRSS renders the user's finalized episodes as a podcast feed.
// baseURL is injected by the caller; jobs without a published artifact are
// skipped.
func GenerateRSS(user *models.User, jobs []models.GenerationJob, baseURL string) (string, error) {
	p := podcast.New(
		fmt.Sprintf("%s's Podcast", user.TelegramUsername),
		fmt.Sprintf("%s/rss/%s", baseURL, user.RSSUUID),
		"AI-generated podcast episodes.",
		&time.Time{}, &time.Time{},
	)

	for _, job := range jobs {
		if job.PublicAudioURL == nil || len(job.Scripts) == 0 {
			continue
		}
		script := job.Scripts[0]
		description := script.Description
		if description == "" {
			description = script.Title
		}
		item := podcast.Item{
			Title:       script.Title,
			Description: description,
			PubDate:     job.FinalizedAt,
		}
		var size int64
		if job.AudioSizeBytes != nil {
			size = *job.AudioSizeBytes
		}
		if job.DurationSeconds != nil {
			item.AddDuration(int64(*job.DurationSeconds))
		}
		item.AddEnclosure(*job.PublicAudioURL, podcast.M4A, size)
		if _, err := p.AddItem(item); err != nil {
			return "", err
		}
	}

	return p.String(), nil
}
