package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"podforge/internal/models"
	"podforge/internal/providers"
)

// synthesizeBatch converts the ordered line list to an ordered segment list
// of exactly the same length. Lines are processed one at a time to respect
// provider rate limits. A failure on any single line (synthesis, upload, or
// URL resolution) substitutes the fallback silence URL at that position
// instead of aborting: one bad line must never sink an episode that already
// consumed credits. The ids of fallen-back lines are returned for logging.
func (h *TaskHandler) synthesizeBatch(ctx context.Context, jobID string, lines []models.TTSLine, progress func(done, total int)) (models.Segments, []string) {
	segments := make(models.Segments, 0, len(lines))
	var failed []string

	for i, line := range lines {
		url, err := h.synthesizeLine(ctx, jobID, line)
		if err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Str("line_id", line.ID).Msg("line synthesis failed, using fallback audio")
			url = h.cfg.FallbackAudioURL
			failed = append(failed, line.ID)
		}
		segments = append(segments, models.Segment{LineID: line.ID, URL: url})

		if progress != nil {
			progress(i+1, len(lines))
		}
	}
	return segments, failed
}

func (h *TaskHandler) synthesizeLine(ctx context.Context, jobID string, line models.TTSLine) (string, error) {
	audio, err := h.tts.Synthesize(ctx, line.Text, providers.VoiceSettings{
		Speaker: line.Speaker,
		Emotion: line.Emotion,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}

	key := fmt.Sprintf("%s/segments/%s.mp3", jobID, line.ID)
	if err := h.store.UploadBytes(ctx, audio, key, "audio/mpeg"); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	url, err := h.store.ReadURL(key, 0)
	if err != nil {
		return "", fmt.Errorf("read url: %w", err)
	}
	return url, nil
}
