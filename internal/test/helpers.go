package test

import (
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"podforge/internal/models"
)

// JobColumns matches the jobs table column order used by SELECT * mocks.
var JobColumns = []string{
	"id", "user_id", "config", "steps", "credits_used", "status",
	"research", "scripts", "audio", "public_audio_url", "duration_seconds",
	"audio_size_bytes", "finalized", "finalized_at", "created_at",
}

// JobRows renders a job as a one-row sqlmock result.
func JobRows(t *testing.T, job models.GenerationJob) *sqlmock.Rows {
	t.Helper()
	return sqlmock.NewRows(JobColumns).AddRow(
		job.ID, job.UserID,
		MustJSON(t, job.Config), MustJSON(t, job.Steps),
		job.CreditsUsed, string(job.Status),
		MustJSON(t, job.Research), MustJSON(t, job.Scripts), MustJSON(t, job.Audio),
		job.PublicAudioURL, job.DurationSeconds, job.AudioSizeBytes,
		job.Finalized, job.FinalizedAt, job.CreatedAt,
	)
}

func MustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return b
}
