package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"podforge/internal/models"
)

// CreateJob inserts a new generation job with all four steps pending.
// Credits must already have been reserved by the caller.
func CreateJob(userID int64, config models.JobConfig, creditsUsed int) (*models.GenerationJob, error) {
	job := &models.GenerationJob{}
	query := `
		INSERT INTO jobs (id, user_id, config, steps, credits_used, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`
	err := DB.Get(job, query, uuid.NewString(), userID, config, models.NewSteps(), creditsUsed, models.JobPending)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return job, nil
}

func GetJob(id string) (*models.GenerationJob, error) {
	job := &models.GenerationJob{}
	err := DB.Get(job, "SELECT * FROM jobs WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func GetJobForUser(id string, userID int64) (*models.GenerationJob, error) {
	job := &models.GenerationJob{}
	err := DB.Get(job, "SELECT * FROM jobs WHERE id = $1 AND user_id = $2", id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func GetJobsByUserID(userID int64) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := DB.Select(&jobs, "SELECT * FROM jobs WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return jobs, err
}

// GetFinalizedJobsByUserID returns the user's published episodes, oldest first,
// for the podcast feed.
func GetFinalizedJobsByUserID(userID int64) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := DB.Select(&jobs,
		"SELECT * FROM jobs WHERE user_id = $1 AND finalized = TRUE ORDER BY finalized_at ASC", userID)
	return jobs, err
}

// withJobTx runs fn against the job row held under FOR UPDATE and writes the
// mutated document back before committing. This is the single atomic
// read-modify-write primitive every job mutation goes through.
func withJobTx(jobID string, fn func(job *models.GenerationJob) error) (*models.GenerationJob, error) {
	tx, err := DB.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job := &models.GenerationJob{}
	err = tx.Get(job, "SELECT * FROM jobs WHERE id = $1 FOR UPDATE", jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := fn(job); err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		UPDATE jobs SET
			steps = $1, status = $2, research = $3, scripts = $4, audio = $5,
			public_audio_url = $6, duration_seconds = $7, audio_size_bytes = $8,
			finalized = $9, finalized_at = $10
		WHERE id = $11`,
		job.Steps, job.Status, job.Research, job.Scripts, job.Audio,
		job.PublicAudioURL, job.DurationSeconds, job.AudioSizeBytes,
		job.Finalized, job.FinalizedAt, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job update: %w", err)
	}
	return job, nil
}

// BeginStage marks the given step processing inside one transaction, after
// verifying every precondition against the current row: the stage must not
// already be completed, no other step may be processing, and the upstream
// stage outputs the step consumes must exist. If any check fails, nothing is
// written. On success the step re-enters processing with a fresh start time,
// cleared error, and progress reset to zero.
func BeginStage(jobID string, stage models.StageType) (*models.GenerationJob, error) {
	return withJobTx(jobID, func(job *models.GenerationJob) error {
		step := job.Steps.Get(stage)
		if step.Status == models.StepCompleted {
			return ErrStageCompleted
		}
		if running, ok := job.Steps.Processing(); ok {
			return fmt.Errorf("%w: %s", ErrStageAlreadyRunning, running)
		}
		if err := checkStageInputs(job, stage); err != nil {
			return err
		}

		now := time.Now().UTC()
		step.Status = models.StepProcessing
		step.StartedAt = &now
		step.CompletedAt = nil
		step.Error = nil
		step.Progress = 0
		return nil
	})
}

func checkStageInputs(job *models.GenerationJob, stage models.StageType) error {
	switch stage {
	case models.StageScript:
		if job.Research.IsZero() {
			return ErrResearchNotFound
		}
	case models.StageVoice:
		if len(job.Scripts) == 0 {
			return ErrScriptNotFound
		}
	case models.StageFinalize:
		if len(job.Scripts) == 0 {
			return ErrScriptNotFound
		}
		if len(job.Audio) == 0 {
			return ErrAudioNotFound
		}
		for i, seg := range job.Audio {
			if !validAudioURL(seg.URL) {
				return fmt.Errorf("%w: segment %d has malformed url %q", ErrInvalidAudioData, i, seg.URL)
			}
		}
	}
	return nil
}

func validAudioURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// completeStep marks the step completed and sets the coarse job status to the
// name of the stage just finished.
func completeStep(job *models.GenerationJob, stage models.StageType) {
	now := time.Now().UTC()
	step := job.Steps.Get(stage)
	step.Status = models.StepCompleted
	step.CompletedAt = &now
	step.Error = nil
	step.Progress = 100
	job.Status = models.JobStatus(stage)
}

// CompleteResearch persists the research output and marks the step done.
func CompleteResearch(jobID string, research models.Research) (*models.GenerationJob, error) {
	return withJobTx(jobID, func(job *models.GenerationJob) error {
		job.Research = research
		completeStep(job, models.StageResearch)
		return nil
	})
}

// CompleteScripts persists the generated scripts and marks the step done.
func CompleteScripts(jobID string, scripts models.ScriptList) (*models.GenerationJob, error) {
	return withJobTx(jobID, func(job *models.GenerationJob) error {
		job.Scripts = scripts
		completeStep(job, models.StageScript)
		return nil
	})
}

// CompleteVoice persists the ordered audio segments and marks the step done.
func CompleteVoice(jobID string, audio models.Segments) (*models.GenerationJob, error) {
	return withJobTx(jobID, func(job *models.GenerationJob) error {
		job.Audio = audio
		completeStep(job, models.StageVoice)
		return nil
	})
}

// FinalizeJob records the published artifact and moves the job to its
// terminal completed state, all in one transaction.
func FinalizeJob(jobID, publicURL string, durationSeconds int, sizeBytes int64) (*models.GenerationJob, error) {
	return withJobTx(jobID, func(job *models.GenerationJob) error {
		now := time.Now().UTC()
		job.PublicAudioURL = &publicURL
		job.DurationSeconds = &durationSeconds
		job.AudioSizeBytes = &sizeBytes
		job.Finalized = true
		job.FinalizedAt = &now
		completeStep(job, models.StageFinalize)
		job.Status = models.JobCompleted
		return nil
	})
}

// FailStage records the failure message on the step and marks the job
// errored. Prior stages' data is left intact; the stage stays retryable.
func FailStage(jobID string, stage models.StageType, message string) (*models.GenerationJob, error) {
	return withJobTx(jobID, func(job *models.GenerationJob) error {
		step := job.Steps.Get(stage)
		step.Status = models.StepError
		step.Error = &message
		job.Status = models.JobError
		return nil
	})
}

// UpdateStepProgress performs a field-level partial update of one step's
// progress counter via jsonb_set, without rewriting the rest of the document.
func UpdateStepProgress(jobID string, stage models.StageType, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	path := fmt.Sprintf("{%d,progress}", stage.Index())
	_, err := DB.Exec(
		"UPDATE jobs SET steps = jsonb_set(steps, $1, to_jsonb($2::int)) WHERE id = $3",
		path, progress, jobID)
	return err
}

// DeleteJobIfUnstarted removes the job and reports the credits to refund.
// Refunds are only granted while the research step is still pending: once any
// stage has started, the reservation is spent.
func DeleteJobIfUnstarted(jobID string, userID int64) (int, error) {
	tx, err := DB.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job := models.GenerationJob{}
	err = tx.Get(&job, "SELECT * FROM jobs WHERE id = $1 AND user_id = $2 FOR UPDATE", jobID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrJobNotFound
	}
	if err != nil {
		return 0, err
	}

	refund := 0
	if job.Steps.Get(models.StageResearch).Status == models.StepPending {
		refund = job.CreditsUsed
	}

	if _, err := tx.Exec("DELETE FROM jobs WHERE id = $1", jobID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return refund, nil
}

// GetProcessingJobs returns jobs with any step currently marked processing.
// Used by the reaper to detect work orphaned by a worker crash.
func GetProcessingJobs() ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := DB.Select(&jobs, `SELECT * FROM jobs WHERE steps @> '[{"status":"processing"}]'::jsonb`)
	return jobs, err
}
