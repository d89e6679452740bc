package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"podforge/internal/db"
	"podforge/internal/models"
	"podforge/internal/providers"
	"podforge/internal/storage"
	"podforge/internal/webhook"
	"podforge/pkg/tasks"
)

// Config carries the pipeline settings a TaskHandler needs. All of it is
// injected at construction; handlers read nothing from the environment.
type Config struct {
	// WorkDir is the scratch directory for finalize downloads and merges.
	WorkDir string
	// FallbackAudioURL is substituted for any line whose synthesis fails.
	FallbackAudioURL string
	// ReapAfter is how long a step may sit in processing before the reaper
	// declares the worker dead and marks the step errored.
	ReapAfter time.Duration
}

// TaskHandler executes the four pipeline stages. One handler instance serves
// all jobs; per-job state lives in the jobs table.
type TaskHandler struct {
	asynqClient tasks.TaskEnqueuer
	research    providers.ResearchProvider
	scripts     providers.ScriptProvider
	tts         providers.TTSProvider
	store       storage.BlobStore
	notifier    *webhook.Notifier
	cfg         Config
	httpClient  *http.Client
}

func NewTaskHandler(
	client tasks.TaskEnqueuer,
	research providers.ResearchProvider,
	scripts providers.ScriptProvider,
	tts providers.TTSProvider,
	store storage.BlobStore,
	notifier *webhook.Notifier,
	cfg Config,
) *TaskHandler {
	if cfg.WorkDir == "" {
		cfg.WorkDir = "work"
	}
	if cfg.ReapAfter <= 0 {
		cfg.ReapAfter = 30 * time.Minute
	}
	return &TaskHandler{
		asynqClient: client,
		research:    research,
		scripts:     scripts,
		tts:         tts,
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

// beginStage parses the task payload and transitions the step to processing.
// A nil job with nil error means the task is already done and the handler
// must not run the stage again (idempotent re-delivery).
func (h *TaskHandler) beginStage(t *asynq.Task, stage models.StageType) (*models.GenerationJob, error) {
	var p tasks.StagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := db.BeginStage(p.JobID, stage)
	switch {
	case err == nil:
		return job, nil
	case errors.Is(err, db.ErrStageCompleted):
		log.Info().Str("job_id", p.JobID).Str("stage", string(stage)).Msg("stage already completed, skipping")
		return nil, nil
	case errors.Is(err, db.ErrStageAlreadyRunning):
		// Another stage holds the job; let asynq retry later.
		return nil, fmt.Errorf("job %s: %w", p.JobID, err)
	case errors.Is(err, db.ErrJobNotFound),
		errors.Is(err, db.ErrResearchNotFound),
		errors.Is(err, db.ErrScriptNotFound),
		errors.Is(err, db.ErrAudioNotFound),
		errors.Is(err, db.ErrInvalidAudioData):
		// Preconditions failed without mutating anything; retrying the same
		// task cannot help.
		return nil, fmt.Errorf("job %s stage %s: %v: %w", p.JobID, stage, err, asynq.SkipRetry)
	default:
		return nil, fmt.Errorf("failed to begin stage %s for job %s: %w", stage, p.JobID, err)
	}
}

// failStage persists the failure on the step and returns the original error
// so asynq schedules a retry, which re-enters the stage through BeginStage.
func (h *TaskHandler) failStage(job *models.GenerationJob, stage models.StageType, stageErr error) error {
	log.Error().Err(stageErr).Str("job_id", job.ID).Str("stage", string(stage)).Msg("stage failed")
	if _, err := db.FailStage(job.ID, stage, stageErr.Error()); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist stage failure")
	}
	return stageErr
}

// enqueueNext hands the job to the following stage once the current stage's
// write is durable.
func (h *TaskHandler) enqueueNext(jobID string, stage models.StageType) error {
	next := stage.Next()
	if next == "" {
		return nil
	}
	task, err := tasks.NewStageTask(next, jobID)
	if err != nil {
		return err
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		return fmt.Errorf("failed to enqueue %s stage for job %s: %w", next, jobID, err)
	}
	return nil
}

func (h *TaskHandler) HandleResearchTask(ctx context.Context, t *asynq.Task) error {
	job, err := h.beginStage(t, models.StageResearch)
	if job == nil {
		return err
	}

	log.Info().Str("job_id", job.ID).Msg("running research stage")

	result, err := h.research.Research(ctx, buildResearchPrompt(job.Config))
	if err != nil {
		return h.failStage(job, models.StageResearch, stageErrorf(CodeResearchGeneration, "research provider: %v", err))
	}

	research := models.Research{
		Text:      result.Text,
		SourceURL: result.SourceURL,
		Facts:     extractFacts(result.Text),
	}
	if research.IsZero() {
		return h.failStage(job, models.StageResearch, stageErrorf(CodeResearchGeneration, "research provider returned no usable text"))
	}

	if _, err := db.CompleteResearch(job.ID, research); err != nil {
		return fmt.Errorf("failed to persist research for job %s: %w", job.ID, err)
	}
	return h.enqueueNext(job.ID, models.StageResearch)
}

func (h *TaskHandler) HandleScriptTask(ctx context.Context, t *asynq.Task) error {
	job, err := h.beginStage(t, models.StageScript)
	if job == nil {
		return err
	}

	n := job.Config.EpisodeCount
	log.Info().Str("job_id", job.ID).Int("episodes", n).Msg("running script stage")

	chunks := partitionFacts(job.Research.Facts, n)
	scripts := make(models.ScriptList, 0, n)
	for i := 0; i < n; i++ {
		messages := buildScriptMessages(job.Config, job.Research, i+1, n, chunks[i])
		script, err := h.scripts.GenerateScript(ctx, messages)
		if err != nil {
			return h.failStage(job, models.StageScript, stageErrorf(CodeScriptGeneration, "episode %d: %v", i+1, err))
		}
		if err := script.Validate(); err != nil {
			return h.failStage(job, models.StageScript, stageErrorf(CodeInvalidScript, "episode %d: %v", i+1, err))
		}
		scripts = append(scripts, script)

		if err := db.UpdateStepProgress(job.ID, models.StageScript, (i+1)*100/n); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to update script progress")
		}
	}

	if _, err := db.CompleteScripts(job.ID, scripts); err != nil {
		return fmt.Errorf("failed to persist scripts for job %s: %w", job.ID, err)
	}
	return h.enqueueNext(job.ID, models.StageScript)
}

func (h *TaskHandler) HandleVoiceTask(ctx context.Context, t *asynq.Task) error {
	job, err := h.beginStage(t, models.StageVoice)
	if job == nil {
		return err
	}

	lines := job.Scripts[0].Lines()
	log.Info().Str("job_id", job.ID).Int("lines", len(lines)).Msg("running voice stage")

	if len(lines) == 0 {
		return h.failStage(job, models.StageVoice, stageErrorf(CodeNoAudioGenerated, "script has no lines to synthesize"))
	}

	segments, failed := h.synthesizeBatch(ctx, job.ID, lines, func(done, total int) {
		if err := db.UpdateStepProgress(job.ID, models.StageVoice, done*100/total); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to update voice progress")
		}
	})
	if len(failed) > 0 {
		log.Warn().Str("job_id", job.ID).Strs("failed_lines", failed).
			Msg("some lines fell back to silence audio")
	}

	if _, err := db.CompleteVoice(job.ID, segments); err != nil {
		return fmt.Errorf("failed to persist audio segments for job %s: %w", job.ID, err)
	}
	return h.enqueueNext(job.ID, models.StageVoice)
}

func (h *TaskHandler) HandleFinalizeTask(ctx context.Context, t *asynq.Task) error {
	job, err := h.beginStage(t, models.StageFinalize)
	if job == nil {
		return err
	}

	log.Info().Str("job_id", job.ID).Int("segments", len(job.Audio)).Msg("running finalize stage")

	if err := h.runFinalize(ctx, job); err != nil {
		return h.failStage(job, models.StageFinalize, err)
	}

	// Completion notification is best-effort: log and swallow.
	if err := h.notifier.JobFinalized(ctx, job.ID, job.UserID); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("completion webhook failed")
	}

	log.Info().Str("job_id", job.ID).Msg("job finalized")
	return nil
}

// HandleReapStuckJobsTask marks steps that have sat in processing beyond the
// deadline as errored, so crashed workers don't leave jobs wedged forever.
// It never re-enqueues work; retrying is an explicit user action.
func (h *TaskHandler) HandleReapStuckJobsTask(ctx context.Context, t *asynq.Task) error {
	jobs, err := db.GetProcessingJobs()
	if err != nil {
		return fmt.Errorf("failed to list processing jobs: %w", err)
	}

	cutoff := time.Now().Add(-h.cfg.ReapAfter)
	reaped := 0
	for _, job := range jobs {
		stage, ok := job.Steps.Processing()
		if !ok {
			continue
		}
		step := job.Steps.Get(stage)
		if step.StartedAt == nil || step.StartedAt.After(cutoff) {
			continue
		}
		msg := stageErrorf(CodeStageTimeout, "stage %s exceeded %s without completing", stage, h.cfg.ReapAfter).Error()
		if _, err := db.FailStage(job.ID, stage, msg); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to reap stuck step")
			continue
		}
		reaped++
	}

	if reaped > 0 {
		log.Info().Int("reaped", reaped).Msg("marked stuck steps as errored")
	}
	return nil
}
