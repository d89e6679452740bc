package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podforge/internal/models"
	"podforge/internal/providers"
	"podforge/internal/test"
	"podforge/internal/webhook"
	"podforge/pkg/tasks"
)

type fakeResearchProvider struct {
	result providers.ResearchResult
	err    error
	called bool
}

func (f *fakeResearchProvider) Research(ctx context.Context, prompt string) (providers.ResearchResult, error) {
	f.called = true
	return f.result, f.err
}

type fakeScriptProvider struct {
	script models.Script
	err    error
	calls  int
}

func (f *fakeScriptProvider) GenerateScript(ctx context.Context, messages []providers.ChatMessage) (models.Script, error) {
	f.calls++
	return f.script, f.err
}

func pipelineJob(stage models.StageType) models.GenerationJob {
	job := models.GenerationJob{
		ID:     "job-1",
		UserID: 1,
		Config: models.JobConfig{
			Topic:          "urban beekeeping",
			TargetAudience: []string{"hobbyists"},
			Tone:           "casual",
			LengthTier:     models.TierMini,
			EpisodeCount:   1,
		},
		Steps:       models.NewSteps(),
		CreditsUsed: 3,
		Status:      models.JobPending,
		CreatedAt:   time.Now().UTC(),
	}
	for _, s := range models.StageOrder {
		if s == stage {
			break
		}
		job.Steps.Get(s).Status = models.StepCompleted
	}
	return job
}

func validEpisodeScript() models.Script {
	return models.Script{
		Title:       "Bees in the City",
		Description: "A beginner's look at rooftop hives.",
		Segments: []models.ScriptSegment{
			{Type: models.SegmentIntro, Lines: []models.ScriptLine{
				{ID: "l0", Speaker: "host", Text: "Welcome to the show."},
			}},
			{Type: models.SegmentMain, Lines: []models.ScriptLine{
				{ID: "l1", Speaker: "host", Text: "Let's talk about rooftop hives."},
			}},
		},
	}
}

func stageTask(t *testing.T, taskType string) *asynq.Task {
	t.Helper()
	return asynq.NewTask(taskType, test.MustJSON(t, tasks.StagePayload{JobID: "job-1"}))
}

// expectStageBegin matches the transactional processing transition.
func expectStageBegin(t *testing.T, mock sqlmock.Sqlmock, job models.GenerationJob) {
	t.Helper()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, job))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

// expectStageComplete matches the transactional completion write.
func expectStageComplete(t *testing.T, mock sqlmock.Sqlmock, job models.GenerationJob, stage models.StageType) {
	t.Helper()
	job.Steps.Get(stage).Status = models.StepProcessing
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, job))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestHandleResearchTask(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}

	research := &fakeResearchProvider{result: providers.ResearchResult{
		Text:      "Rooftop hives thrive in cities.\nUrban honey varies by neighborhood.",
		SourceURL: "https://example.com/bees",
	}}
	h := NewTaskHandler(enqueuer, research, nil, nil, nil, webhook.NewNotifier("", ""), Config{})

	job := pipelineJob(models.StageResearch)
	expectStageBegin(t, mock, job)
	expectStageComplete(t, mock, job, models.StageResearch)

	err := h.HandleResearchTask(context.Background(), stageTask(t, tasks.TypeResearchStage))
	require.NoError(t, err)
	assert.True(t, research.called)

	// The script stage is handed off only after the research write committed.
	require.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeScriptStage, enqueuer.EnqueuedTasks[0].Type())
	var p tasks.StagePayload
	require.NoError(t, json.Unmarshal(enqueuer.EnqueuedTasks[0].Payload(), &p))
	assert.Equal(t, "job-1", p.JobID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleResearchTaskSkipsCompletedStage(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	research := &fakeResearchProvider{}
	h := NewTaskHandler(enqueuer, research, nil, nil, nil, webhook.NewNotifier("", ""), Config{})

	job := pipelineJob(models.StageResearch)
	job.Steps.Get(models.StageResearch).Status = models.StepCompleted

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, job))
	mock.ExpectRollback()

	err := h.HandleResearchTask(context.Background(), stageTask(t, tasks.TypeResearchStage))
	require.NoError(t, err)
	assert.False(t, research.called)
	assert.Empty(t, enqueuer.EnqueuedTasks)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleResearchTaskProviderFailure(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	research := &fakeResearchProvider{err: errors.New("model overloaded")}
	h := NewTaskHandler(enqueuer, research, nil, nil, nil, webhook.NewNotifier("", ""), Config{})

	job := pipelineJob(models.StageResearch)
	expectStageBegin(t, mock, job)

	// FailStage persists the error on the step.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, job))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := h.HandleResearchTask(context.Background(), stageTask(t, tasks.TypeResearchStage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), CodeResearchGeneration)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, enqueuer.EnqueuedTasks)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleScriptTaskRejectsInvalidScript(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	scripts := &fakeScriptProvider{script: models.Script{Title: "No segments"}}
	h := NewTaskHandler(enqueuer, nil, scripts, nil, nil, webhook.NewNotifier("", ""), Config{})

	job := pipelineJob(models.StageScript)
	job.Research = models.Research{
		Text:  "Rooftop hives thrive in cities.",
		Facts: []string{"Rooftop hives thrive in cities."},
	}
	expectStageBegin(t, mock, job)

	// FailStage write.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, job))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := h.HandleScriptTask(context.Background(), stageTask(t, tasks.TypeScriptStage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), CodeInvalidScript)
	assert.Equal(t, 1, scripts.calls)
	assert.Empty(t, enqueuer.EnqueuedTasks)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleScriptTaskGeneratesEveryEpisode(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	scripts := &fakeScriptProvider{script: validEpisodeScript()}
	h := NewTaskHandler(enqueuer, nil, scripts, nil, nil, webhook.NewNotifier("", ""), Config{})

	job := pipelineJob(models.StageScript)
	job.Config.EpisodeCount = 3
	job.Research = models.Research{
		Text:  "Rooftop hives thrive in cities.",
		Facts: []string{"fact a", "fact b", "fact c"},
	}
	expectStageBegin(t, mock, job)
	for _, p := range []int{33, 66, 100} {
		mock.ExpectExec(`UPDATE jobs SET steps = jsonb_set\(steps, \$1, to_jsonb\(\$2::int\)\) WHERE id = \$3`).
			WithArgs("{1,progress}", p, "job-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	expectStageComplete(t, mock, job, models.StageScript)

	err := h.HandleScriptTask(context.Background(), stageTask(t, tasks.TypeScriptStage))
	require.NoError(t, err)
	assert.Equal(t, 3, scripts.calls)

	require.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeVoiceStage, enqueuer.EnqueuedTasks[0].Type())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleVoiceTask(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	tts := &fakeTTS{}
	store := newMemStore()
	h := NewTaskHandler(enqueuer, nil, nil, tts, store, webhook.NewNotifier("", ""), Config{
		FallbackAudioURL: fallbackURL,
	})

	job := pipelineJob(models.StageVoice)
	job.Scripts = models.ScriptList{validEpisodeScript()}
	expectStageBegin(t, mock, job)
	for _, p := range []int{50, 100} {
		mock.ExpectExec(`UPDATE jobs SET steps = jsonb_set\(steps, \$1, to_jsonb\(\$2::int\)\) WHERE id = \$3`).
			WithArgs("{2,progress}", p, "job-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	expectStageComplete(t, mock, job, models.StageVoice)

	err := h.HandleVoiceTask(context.Background(), stageTask(t, tasks.TypeVoiceStage))
	require.NoError(t, err)
	assert.Len(t, tts.calls, 2)

	require.Len(t, enqueuer.EnqueuedTasks, 1)
	assert.Equal(t, tasks.TypeFinalizeStage, enqueuer.EnqueuedTasks[0].Type())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleFinalizeTaskMissingAudioSkipsRetry(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := NewTaskHandler(nil, nil, nil, nil, nil, webhook.NewNotifier("", ""), Config{})

	job := pipelineJob(models.StageFinalize)
	job.Scripts = models.ScriptList{validEpisodeScript()}
	// Voice step completed but no segments persisted; the precondition check
	// aborts before anything is written.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, job))
	mock.ExpectRollback()

	err := h.HandleFinalizeTask(context.Background(), stageTask(t, tasks.TypeFinalizeStage))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleReapStuckJobsTask(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := NewTaskHandler(nil, nil, nil, nil, nil, webhook.NewNotifier("", ""), Config{
		ReapAfter: 30 * time.Minute,
	})

	stuck := pipelineJob(models.StageVoice)
	started := time.Now().UTC().Add(-2 * time.Hour)
	stuck.Steps.Get(models.StageVoice).Status = models.StepProcessing
	stuck.Steps.Get(models.StageVoice).StartedAt = &started

	fresh := pipelineJob(models.StageScript)
	fresh.ID = "job-2"
	recent := time.Now().UTC().Add(-time.Minute)
	fresh.Steps.Get(models.StageScript).Status = models.StepProcessing
	fresh.Steps.Get(models.StageScript).StartedAt = &recent

	rows := test.JobRows(t, stuck)
	rows.AddRow(
		fresh.ID, fresh.UserID,
		test.MustJSON(t, fresh.Config), test.MustJSON(t, fresh.Steps),
		fresh.CreditsUsed, string(fresh.Status),
		test.MustJSON(t, fresh.Research), test.MustJSON(t, fresh.Scripts), test.MustJSON(t, fresh.Audio),
		fresh.PublicAudioURL, fresh.DurationSeconds, fresh.AudioSizeBytes,
		fresh.Finalized, fresh.FinalizedAt, fresh.CreatedAt,
	)
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE steps @>`).WillReturnRows(rows)

	// Only the stuck job is failed; the fresh one is left alone.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(test.JobRows(t, stuck))
	mock.ExpectExec(`UPDATE jobs SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := h.HandleReapStuckJobsTask(context.Background(), asynq.NewTask(tasks.TypeReapStuckJobs, nil))
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageErrorMessageCarriesCode(t *testing.T) {
	err := stageErrorf(CodeAudioMerge, "ffmpeg exited with status %d", 1)
	assert.Equal(t, fmt.Sprintf("%s: ffmpeg exited with status 1", CodeAudioMerge), err.Error())
}
