package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"podforge/internal/models"
)

const (
	TypeResearchStage = "stage:research"
	TypeScriptStage   = "stage:script"
	TypeVoiceStage    = "stage:voice"
	TypeFinalizeStage = "stage:finalize"
	TypeReapStuckJobs = "jobs:reap"
)

// StagePayload identifies the job a stage task operates on.
type StagePayload struct {
	JobID string
}

var stageTaskTypes = map[models.StageType]string{
	models.StageResearch: TypeResearchStage,
	models.StageScript:   TypeScriptStage,
	models.StageVoice:    TypeVoiceStage,
	models.StageFinalize: TypeFinalizeStage,
}

// NewStageTask builds the task that triggers one stage of one job. This
// enqueue is the only stage-to-stage handoff mechanism: a stage runs only
// after its predecessor's database write is durable and a trigger arrives.
func NewStageTask(stage models.StageType, jobID string) (*asynq.Task, error) {
	taskType, ok := stageTaskTypes[stage]
	if !ok {
		return nil, fmt.Errorf("no task type for stage %q", stage)
	}
	payload, err := json.Marshal(StagePayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, payload), nil
}

func NewResearchStageTask(jobID string) (*asynq.Task, error) {
	return NewStageTask(models.StageResearch, jobID)
}

func NewScriptStageTask(jobID string) (*asynq.Task, error) {
	return NewStageTask(models.StageScript, jobID)
}

func NewVoiceStageTask(jobID string) (*asynq.Task, error) {
	return NewStageTask(models.StageVoice, jobID)
}

func NewFinalizeStageTask(jobID string) (*asynq.Task, error) {
	return NewStageTask(models.StageFinalize, jobID)
}

func NewReapStuckJobsTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeReapStuckJobs, nil), nil
}
