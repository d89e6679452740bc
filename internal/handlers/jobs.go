package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"podforge/internal/credits"
	"podforge/internal/db"
	"podforge/internal/middleware"
	"podforge/internal/models"
	"podforge/pkg/tasks"
)

// PostJob prices the requested generation, atomically reserves the credits,
// creates the job with all four steps pending, and triggers the research
// stage. Nothing is created when validation or the reservation fails.
func (h *Handlers) PostJob(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(middleware.UserContextKey).(*models.User)

	var config models.JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", "invalid JSON body")
		return
	}
	if err := config.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	cost, err := credits.PriceJobConfig(config, user.Plan)
	if err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	if err := db.DebitCredits(user.ID, cost); err != nil {
		switch {
		case errors.Is(err, db.ErrInsufficientCredits):
			respondError(w, http.StatusPaymentRequired, "InsufficientCredits", "not enough credits for this job")
		case errors.Is(err, db.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "UserNotFound", "user not found")
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Msg("credit reservation failed")
			respondError(w, http.StatusInternalServerError, "InternalError", "failed to reserve credits")
		}
		return
	}

	job, err := db.CreateJob(user.ID, config, cost)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to create job")
		// The reservation already went through; hand the credits back.
		if refundErr := db.RefundCredits(user.ID, cost); refundErr != nil {
			log.Error().Err(refundErr).Int64("user_id", user.ID).Msg("failed to refund after create failure")
		}
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to create job")
		return
	}

	task, err := tasks.NewResearchStageTask(job.ID)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to build research task")
	} else if _, err := h.asynqClient.Enqueue(task); err != nil {
		// The job exists and is retryable through the advance endpoint.
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to enqueue research task")
	}

	respondJSON(w, http.StatusCreated, job)
}

func (h *Handlers) GetJobs(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(middleware.UserContextKey).(*models.User)

	jobs, err := db.GetJobsByUserID(user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to list jobs")
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to list jobs")
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(middleware.UserContextKey).(*models.User)
	jobID := mux.Vars(r)["id"]

	job, err := db.GetJobForUser(jobID, user.ID)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "JobNotFound", "job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to load job")
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to load job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// PostAdvance re-triggers one stage of a job, typically to retry a step in
// error. The transactional guard in the worker rejects duplicate or
// out-of-order invocations, so this endpoint only has to enqueue.
func (h *Handlers) PostAdvance(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(middleware.UserContextKey).(*models.User)
	vars := mux.Vars(r)

	stage, err := models.ParseStageType(vars["stage"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "ValidationError", err.Error())
		return
	}

	job, err := db.GetJobForUser(vars["id"], user.ID)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "JobNotFound", "job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", vars["id"]).Msg("failed to load job")
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to load job")
		return
	}

	if job.Steps.Get(stage).Status == models.StepCompleted {
		respondError(w, http.StatusConflict, "StageCompleted", "stage has already completed")
		return
	}

	task, err := tasks.NewStageTask(stage, job.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to build stage task")
		return
	}
	if _, err := h.asynqClient.Enqueue(task); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to enqueue stage task")
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue stage")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "stage": string(stage)})
}

// DeleteJob removes a job. Credits are refunded only when no stage has
// started; once research leaves pending, the reservation is spent.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(middleware.UserContextKey).(*models.User)
	jobID := mux.Vars(r)["id"]

	refund, err := db.DeleteJobIfUnstarted(jobID, user.ID)
	if errors.Is(err, db.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, "JobNotFound", "job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to delete job")
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to delete job")
		return
	}

	if refund > 0 {
		if err := db.RefundCredits(user.ID, refund); err != nil {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to refund deleted job")
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{"refunded": refund})
}

func (h *Handlers) GetCredits(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(middleware.UserContextKey).(*models.User)
	respondJSON(w, http.StatusOK, map[string]interface{}{"credits": user.Credits, "plan": user.Plan})
}
