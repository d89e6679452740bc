package main

import (
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"podforge/internal/config"
	"podforge/internal/db"
	"podforge/internal/providers"
	"podforge/internal/storage"
	"podforge/internal/webhook"
	"podforge/internal/worker"
	"podforge/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db.InitDB(cfg.DatabaseURL)

	aiClient, err := providers.NewAIClient(providers.AIConfig{
		APIKey:      cfg.AIAPIKey,
		BaseURL:     cfg.AIBaseURL,
		Model:       cfg.AIModel,
		Timeout:     cfg.AITimeout,
		MaxAttempts: cfg.AIMaxAttempts,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build AI client")
	}

	ttsClient, err := providers.NewHTTPTTSClient(providers.TTSConfig{
		URL:     cfg.TTSURL,
		APIKey:  cfg.TTSAPIKey,
		Timeout: cfg.TTSTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build TTS client")
	}

	store, err := storage.NewLocalStore(cfg.AudioStoragePath, cfg.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init blob storage")
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			// Low concurrency keeps the sequential TTS calls within external
			// provider rate limits even across jobs.
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"high":    2,
				"default": 1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := 1 * time.Minute
				maxDelay := 2 * time.Hour
				for i := 0; i < n; i++ {
					delay *= 2
					if delay > maxDelay {
						delay = maxDelay
						break
					}
				}
				log.Warn().Str("task", task.Type()).Int("failures", n+1).Dur("retry_in", delay).Msg("task failed, backing off")
				return delay
			},
		},
	)

	taskHandler := worker.NewTaskHandler(
		client,
		aiClient,
		aiClient,
		ttsClient,
		store,
		webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret),
		worker.Config{
			WorkDir:          cfg.WorkDir,
			FallbackAudioURL: cfg.FallbackAudioURL,
			ReapAfter:        cfg.ReapAfter,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeResearchStage, taskHandler.HandleResearchTask)
	mux.HandleFunc(tasks.TypeScriptStage, taskHandler.HandleScriptTask)
	mux.HandleFunc(tasks.TypeVoiceStage, taskHandler.HandleVoiceTask)
	mux.HandleFunc(tasks.TypeFinalizeStage, taskHandler.HandleFinalizeTask)
	mux.HandleFunc(tasks.TypeReapStuckJobs, taskHandler.HandleReapStuckJobsTask)

	log.Info().Str("commit", CommitSHA).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("could not run worker")
	}
}
