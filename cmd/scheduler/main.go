package main

import (
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"podforge/internal/config"
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

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	task, err := tasks.NewReapStuckJobsTask()
	if err != nil {
		log.Fatal().Err(err).Msg("could not create reap task")
	}

	if _, err := scheduler.Register("@every 10m", task); err != nil {
		log.Fatal().Err(err).Msg("could not register reap task")
	}

	log.Info().Str("commit", CommitSHA).Msg("scheduler starting")
	if err := scheduler.Run(); err != nil {
		log.Fatal().Err(err).Msg("could not run scheduler")
	}
}
