package main

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"podforge/internal/config"
	"podforge/internal/db"
	"podforge/internal/handlers"
	"podforge/internal/middleware"
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

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer client.Close()

	h := handlers.New(client, cfg.AudioStoragePath, cfg.BaseURL)
	auth := middleware.NewAuthMiddleware(cfg.TelegramBotToken)
	rateLimiter := middleware.NewRateLimiterMiddleware(rate.Limit(1), 5)

	r := mux.NewRouter()

	// Public routes: podcast feeds and published audio.
	r.HandleFunc("/rss/{uuid}", h.GetRSSFeed).Methods(http.MethodGet)
	r.HandleFunc("/audio/{key:.+}", h.ServeAudioFile).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware, rateLimiter.Middleware)
	api.HandleFunc("/credits", h.GetCredits).Methods(http.MethodGet)
	api.HandleFunc("/jobs", h.PostJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.GetJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.DeleteJob).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/advance/{stage}", h.PostAdvance).Methods(http.MethodPost)

	log.Info().Str("port", cfg.Port).Str("commit", CommitSHA).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
