package middleware

import (
	"context"
	"net/http"
	"strings"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/rs/zerolog/log"

	"podforge/internal/db"
)

type contextKey string

// UserContextKey is the key for the user in the context.
const UserContextKey = contextKey("user")

// AuthMiddleware validates Telegram Mini App initData and upserts the user
// row that carries the credit balance. The bot token is injected at
// construction so it is read after the environment is fully loaded.
type AuthMiddleware struct {
	botToken string
}

func NewAuthMiddleware(botToken string) *AuthMiddleware {
	return &AuthMiddleware{botToken: botToken}
}

func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "tma" {
			http.Error(w, "Authorization header format must be 'tma <initData>'", http.StatusUnauthorized)
			return
		}

		data := parts[1]
		if a.botToken == "" {
			log.Error().Msg("TELEGRAM_BOT_TOKEN is not set")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if err := initdata.Validate(data, a.botToken, 0); err != nil {
			log.Warn().Err(err).Msg("invalid init data")
			http.Error(w, "Invalid init data", http.StatusUnauthorized)
			return
		}

		parsed, err := initdata.Parse(data)
		if err != nil {
			log.Warn().Err(err).Msg("failed to parse init data")
			http.Error(w, "Error parsing init data", http.StatusBadRequest)
			return
		}

		user, err := db.UpsertUser(parsed.User.ID, parsed.User.Username)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
