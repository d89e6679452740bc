package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"podforge/internal/db"
	"podforge/internal/feed"
)

// feedBaseURL prefers the configured base URL and falls back to deriving one
// from the request for deployments behind a proxy.
func (h *Handlers) feedBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GetRSSFeed serves the user's finalized episodes as podcast RSS. The feed
// UUID is the only credential; the route is public.
func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]

	user, err := db.GetUserByRSSUUID(uuid)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	jobs, err := db.GetFinalizedJobsByUserID(user.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load finalized jobs")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(user, jobs, h.feedBaseURL(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to generate RSS")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}

// ServeAudioFile serves published audio blobs from local storage.
func (h *Handlers) ServeAudioFile(w http.ResponseWriter, r *http.Request) {
	key := filepath.Clean(mux.Vars(r)["key"])
	if key == "." || strings.HasPrefix(key, "..") || filepath.IsAbs(key) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, filepath.Join(h.audioStoragePath, key))
}
