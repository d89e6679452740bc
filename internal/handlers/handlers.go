package handlers

import (
	"encoding/json"
	"net/http"

	"podforge/pkg/tasks"
)

// Handlers carries the dependencies of the HTTP API.
type Handlers struct {
	asynqClient      tasks.TaskEnqueuer
	audioStoragePath string
	baseURL          string
}

func New(asynqClient tasks.TaskEnqueuer, audioStoragePath, baseURL string) *Handlers {
	return &Handlers{
		asynqClient:      asynqClient,
		audioStoragePath: audioStoragePath,
		baseURL:          baseURL,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// respondError writes a stable machine-readable code plus a human-readable
// message.
func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
