package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"rtspgate/models"
	"rtspgate/services/segments"
	"rtspgate/services/streaming"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, success bool, message string) {
	writeJSON(w, status, models.APIResponse{Success: success, Message: message})
}

// statusForError maps the service error taxonomy onto HTTP status classes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, streaming.ErrDuplicateStreamID):
		return http.StatusConflict
	case errors.Is(err, streaming.ErrStreamNotFound),
		errors.Is(err, segments.ErrSessionNotFound),
		errors.Is(err, segments.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, streaming.ErrAlreadyConsumed):
		return http.StatusGone
	case errors.Is(err, segments.ErrInvalidFileName):
		return http.StatusBadRequest
	case errors.Is(err, streaming.ErrWorkerSpawnFailed),
		errors.Is(err, segments.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeMessage(w, statusForError(err), false, err.Error())
}

// contentTypeFor guesses a media content type from the file extension.
func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".ts"):
		return "video/mp2t"
	case strings.HasSuffix(name, ".m3u8"):
		return "application/vnd.apple.mpegurl"
	default:
		return "application/octet-stream"
	}
}
