package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"rtspgate/models"
)

// StreamRegistry is the registry surface the handler depends on.
type StreamRegistry interface {
	Start(id, source string) error
	Stop(id string) error
	Lookup(id string) (models.StreamInfo, error)
	List() []models.StreamInfo
	Output(id string) (<-chan []byte, error)
}

// StreamsHandler exposes the managed stream registry over HTTP.
type StreamsHandler struct {
	registry StreamRegistry
}

func NewStreamsHandler(registry StreamRegistry) *StreamsHandler {
	return &StreamsHandler{registry: registry}
}

// sourceParam reads the upstream address from the query string, falling back
// to an urlencoded form field of the same name.
func sourceParam(r *http.Request) string {
	if source := strings.TrimSpace(r.URL.Query().Get("source")); source != "" {
		return source
	}
	return strings.TrimSpace(r.PostFormValue("source"))
}

func (h *StreamsHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	source := sourceParam(r)
	if source == "" {
		writeMessage(w, http.StatusBadRequest, false, "missing source in query or form body")
		return
	}

	log.Printf("[api] start stream %q from %s", id, source)
	if err := h.registry.Start(id, source); err != nil {
		writeMessage(w, statusForError(err), false, fmt.Sprintf("failed to start stream: %v", err))
		return
	}
	writeMessage(w, http.StatusOK, true, fmt.Sprintf("Stream %s started", id))
}

func (h *StreamsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	log.Printf("[api] stop stream %q", id)
	if err := h.registry.Stop(id); err != nil {
		writeMessage(w, statusForError(err), false, fmt.Sprintf("failed to stop stream: %v", err))
		return
	}
	writeMessage(w, http.StatusOK, true, fmt.Sprintf("Stream %s stopped", id))
}

func (h *StreamsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StreamListResponse{Streams: h.registry.List()})
}

// ServeMPEGTS performs the take-once handoff and streams the worker's bytes
// until the channel closes or the client goes away. Client disconnect does
// not stop the worker; managed streams only die on an explicit stop.
func (h *StreamsHandler) ServeMPEGTS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	output, err := h.registry.Output(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	ctx := r.Context()
	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}

// ServePlaylist emits a minimal single-entry playlist pointing at the
// stream's continuous MPEG-TS endpoint.
func (h *StreamsHandler) ServePlaylist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.registry.Lookup(id); err != nil {
		writeError(w, err)
		return
	}

	playlist := fmt.Sprintf(
		"#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n#EXTINF:10.0,\n/stream/%s/mpegts\n",
		id,
	)
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(playlist))
}

// ServeSegment falls through to the continuous stream; per-stream output is
// not segmented on disk.
func (h *StreamsHandler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	h.ServeMPEGTS(w, r)
}
