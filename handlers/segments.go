package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rtspgate/models"
)

// SessionManager is the segmented-output cache surface the handler depends
// on.
type SessionManager interface {
	GetOrCreate(source, urlPrefix string) (string, error)
	AwaitReady(id string, timeout time.Duration) error
	ReadFile(id, name string) ([]byte, error)
	Sessions() []models.SegmentSession
}

// SegmentsHandler serves on-demand segmented output: session creation with a
// redirect to the playlist, then playlist and chunk reads against the cached
// session.
type SegmentsHandler struct {
	manager SessionManager
	// urlPrefix is the public path under which this handler's session files
	// are mounted, e.g. "/stream/hls" or "/proxyhl/segment".
	urlPrefix string
}

func NewSegmentsHandler(manager SessionManager, urlPrefix string) *SegmentsHandler {
	return &SegmentsHandler{manager: manager, urlPrefix: urlPrefix}
}

// OpenSource resolves (or creates) the session for a raw source address and
// redirects to its playlist once the worker has produced one.
func (h *SegmentsHandler) OpenSource(w http.ResponseWriter, r *http.Request) {
	source := sourceParam(r)
	if source == "" {
		writeMessage(w, http.StatusBadRequest, false, "missing source in query")
		return
	}
	h.open(w, r, source)
}

// open runs the create/await/redirect sequence shared by the raw-source and
// NVR entry points.
func (h *SegmentsHandler) open(w http.ResponseWriter, r *http.Request, source string) {
	id, err := h.manager.GetOrCreate(source, h.urlPrefix)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.manager.AwaitReady(id, 0); err != nil {
		log.Printf("[segments] session %s not ready: %v", id, err)
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.urlPrefix+"/"+id+"/playlist.m3u8", http.StatusFound)
}

// ServeFile returns a playlist or chunk file from the session's working
// directory, refreshing the session's last-access time.
func (h *SegmentsHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, file := vars["id"], vars["file"]

	data, err := h.manager.ReadFile(id, file)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(file))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// ListSessions reports the live sessions and their idle times.
func (h *SegmentsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SegmentSessionListResponse{Sessions: h.manager.Sessions()})
}
