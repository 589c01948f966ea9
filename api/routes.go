package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"rtspgate/handlers"
)

// corsMiddleware allows cross-origin access to every endpoint so browser
// players on other hosts can reach the streams.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an id for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		log.Printf("[api] %s %s %s", id[:8], r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name": "rtspgate",
		"endpoints": map[string]string{
			"player":        "GET /player?source=<rtsp url> - Play in browser",
			"direct_stream": "GET /stream?source=<rtsp url> - Stream directly from RTSP",
			"start_stream":  "POST /api/stream/{id}/start?source=<rtsp url>",
			"stop_stream":   "POST /api/stream/{id}/stop",
			"list_streams":  "GET /api/streams",
			"mpegts_stream": "GET /stream/{id}/mpegts",
			"hls_playlist":  "GET /stream/{id}/hls/playlist.m3u8",
			"nvr_cameras":   "GET /proxy/cameras?host=<nvr>",
			"nvr_preview":   "GET /proxy/rtsp?host=<nvr>&channel=1",
			"nvr_hls":       "GET /proxyhl/rtsp?host=<nvr>&channel=1",
			"hls_sessions":  "GET /proxyhl/sessions",
		},
	})
}

// Register mounts every endpoint onto the provided router.
func Register(
	r *mux.Router,
	streamsHandler *handlers.StreamsHandler,
	directHandler *handlers.DirectHandler,
	hlsHandler *handlers.SegmentsHandler,
	proxyHLSHandler *handlers.SegmentsHandler,
	nvrHandler *handlers.NVRHandler,
) {
	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware)

	r.HandleFunc("/", index).Methods(http.MethodGet)

	// Managed stream control.
	r.HandleFunc("/api/streams", streamsHandler.List).Methods(http.MethodGet)
	r.HandleFunc("/api/stream/{id}/start", streamsHandler.Start).Methods(http.MethodPost)
	r.HandleFunc("/api/stream/{id}/stop", streamsHandler.Stop).Methods(http.MethodPost)

	// Session-derived segmented output for arbitrary sources. Registered
	// before the managed-stream routes on the same prefix so "hls" is not
	// captured as a stream id.
	r.HandleFunc("/stream/hls", hlsHandler.OpenSource).Methods(http.MethodGet)
	r.HandleFunc("/stream/hls/{id}/{file}", hlsHandler.ServeFile).Methods(http.MethodGet)

	// Managed stream output.
	r.HandleFunc("/stream/{id}/mpegts", streamsHandler.ServeMPEGTS).Methods(http.MethodGet)
	r.HandleFunc("/stream/{id}/hls/playlist.m3u8", streamsHandler.ServePlaylist).Methods(http.MethodGet)
	r.HandleFunc("/stream/{id}/hls/{segment}", streamsHandler.ServeSegment).Methods(http.MethodGet)

	// Request-bound direct streaming and the browser player.
	r.HandleFunc("/stream", directHandler.Stream).Methods(http.MethodGet)
	r.HandleFunc("/player", directHandler.Player).Methods(http.MethodGet)

	// NVR passthrough.
	r.HandleFunc("/proxy/cameras", nvrHandler.Cameras).Methods(http.MethodGet)
	r.HandleFunc("/proxy/rtsp", nvrHandler.Preview).Methods(http.MethodGet)
	r.HandleFunc("/proxyhl/rtsp", nvrHandler.OpenSegmented).Methods(http.MethodGet)
	r.HandleFunc("/proxyhl/sessions", proxyHLSHandler.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/proxyhl/segment/{id}/{file}", proxyHLSHandler.ServeFile).Methods(http.MethodGet)
}
