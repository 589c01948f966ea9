package handlers

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"

	"rtspgate/services/streaming"
)

// DirectHandler serves one-shot streams whose worker lifetime is bound to the
// HTTP response: no registry entry, no separate stop call.
type DirectHandler struct {
	spawner streaming.Spawner
}

func NewDirectHandler(spawner streaming.Spawner) *DirectHandler {
	return &DirectHandler{spawner: spawner}
}

// Stream spawns a worker for the requested source and copies its output to
// the response until either side ends. Every exit path terminates the
// worker.
func (h *DirectHandler) Stream(w http.ResponseWriter, r *http.Request) {
	source := sourceParam(r)
	if source == "" {
		writeMessage(w, http.StatusBadRequest, false, "missing source in query")
		return
	}

	log.Printf("[direct] stream requested for %s", source)
	h.copyWorkerOutput(w, r, streaming.DirectStreamArgs(source), "video/mp2t")
}

// copyWorkerOutput runs a piped worker and relays its stdout to the response
// in packet-aligned chunks.
func (h *DirectHandler) copyWorkerOutput(w http.ResponseWriter, r *http.Request, args []string, contentType string) {
	proc, err := h.spawner.Spawn(streaming.Spec{Args: args, PipeOutput: true})
	if err != nil {
		writeError(w, err)
		return
	}
	defer proc.Terminate()

	ctx := r.Context()
	go func() {
		// Client disconnect must propagate to worker termination, which
		// closes the pipe and unblocks the read loop below.
		<-ctx.Done()
		proc.Terminate()
	}()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	output := proc.Output()
	// Closing the pipe on every exit path lets the worker be reaped even when
	// the copy loop bails before draining it.
	defer output.Close()
	buf := make([]byte, streaming.ChunkSize)
	for {
		n, readErr := output.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

var playerTemplate = template.Must(template.New("player").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Stream Player</title>
    <script src="https://cdn.jsdelivr.net/npm/hls.js@latest"></script>
    <style>
        body { margin: 0; padding: 20px; font-family: Arial, sans-serif; background: #1a1a1a; color: #fff; }
        .container { max-width: 1200px; margin: 0 auto; }
        h1 { text-align: center; margin-bottom: 20px; }
        .video-wrapper { background: #000; padding: 20px; border-radius: 8px; text-align: center; }
        video { width: 100%; max-width: 1000px; height: auto; border-radius: 4px; }
        .info { margin-top: 20px; padding: 15px; background: #2a2a2a; border-radius: 4px; }
        .status { padding: 10px; margin-top: 10px; background: #334455; border-radius: 4px; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Stream Player</h1>
        <div class="video-wrapper">
            <video id="player" controls autoplay width="800" height="600"></video>
        </div>
        <div class="info">
            <strong>Stream URL:</strong><br>
            <code>{{.Source}}</code>
            <div class="status" id="status">Loading...</div>
        </div>
    </div>
    <script>
        const videoElement = document.getElementById('player');
        const statusDiv = document.getElementById('status');
        const hls = new Hls();

        hls.loadSource({{.PlaylistURL}});
        hls.attachMedia(videoElement);

        hls.on(Hls.Events.MANIFEST_PARSED, function() {
            statusDiv.innerHTML = 'Stream loaded. Playing...';
            videoElement.play().catch(e => {
                statusDiv.innerHTML = 'Autoplay blocked: ' + e.message;
            });
        });

        hls.on(Hls.Events.ERROR, function(event, data) {
            if (data.fatal) {
                statusDiv.innerHTML = 'Stream error: ' + (data.response?.statusText || data.details);
            }
        });
    </script>
</body>
</html>`))

// Player renders a browser page that plays the source through the
// segmented-output path.
func (h *DirectHandler) Player(w http.ResponseWriter, r *http.Request) {
	source := sourceParam(r)
	if source == "" {
		writeMessage(w, http.StatusBadRequest, false, "missing source in query")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := playerTemplate.Execute(w, struct {
		Source      string
		PlaylistURL string
	}{
		Source:      source,
		PlaylistURL: fmt.Sprintf("/stream/hls?source=%s", url.QueryEscape(source)),
	})
	if err != nil {
		log.Printf("[direct] failed to render player page: %v", err)
	}
}
