package handlers

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"rtspgate/models"
	"rtspgate/services/nvr"
	"rtspgate/services/streaming"
)

// NVRHandler bridges NVR channels to HTTP: channel discovery, lightweight
// motion-JPEG previews, and segmented-output sessions per channel.
type NVRHandler struct {
	client          *nvr.Client
	spawner         streaming.Spawner
	sessions        *SegmentsHandler
	defaultPort     string
	defaultUsername string
}

func NewNVRHandler(client *nvr.Client, spawner streaming.Spawner, sessions *SegmentsHandler, defaultPort, defaultUsername string) *NVRHandler {
	if defaultPort == "" {
		defaultPort = "554"
	}
	if defaultUsername == "" {
		defaultUsername = "admin"
	}
	return &NVRHandler{
		client:          client,
		spawner:         spawner,
		sessions:        sessions,
		defaultPort:     defaultPort,
		defaultUsername: defaultUsername,
	}
}

// channelParams reads the shared NVR query parameters, applying the vendor
// defaults for anything omitted.
func (h *NVRHandler) channelParams(r *http.Request) (host, port, username, password, channel, stream string, err error) {
	q := r.URL.Query()
	host = strings.TrimSpace(q.Get("host"))
	if host == "" {
		return "", "", "", "", "", "", fmt.Errorf("missing host in query")
	}
	port = q.Get("port")
	if port == "" {
		port = h.defaultPort
	}
	username = q.Get("username")
	if username == "" {
		username = h.defaultUsername
	}
	password = q.Get("password")
	channel = q.Get("channel")
	if channel == "" {
		channel = "1"
	}
	stream = q.Get("stream")
	if stream == "" {
		stream = "1"
	}
	return host, port, username, password, channel, stream, nil
}

// Cameras fetches the NVR's channel listing and returns the normalized
// camera list.
func (h *NVRHandler) Cameras(w http.ResponseWriter, r *http.Request) {
	host, port, username, password, _, _, err := h.channelParams(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, false, err.Error())
		return
	}

	channels, err := h.client.FetchChannels(r.Context(), host, port, username, password)
	if err != nil {
		log.Printf("[nvr] channel discovery failed: %v", err)
		writeMessage(w, http.StatusBadGateway, false, fmt.Sprintf("failed to contact NVR: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, models.ChannelListResponse{Channels: channels})
}

// Preview streams a downscaled motion-JPEG rendition of one channel, bound
// to the request like any direct stream.
func (h *NVRHandler) Preview(w http.ResponseWriter, r *http.Request) {
	host, port, username, password, channel, stream, err := h.channelParams(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, false, err.Error())
		return
	}

	source := nvr.StreamURL(host, port, username, password, channel, stream)
	log.Printf("[nvr] preview for channel %s on %s", channel, host)

	direct := DirectHandler{spawner: h.spawner}
	direct.copyWorkerOutput(w, r, streaming.PreviewArgs(source), "multipart/x-mixed-replace; boundary=ffserver")
}

// OpenSegmented creates (or reuses) a segmented-output session for one NVR
// channel and redirects to its playlist.
func (h *NVRHandler) OpenSegmented(w http.ResponseWriter, r *http.Request) {
	host, port, username, password, channel, stream, err := h.channelParams(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, false, err.Error())
		return
	}

	source := nvr.StreamURL(host, port, username, password, channel, stream)
	log.Printf("[nvr] segmented session requested for channel %s on %s", channel, host)
	h.sessions.open(w, r, source)
}
