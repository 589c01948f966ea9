package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"rtspgate/models"
	"rtspgate/services/streaming"
)

type fakeRegistry struct {
	startErr  error
	stopErr   error
	lookupErr error
	outputErr error
	listResp  []models.StreamInfo
	output    chan []byte

	lastStartID     string
	lastStartSource string
	lastStopID      string
}

func (f *fakeRegistry) Start(id, source string) error {
	f.lastStartID = id
	f.lastStartSource = source
	return f.startErr
}

func (f *fakeRegistry) Stop(id string) error {
	f.lastStopID = id
	return f.stopErr
}

func (f *fakeRegistry) Lookup(id string) (models.StreamInfo, error) {
	if f.lookupErr != nil {
		return models.StreamInfo{}, f.lookupErr
	}
	return models.StreamInfo{ID: id, Source: "rtsp://cam/1", CreatedAt: time.Now()}, nil
}

func (f *fakeRegistry) List() []models.StreamInfo { return f.listResp }

func (f *fakeRegistry) Output(string) (<-chan []byte, error) {
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	return f.output, nil
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestStartStream(t *testing.T) {
	reg := &fakeRegistry{}
	h := NewStreamsHandler(reg)

	req := httptest.NewRequest(http.MethodPost, "/api/stream/cam1/start?source=rtsp://cam/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "cam1"})
	rec := httptest.NewRecorder()

	h.Start(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeAPIResponse(t, rec); !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if reg.lastStartID != "cam1" || reg.lastStartSource != "rtsp://cam/1" {
		t.Fatalf("registry called with %q/%q", reg.lastStartID, reg.lastStartSource)
	}
}

func TestStartStreamMissingSource(t *testing.T) {
	h := NewStreamsHandler(&fakeRegistry{})

	req := httptest.NewRequest(http.MethodPost, "/api/stream/cam1/start", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "cam1"})
	rec := httptest.NewRecorder()

	h.Start(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStartStreamDuplicate(t *testing.T) {
	h := NewStreamsHandler(&fakeRegistry{startErr: streaming.ErrDuplicateStreamID})

	req := httptest.NewRequest(http.MethodPost, "/api/stream/cam1/start?source=rtsp://cam/1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "cam1"})
	rec := httptest.NewRecorder()

	h.Start(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate id, got %d", rec.Code)
	}
	if resp := decodeAPIResponse(t, rec); resp.Success {
		t.Fatal("duplicate start reported success")
	}
}

func TestStopStreamNotFound(t *testing.T) {
	h := NewStreamsHandler(&fakeRegistry{stopErr: streaming.ErrStreamNotFound})

	req := httptest.NewRequest(http.MethodPost, "/api/stream/ghost/stop", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "ghost"})
	rec := httptest.NewRecorder()

	h.Stop(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListStreams(t *testing.T) {
	reg := &fakeRegistry{listResp: []models.StreamInfo{
		{ID: "a", Source: "rtsp://cam/1"},
		{ID: "b", Source: "rtsp://cam/2"},
	}}
	h := NewStreamsHandler(reg)

	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	rec := httptest.NewRecorder()

	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.StreamListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Streams) != 2 || resp.Streams[0].ID != "a" {
		t.Fatalf("unexpected list payload: %+v", resp)
	}
}

func TestServeMPEGTSStreamsChunks(t *testing.T) {
	output := make(chan []byte, 2)
	output <- []byte("first")
	output <- []byte("second")
	close(output)

	h := NewStreamsHandler(&fakeRegistry{output: output})

	req := httptest.NewRequest(http.MethodGet, "/stream/cam1/mpegts", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "cam1"})
	rec := httptest.NewRecorder()

	h.ServeMPEGTS(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp2t" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Body.String(); got != "firstsecond" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestServeMPEGTSAlreadyConsumed(t *testing.T) {
	h := NewStreamsHandler(&fakeRegistry{outputErr: streaming.ErrAlreadyConsumed})

	req := httptest.NewRequest(http.MethodGet, "/stream/cam1/mpegts", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "cam1"})
	rec := httptest.NewRecorder()

	h.ServeMPEGTS(rec, req)

	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for consumed stream, got %d", rec.Code)
	}
}

func TestServePlaylist(t *testing.T) {
	h := NewStreamsHandler(&fakeRegistry{})

	req := httptest.NewRequest(http.MethodGet, "/stream/cam1/hls/playlist.m3u8", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "cam1"})
	rec := httptest.NewRecorder()

	h.ServePlaylist(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if want := "/stream/cam1/mpegts"; !strings.Contains(body, want) {
		t.Fatalf("playlist %q missing %q", body, want)
	}
}
