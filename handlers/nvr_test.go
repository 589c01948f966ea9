package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"rtspgate/models"
	"rtspgate/services/nvr"
)

func newNVRTestServer(t *testing.T, status int, body string) (host, port string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	return u.Hostname(), u.Port()
}

func TestCamerasMissingHost(t *testing.T) {
	h := NewNVRHandler(nvr.NewClient(nil), &directSpawner{}, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "/proxy/cameras", nil)
	rec := httptest.NewRecorder()

	h.Cameras(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without host, got %d", rec.Code)
	}
}

func TestCamerasListsChannels(t *testing.T) {
	body := `{"StreamingChannelList":{"StreamingChannel":[{"id":101,"name":"Yard"}]}}`
	host, port := newNVRTestServer(t, http.StatusOK, body)

	h := NewNVRHandler(nvr.NewClient(nil), &directSpawner{}, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "/proxy/cameras?host="+host+"&port="+port, nil)
	rec := httptest.NewRecorder()

	h.Cameras(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.ChannelListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode channels: %v", err)
	}
	if len(resp.Channels) != 1 || resp.Channels[0].ID != "101" || resp.Channels[0].Name != "Yard" {
		t.Fatalf("unexpected channels payload: %+v", resp)
	}
}

func TestCamerasNVRFailure(t *testing.T) {
	host, port := newNVRTestServer(t, http.StatusInternalServerError, "")

	h := NewNVRHandler(nvr.NewClient(nil), &directSpawner{}, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "/proxy/cameras?host="+host+"&port="+port, nil)
	rec := httptest.NewRecorder()

	h.Cameras(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for failing NVR, got %d", rec.Code)
	}
}

func TestPreviewBuildsChannelAddress(t *testing.T) {
	spawner := &directSpawner{payload: []byte("jpeg-bytes")}
	h := NewNVRHandler(nvr.NewClient(nil), spawner, nil, "", "")

	req := httptest.NewRequest(http.MethodGet, "/proxy/rtsp?host=10.0.0.5&channel=4&stream=2&password=pw", nil)
	rec := httptest.NewRecorder()

	h.Preview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	joined := strings.Join(spawner.lastArgs, " ")
	if !strings.Contains(joined, "/ISAPI/Streaming/channels/402") {
		t.Fatalf("worker args missing channel suffix: %q", joined)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "multipart/x-mixed-replace") {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestOpenSegmentedRedirects(t *testing.T) {
	mgr := &fakeSessionManager{}
	sessions := NewSegmentsHandler(mgr, "/proxyhl/segment")
	h := NewNVRHandler(nvr.NewClient(nil), &directSpawner{}, sessions, "", "")

	req := httptest.NewRequest(http.MethodGet, "/proxyhl/rtsp?host=10.0.0.5&channel=1&password=pw", nil)
	rec := httptest.NewRecorder()

	h.OpenSegmented(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if !strings.HasPrefix(mgr.lastSource, "rtsp://admin:pw@10.0.0.5:554/ISAPI/Streaming/channels/101") {
		t.Fatalf("session created for unexpected source %q", mgr.lastSource)
	}
}
