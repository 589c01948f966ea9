package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	settings, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Server.Port != 5000 {
		t.Fatalf("default port = %d, want 5000", settings.Server.Port)
	}
	if settings.Transcode.FFmpegPath != "ffmpeg" {
		t.Fatalf("default ffmpeg path = %q", settings.Transcode.FFmpegPath)
	}
	if settings.Segments.IdleTimeoutSeconds != 60 {
		t.Fatalf("default idle timeout = %d, want 60", settings.Segments.IdleTimeoutSeconds)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written to disk: %v", err)
	}
}

func TestLoadMergesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"server":{"port":8080}}`), 0o644); err != nil {
		t.Fatalf("write partial settings: %v", err)
	}

	settings, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Server.Port != 8080 {
		t.Fatalf("override lost: port = %d", settings.Server.Port)
	}
	// Unset sections keep their defaults.
	if settings.NVR.DefaultPort != "554" {
		t.Fatalf("default NVR port lost: %q", settings.NVR.DefaultPort)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	want := DefaultSettings()
	want.Server.Port = 9000
	want.Transcode.ShowFFmpegLog = true
	if err := m.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write malformed settings: %v", err)
	}

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for malformed settings file")
	}
}
