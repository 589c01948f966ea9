package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Transcode TranscodeSettings `json:"transcode"`
	Segments  SegmentSettings   `json:"segments"`
	NVR       NVRSettings       `json:"nvr"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// TranscodeSettings locates the external transcoding tool.
type TranscodeSettings struct {
	FFmpegPath    string `json:"ffmpegPath"`
	ShowFFmpegLog bool   `json:"showFfmpegLog"`
}

// SegmentSettings tunes the segmented-output session cache.
type SegmentSettings struct {
	Directory           string `json:"directory"`
	IdleTimeoutSeconds  int    `json:"idleTimeoutSeconds"`
	ReadyTimeoutSeconds int    `json:"readyTimeoutSeconds"`
	ReapIntervalSeconds int    `json:"reapIntervalSeconds"`
}

// NVRSettings holds the defaults applied when discovery requests omit them.
type NVRSettings struct {
	DefaultPort     string `json:"defaultPort"`
	DefaultUsername string `json:"defaultUsername"`
}

// LogConfig configures optional rotating file logging.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first run.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Transcode: TranscodeSettings{
			FFmpegPath: "ffmpeg",
		},
		Segments: SegmentSettings{
			Directory:           filepath.Join("/tmp", "rtspgate-segments"),
			IdleTimeoutSeconds:  60,
			ReadyTimeoutSeconds: 20,
			ReapIntervalSeconds: 10,
		},
		NVR: NVRSettings{
			DefaultPort:     "554",
			DefaultUsername: "admin",
		},
		Log: LogConfig{
			MaxSize:    10,
			MaxAge:     14,
			MaxBackups: 3,
		},
	}
}

// Manager loads and saves the settings file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the settings file's parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk, creating it with defaults when
// missing. Unset fields fall back to their defaults.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Save writes the settings file, creating the parent directory if needed.
func (m *Manager) Save(s Settings) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, append(data, '\n'), 0o644)
}
