package models

import "time"

// APIResponse is the uniform success/message envelope for control endpoints.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StreamInfo describes one managed stream.
type StreamInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StreamListResponse wraps the managed stream snapshot.
type StreamListResponse struct {
	Streams []StreamInfo `json:"streams"`
}

// Channel is one camera channel reported by an NVR.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelListResponse is the normalized NVR discovery result.
type ChannelListResponse struct {
	Channels []Channel `json:"channels"`
}

// SegmentSession describes one segmented-output session for observability.
type SegmentSession struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	IdleSeconds int64     `json:"idle_seconds"`
}

// SegmentSessionListResponse wraps the segmented session snapshot.
type SegmentSessionListResponse struct {
	Sessions []SegmentSession `json:"sessions"`
}
