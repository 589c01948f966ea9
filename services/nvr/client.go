package nvr

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"rtspgate/models"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxListingSize      = 1 * 1024 * 1024
)

// Client fetches channel listings from an NVR's ISAPI endpoint and
// normalizes the vendor response into a uniform camera list.
type Client struct {
	http *http.Client
}

// NewClient wraps the provided HTTP client; a nil client gets sensible
// defaults.
func NewClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Client{http: client}
}

// FetchChannels retrieves the NVR's streaming channel listing and normalizes
// it, whether the device answers in JSON or XML.
func (c *Client) FetchChannels(ctx context.Context, host, port, username, password string) ([]models.Channel, error) {
	listingURL := fmt.Sprintf("http://%s:%s/ISAPI/Streaming/channels", host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build NVR request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Accept", "application/json, application/xml")

	log.Printf("[nvr] fetching channels from %s:%s", host, port)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact NVR: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("NVR responded with %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingSize))
	if err != nil {
		return nil, fmt.Errorf("read NVR response: %w", err)
	}

	if channels, ok := parseChannelsJSON(body); ok {
		return channels, nil
	}
	channels, err := parseChannelsXML(body)
	if err != nil {
		return nil, fmt.Errorf("parse NVR channel listing: %w", err)
	}
	return channels, nil
}

type jsonChannelList struct {
	StreamingChannelList struct {
		StreamingChannel []struct {
			ID   any    `json:"id"`
			Name string `json:"name"`
		} `json:"StreamingChannel"`
	} `json:"StreamingChannelList"`
}

func parseChannelsJSON(body []byte) ([]models.Channel, bool) {
	var listing jsonChannelList
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, false
	}
	raw := listing.StreamingChannelList.StreamingChannel

	channels := make([]models.Channel, 0, len(raw))
	for i, ch := range raw {
		id := ""
		switch v := ch.ID.(type) {
		case string:
			id = v
		case float64:
			id = fmt.Sprintf("%.0f", v)
		}
		channels = append(channels, normalizeChannel(id, ch.Name, i))
	}
	return channels, true
}

type xmlChannelList struct {
	Channels []struct {
		ID   string `xml:"id"`
		Name string `xml:"name"`
	} `xml:"StreamingChannel"`
}

func parseChannelsXML(body []byte) ([]models.Channel, error) {
	var listing xmlChannelList
	if err := xml.Unmarshal(body, &listing); err != nil {
		return nil, err
	}

	channels := make([]models.Channel, 0, len(listing.Channels))
	for i, ch := range listing.Channels {
		channels = append(channels, normalizeChannel(ch.ID, ch.Name, i))
	}
	return channels, nil
}

func normalizeChannel(id, name string, index int) models.Channel {
	if id == "" {
		id = fmt.Sprintf("%d", index+1)
	}
	if name == "" {
		name = fmt.Sprintf("Camera %d", index+1)
	}
	return models.Channel{ID: id, Name: name}
}
