package nvr

import (
	"fmt"
	"net/url"
	"strconv"
)

// StreamURL builds the RTSP address for an NVR channel. The path suffix is
// the Hikvision convention: channel number followed by the two-digit
// sub-stream number (1 = main, 2 = sub), e.g. channel 4 stream 2 -> "402".
func StreamURL(host, port, username, password, channel, streamNumber string) string {
	n, err := strconv.Atoi(streamNumber)
	if err != nil || n < 1 {
		n = 1
	}
	suffix := fmt.Sprintf("%s%02d", channel, n)

	return fmt.Sprintf(
		"rtsp://%s:%s@%s:%s/ISAPI/Streaming/channels/%s",
		url.QueryEscape(username),
		url.QueryEscape(password),
		host,
		port,
		suffix,
	)
}
