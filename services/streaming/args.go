package streaming

// The argument vectors below form the invocation contract with the external
// transcoding tool and must stay stable.

// ManagedStreamArgs transcodes an RTSP source into an MPEG-TS byte stream on
// stdout for a registered, long-lived stream.
func ManagedStreamArgs(source string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", source,
		"-f", "mpegts",
		"-codec:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-b:v", "2000k",
		"-codec:a", "aac",
		"-b:a", "128k",
		"-avoid_negative_ts", "make_zero",
		"-fflags", "+genpts",
		"-",
	}
}

// DirectStreamArgs transcodes an RTSP source into an MPEG-TS byte stream for
// a one-shot, request-bound stream.
func DirectStreamArgs(source string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", source,
		"-f", "mpegts",
		"-codec:v", "libx264",
		"-preset", "ultrafast",
		"-codec:a", "aac",
		"-ar", "44100",
		"-",
	}
}

// SegmentArgs transcodes an RTSP source into a rolling HLS playlist plus
// segment files inside dir. baseURL prefixes segment references in the
// playlist so clients fetch them through the session's HTTP path.
func SegmentArgs(source, dir, baseURL string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", source,
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "5",
		"-hls_flags", "delete_segments+independent_segments",
		"-hls_segment_filename", dir + "/segment%03d.ts",
		"-hls_base_url", baseURL,
		"-codec:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-g", "50",
		"-keyint_min", "25",
		"-sc_threshold", "0",
		"-b:v", "2000k",
		"-codec:a", "aac",
		"-ar", "44100",
		"-b:a", "128k",
		dir + "/playlist.m3u8",
	}
}

// PreviewArgs transcodes an RTSP source into a downscaled motion-JPEG stream
// on stdout, used for lightweight NVR channel previews.
func PreviewArgs(source string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", source,
		"-vf", "scale=640:480",
		"-q:v", "5",
		"-f", "mjpeg",
		"-fflags", "flush_packets",
		"pipe:1",
	}
}
