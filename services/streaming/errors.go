package streaming

import "errors"

var (
	// ErrDuplicateStreamID is returned when a stream id is already in use.
	ErrDuplicateStreamID = errors.New("stream id already exists")

	// ErrStreamNotFound is returned when no active stream matches the id.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrAlreadyConsumed is returned when a stream's output has already been
	// handed to a consumer.
	ErrAlreadyConsumed = errors.New("stream output already consumed")

	// ErrWorkerSpawnFailed is returned when the transcoding worker could not
	// be started.
	ErrWorkerSpawnFailed = errors.New("failed to start transcoding worker")
)
