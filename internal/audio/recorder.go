package audio

import (
	"context"
	"errors"
)

// ErrNotRecording is returned by Stop on a recorder that has already been stopped.
var ErrNotRecording = errors.New("recorder is not running")

// Settings describes how a capture is encoded.
type Settings struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Codec      string `json:"codec"`
	Bitrate    string `json:"bitrate"`
}

// Recorder is one running capture writing to a single file.
//
// Finished delivers at most one value for a capture that ended without Stop
// being called: nil when the file was finalized (including an interrupt from
// outside), otherwise the failure. Nothing is delivered for a capture ended by Stop.
type Recorder interface {
	Path() string
	Stop() error
	Finished() <-chan error
}

// Permission is the microphone access collaborator.
type Permission interface {
	Request(ctx context.Context) (bool, error)
}
