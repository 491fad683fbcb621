package session

import "errors"

var (
	ErrPermissionDenied     = errors.New("microphone permission denied")
	ErrPermissionPending    = errors.New("microphone permission not yet resolved")
	ErrRecorderConstruction = errors.New("recorder could not be constructed")
	ErrRecordingStopped     = errors.New("recording stopped unsuccessfully")
	ErrPlayback             = errors.New("playback failed")
	ErrNotPlayable          = errors.New("no finished recording to play")
	ErrInvalidState         = errors.New("invalid recorder state")
)

// Title returns the short heading shown above a failure message
func Title(err error) string {
	switch {
	case errors.Is(err, ErrPlayback):
		return "Playback failed"
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrRecorderConstruction),
		errors.Is(err, ErrRecordingStopped):
		return "Recording failed"
	}
	return "Error"
}

// Message maps a session error to the text shown to the user
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Recording failed: please ensure the app has access to your microphone."
	case errors.Is(err, ErrRecorderConstruction), errors.Is(err, ErrRecordingStopped):
		return "There was a problem with your whistle; please try again"
	case errors.Is(err, ErrPlayback):
		return "There was a problem playing back your whistle; please try re-recording"
	case errors.Is(err, ErrNotPlayable):
		return "Record a whistle before playing it back"
	case errors.Is(err, ErrPermissionPending):
		return "Waiting for access to your microphone"
	}
	return err.Error()
}
