package audio

import (
	"log/slog"
	"strings"

	"github.com/audiolibrelab/whistle/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeFFmpeg BackendType = "ffmpeg"
	BackendTypeAuto   BackendType = "auto"
)

// Backend constructs recorders. Construction failure means no capture was started.
type Backend interface {
	NewRecorder(path string, settings Settings) (Recorder, error)
	ListSources() ([]string, error)
	GetType() BackendType
}

// NewBackend creates the backend selected by configuration
func NewBackend(cfg *config.Config) Backend {
	switch determineBackend(cfg) {
	case BackendTypeFFmpeg:
		return NewFFmpegBackend(cfg.Recorder)
	default:
		// ffmpeg is the only capture backend
		return NewFFmpegBackend(cfg.Recorder)
	}
}

// SettingsFromConfig extracts the encoder settings for the whistle artifact
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Codec:      cfg.Audio.Codec,
		Bitrate:    cfg.Bitrate(),
	}
}

// NewPermission returns the permission collaborator for the configured backend
func NewPermission(cfg *config.Config) Permission {
	if cfg.Recorder.AssumePermission {
		return StaticPermission(true)
	}
	return NewDevicePermission(cfg.Recorder)
}

// determineBackend resolves "auto" and unknown names to ffmpeg, the only capture backend
func determineBackend(cfg *config.Config) BackendType {
	switch BackendType(strings.ToLower(cfg.Recorder.Backend)) {
	case BackendTypeAuto, BackendTypeFFmpeg:
		return BackendTypeFFmpeg
	}
	slog.Warn("Unknown recorder backend, using ffmpeg", "backend", cfg.Recorder.Backend)
	return BackendTypeFFmpeg
}
