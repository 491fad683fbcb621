// Package session owns the microphone permission handshake and the single
// whistle capture/playback slot.
//
// Every Session method must run on the session's Loop. Asynchronous results
// (permission probe, recorder exiting on its own) are posted back onto the loop
// before they touch state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/audiolibrelab/whistle/internal/audio"
)

// RecorderFactory constructs a capture writing to path. audio.Backend satisfies it.
type RecorderFactory interface {
	NewRecorder(path string, settings audio.Settings) (audio.Recorder, error)
}

// Player streams a finished artifact
type Player interface {
	Play(path string) error
}

type Options struct {
	Loop              *Loop
	Recorders         RecorderFactory
	Settings          audio.Settings
	Permission        audio.Permission
	Player            Player
	ArtifactPath      string
	PermissionTimeout time.Duration
}

type Session struct {
	loop              *Loop
	recorders         RecorderFactory
	settings          audio.Settings
	permission        audio.Permission
	player            Player
	path              string
	permissionTimeout time.Duration

	permState  PermissionState
	requesting bool
	waiters    []func(PermissionState)

	state     RecorderState
	artifact  string
	lastErr   error
	rec       audio.Recorder
	watchStop chan struct{}

	onChange func(Snapshot)
}

func New(opts Options) *Session {
	timeout := opts.PermissionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Session{
		loop:              opts.Loop,
		recorders:         opts.Recorders,
		settings:          opts.Settings,
		permission:        opts.Permission,
		player:            opts.Player,
		path:              opts.ArtifactPath,
		permissionTimeout: timeout,
		permState:         PermissionUnknown,
		state:             StateIdle,
	}
}

// OnChange registers the observer called on the loop after every transition
func (s *Session) OnChange(fn func(Snapshot)) {
	s.onChange = fn
}

func (s *Session) State() RecorderState {
	return s.state
}

func (s *Session) Permission() PermissionState {
	return s.permState
}

// ArtifactPath is empty unless the recorder is StoppedOk
func (s *Session) ArtifactPath() string {
	return s.artifact
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Permission:   s.permState,
		Recorder:     s.state,
		ArtifactPath: s.artifact,
		CanPlay:      s.state == StateStoppedOk,
		LastError:    Message(s.lastErr),
	}
}

// RequestPermission queries the permission collaborator once. done runs on the
// loop with the resolved outcome; if the outcome is already known it runs
// before RequestPermission returns.
func (s *Session) RequestPermission(done func(PermissionState)) {
	if s.permState != PermissionUnknown {
		if done != nil {
			done(s.permState)
		}
		return
	}
	if done != nil {
		s.waiters = append(s.waiters, done)
	}
	if s.requesting {
		return
	}
	s.requesting = true

	slog.Debug("Requesting microphone permission")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.permissionTimeout)
		defer cancel()

		granted, err := s.permission.Request(ctx)
		s.loop.Post(func() { s.resolvePermission(granted, err) })
	}()
}

func (s *Session) resolvePermission(granted bool, err error) {
	s.requesting = false
	if granted {
		s.permState = PermissionGranted
		slog.Info("Microphone permission granted")
	} else {
		s.permState = PermissionDenied
		s.lastErr = ErrPermissionDenied
		slog.Warn("Microphone permission denied", "error", err)
	}
	s.notify()

	waiters := s.waiters
	s.waiters = nil
	for _, fn := range waiters {
		fn(s.permState)
	}
}

// StartRecording opens a new capture on the fixed artifact path, replacing any
// previous whistle.
func (s *Session) StartRecording() error {
	if err := s.checkPermission(); err != nil {
		return err
	}
	if s.state == StateRecording {
		return fmt.Errorf("%w: already recording", ErrInvalidState)
	}

	// Single slot: the previous take is gone as soon as a new one starts
	s.artifact = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove previous whistle", "file", s.path, "error", err)
	}

	rec, err := s.recorders.NewRecorder(s.path, s.settings)
	if err != nil {
		slog.Error("Failed to construct recorder", "error", err)
		s.state = StateStoppedFailed
		s.lastErr = fmt.Errorf("%w: %w", ErrRecorderConstruction, err)
		s.notify()
		return s.lastErr
	}

	s.rec = rec
	s.state = StateRecording
	s.lastErr = nil
	s.watch(rec)

	slog.Info("Recording started", "artifact", s.path)
	s.notify()
	return nil
}

// StopRecording releases the active recorder. success=false always discards
// the take.
func (s *Session) StopRecording(success bool) error {
	if err := s.checkPermission(); err != nil {
		return err
	}
	if s.state != StateRecording {
		return fmt.Errorf("%w: not recording", ErrInvalidState)
	}
	return s.stop(success)
}

// Toggle starts a recording, or stops the active one successfully
func (s *Session) Toggle() error {
	if s.state == StateRecording {
		return s.StopRecording(true)
	}
	return s.StartRecording()
}

// Play streams the finished whistle. It never changes the recorder state.
func (s *Session) Play() error {
	if err := s.checkPermission(); err != nil {
		return err
	}
	if s.state != StateStoppedOk {
		return fmt.Errorf("%w: recorder is %s", ErrNotPlayable, s.state)
	}

	if err := s.player.Play(s.artifact); err != nil {
		slog.Error("Playback failed", "file", s.artifact, "error", err)
		s.lastErr = fmt.Errorf("%w: %w", ErrPlayback, err)
		s.notify()
		return s.lastErr
	}

	s.lastErr = nil
	s.notify()
	return nil
}

// Reset abandons any capture and returns to Idle. The file on disk is left for
// the next StartRecording to replace.
func (s *Session) Reset() {
	if s.rec != nil {
		s.discard()
	}
	s.state = StateIdle
	s.artifact = ""
	if !errors.Is(s.lastErr, ErrPermissionDenied) {
		s.lastErr = nil
	}
	s.notify()
}

// Close releases an active recorder without reporting a transition
func (s *Session) Close() {
	if s.rec != nil {
		s.discard()
		s.state = StateIdle
		s.artifact = ""
	}
}

func (s *Session) checkPermission() error {
	switch s.permState {
	case PermissionDenied:
		return ErrPermissionDenied
	case PermissionUnknown:
		return ErrPermissionPending
	}
	return nil
}

// watch forwards an unrequested recorder exit onto the loop
func (s *Session) watch(rec audio.Recorder) {
	stop := make(chan struct{})
	s.watchStop = stop

	go func() {
		select {
		case err := <-rec.Finished():
			s.loop.Post(func() { s.recorderFinished(rec, err) })
		case <-stop:
		}
	}()
}

func (s *Session) recorderFinished(rec audio.Recorder, err error) {
	if s.rec != rec || s.state != StateRecording {
		return
	}
	if err != nil {
		slog.Warn("Recorder finished unsuccessfully", "error", err)
		s.stop(false)
		return
	}
	slog.Info("Recorder finished on its own")
	s.stop(true)
}

func (s *Session) stop(success bool) error {
	rec := s.rec
	s.rec = nil
	s.unwatch()

	path := rec.Path()
	stopErr := rec.Stop()
	if success && stopErr == nil {
		s.state = StateStoppedOk
		s.artifact = path
		s.lastErr = nil
		slog.Info("Recording finished", "artifact", s.artifact)
		s.notify()
		return nil
	}

	s.state = StateStoppedFailed
	s.artifact = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove failed whistle", "file", path, "error", err)
	}

	if stopErr != nil {
		s.lastErr = fmt.Errorf("%w: %w", ErrRecordingStopped, stopErr)
	} else {
		s.lastErr = ErrRecordingStopped
	}
	slog.Error("Recording failed", "error", s.lastErr)
	s.notify()
	return s.lastErr
}

func (s *Session) discard() {
	rec := s.rec
	s.rec = nil
	s.unwatch()
	if err := rec.Stop(); err != nil {
		slog.Debug("Discarded recorder stopped with error", "error", err)
	}
}

func (s *Session) unwatch() {
	if s.watchStop != nil {
		close(s.watchStop)
		s.watchStop = nil
	}
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}
