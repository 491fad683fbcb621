package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/whistle/internal/audio"
	"github.com/audiolibrelab/whistle/internal/config"
	"github.com/audiolibrelab/whistle/internal/flow"
	"github.com/audiolibrelab/whistle/internal/genre"
	"github.com/audiolibrelab/whistle/internal/play"
	"github.com/audiolibrelab/whistle/internal/session"
	"github.com/audiolibrelab/whistle/internal/storage"
	"github.com/audiolibrelab/whistle/internal/store"
	"github.com/audiolibrelab/whistle/internal/submit"
)

var (
	ErrClosed       = errors.New("service closed")
	ErrNoSubmission = errors.New("no submission has been made")
	ErrUnavailable  = errors.New("not available in this configuration")
)

// Service is the thread-safe entry point used by the CLI and the HTTP server
type Service interface {
	// Flow operations
	AddWhistle() error
	Next() error
	Back() error
	SelectGenre(index int) error
	SubmitComments(text string) error
	Retry() error
	Cancel() error

	// Recording operations
	AwaitPermission(ctx context.Context) (session.PermissionState, error)
	StartRecording() error
	StopRecording(success bool) error
	ToggleRecording() error
	Play() error

	// Information operations
	Status() Status
	Subscribe() (<-chan Status, func())
	AwaitSubmission(ctx context.Context) (submit.Outcome, error)
	ArtifactPath() string
	Genres() []string
	ListSubmissions(ctx context.Context, limit int) ([]store.Record, error)
	SubmissionAudio(ctx context.Context, id string) (store.Record, io.ReadCloser, error)
	ListSources() ([]string, error)
	GetConfig() *config.Config
	GetLastError() string

	Close() error
}

// Status combines the session and the flow as seen by observers
type Status struct {
	Session   session.Snapshot `json:"session"`
	Flow      flow.View        `json:"flow"`
	LastError string           `json:"last_error,omitempty"`
}

// RecordLister reads the submission index
type RecordLister interface {
	List(ctx context.Context, limit int) ([]store.Record, error)
	Get(ctx context.Context, id string) (store.Record, error)
}

// ObjectReader reads archived artifacts back by key
type ObjectReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// SourceLister enumerates capture devices
type SourceLister interface {
	ListSources() ([]string, error)
}

// Deps are the collaborators behind the service. Records, Objects and Sources may be nil.
type Deps struct {
	Recorders  session.RecorderFactory
	Permission audio.Permission
	Player     session.Player
	Submitter  submit.Submitter
	Records    RecordLister
	Objects    ObjectReader
	Sources    SourceLister
	Closers    []io.Closer
}

// WhistleService is the main service implementation
type WhistleService struct {
	cfg     *config.Config
	deps    Deps
	loop    *session.Loop
	session *session.Session
	flow    *flow.Flow

	// Loop-owned submission bookkeeping
	lastOutcome *submit.Outcome
	waiters     []chan submit.Outcome

	subsMu  sync.Mutex
	subs    map[int]chan Status
	nextSub int

	closeOnce sync.Once

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New wires the production collaborators from configuration
func New(cfg *config.Config) (*WhistleService, error) {
	backend := audio.NewBackend(cfg)

	objects, err := storage.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	records, err := store.Open(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open submission index: %w", err)
	}

	slog.Debug("Service collaborators ready",
		"backend", backend.GetType(),
		"minio", cfg.Storage.Minio.Enabled,
		"database", cfg.Storage.Database)

	return NewWithDeps(cfg, Deps{
		Recorders:  backend,
		Permission: audio.NewPermission(cfg),
		Player:     play.New(cfg.Player),
		Submitter:  submit.NewCloudSubmitter(objects, records),
		Records:    records,
		Objects:    objects,
		Sources:    backend,
		Closers:    []io.Closer{records},
	}), nil
}

// NewWithDeps builds a service around the given collaborators
func NewWithDeps(cfg *config.Config, deps Deps) *WhistleService {
	s := &WhistleService{
		cfg:  cfg,
		deps: deps,
		loop: session.NewLoop(),
		subs: make(map[int]chan Status),
	}

	s.session = session.New(session.Options{
		Loop:              s.loop,
		Recorders:         deps.Recorders,
		Settings:          audio.SettingsFromConfig(cfg),
		Permission:        deps.Permission,
		Player:            deps.Player,
		ArtifactPath:      cfg.ArtifactPath(),
		PermissionTimeout: cfg.Recorder.PermissionTimeout,
	})
	dispatcher := submit.NewDispatcher(deps.Submitter, s.loop, cfg.Submit.Timeout)
	s.flow = flow.New(s.session, dispatcher)

	s.loop.Do(func() {
		s.session.OnChange(func(session.Snapshot) { s.publish() })
		s.flow.OnChange(func(flow.View) { s.publish() })
		s.flow.OnResult(s.submissionResult)
	})

	return s
}

// run executes fn on the loop and tracks the user-facing error
func (s *WhistleService) run(op string, fn func() error) error {
	var err error
	if !s.loop.Do(func() {
		s.clearLastError()
		if err = fn(); err != nil {
			slog.Debug("Service operation rejected", "op", op, "error", err)
			s.setLastError(flow.Message(err))
			s.publish()
		}
	}) {
		return ErrClosed
	}
	return err
}

func (s *WhistleService) AddWhistle() error {
	return s.run("add whistle", s.flow.AddWhistle)
}

func (s *WhistleService) Next() error {
	return s.run("next", s.flow.Next)
}

func (s *WhistleService) Back() error {
	return s.run("back", s.flow.Back)
}

func (s *WhistleService) SelectGenre(index int) error {
	return s.run("select genre", func() error { return s.flow.SelectGenre(index) })
}

func (s *WhistleService) SubmitComments(text string) error {
	return s.run("submit comments", func() error { return s.flow.SubmitComments(text) })
}

func (s *WhistleService) Retry() error {
	return s.run("retry", s.flow.Retry)
}

func (s *WhistleService) Cancel() error {
	return s.run("cancel", s.flow.Cancel)
}

// AwaitPermission starts the permission handshake if needed and waits for its outcome
func (s *WhistleService) AwaitPermission(ctx context.Context) (session.PermissionState, error) {
	result := make(chan session.PermissionState, 1)
	if !s.loop.Do(func() {
		s.session.RequestPermission(func(p session.PermissionState) { result <- p })
	}) {
		return session.PermissionUnknown, ErrClosed
	}

	select {
	case p := <-result:
		if p == session.PermissionDenied {
			s.setLastError(session.Message(session.ErrPermissionDenied))
		}
		return p, nil
	case <-ctx.Done():
		return session.PermissionUnknown, ctx.Err()
	}
}

func (s *WhistleService) StartRecording() error {
	return s.run("start recording", func() error {
		if err := s.onRecordScreen(); err != nil {
			return err
		}
		return s.session.StartRecording()
	})
}

func (s *WhistleService) StopRecording(success bool) error {
	return s.run("stop recording", func() error {
		if err := s.onRecordScreen(); err != nil {
			return err
		}
		return s.session.StopRecording(success)
	})
}

// ToggleRecording is the single record button: start, or stop successfully
func (s *WhistleService) ToggleRecording() error {
	return s.run("toggle recording", func() error {
		if err := s.onRecordScreen(); err != nil {
			return err
		}
		return s.session.Toggle()
	})
}

func (s *WhistleService) Play() error {
	return s.run("play", func() error {
		if err := s.onRecordScreen(); err != nil {
			return err
		}
		return s.session.Play()
	})
}

func (s *WhistleService) onRecordScreen() error {
	if screen := s.flow.Screen(); screen != flow.ScreenRecordWhistle {
		return fmt.Errorf("%w: recording happens on %s, not %s", flow.ErrWrongScreen, flow.ScreenRecordWhistle, screen)
	}
	return nil
}

// Status returns the current state
func (s *WhistleService) Status() Status {
	var st Status
	if !s.loop.Do(func() { st = s.status() }) {
		return Status{LastError: ErrClosed.Error()}
	}
	return st
}

// status must run on the loop
func (s *WhistleService) status() Status {
	return Status{
		Session:   s.session.Snapshot(),
		Flow:      s.flow.View(),
		LastError: s.GetLastError(),
	}
}

// Subscribe streams a Status after every transition. Slow readers miss
// intermediate updates. The returned func unsubscribes.
func (s *WhistleService) Subscribe() (<-chan Status, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Status, 32)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	s.subs[id] = ch

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// publish runs on the loop
func (s *WhistleService) publish() {
	st := s.status()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- st:
		default:
			slog.Debug("Status subscriber lagging, update dropped", "subscriber", id)
		}
	}
}

// AwaitSubmission waits for the in-flight submission, or returns the last outcome
func (s *WhistleService) AwaitSubmission(ctx context.Context) (submit.Outcome, error) {
	result := make(chan submit.Outcome, 1)
	var err error
	if !s.loop.Do(func() {
		if s.flow.Submission() == flow.SubmitInProgress {
			s.waiters = append(s.waiters, result)
			return
		}
		if s.lastOutcome == nil {
			err = ErrNoSubmission
			return
		}
		result <- *s.lastOutcome
	}) {
		return submit.Outcome{}, ErrClosed
	}
	if err != nil {
		return submit.Outcome{}, err
	}

	select {
	case o := <-result:
		return o, nil
	case <-ctx.Done():
		return submit.Outcome{}, ctx.Err()
	}
}

// submissionResult runs on the loop
func (s *WhistleService) submissionResult(o submit.Outcome) {
	s.lastOutcome = &o
	if !o.OK {
		s.setLastError(fmt.Sprintf("There was a problem submitting your whistle: %s", o.Reason))
	} else {
		s.clearLastError()
	}

	for _, w := range s.waiters {
		w <- o
	}
	s.waiters = nil
	s.publish()
}

// ArtifactPath is the finished whistle, or empty when there is none
func (s *WhistleService) ArtifactPath() string {
	var path string
	s.loop.Do(func() { path = s.session.ArtifactPath() })
	return path
}

func (s *WhistleService) Genres() []string {
	return genre.All()
}

func (s *WhistleService) ListSubmissions(ctx context.Context, limit int) ([]store.Record, error) {
	if s.deps.Records == nil {
		return nil, fmt.Errorf("submission index: %w", ErrUnavailable)
	}
	return s.deps.Records.List(ctx, limit)
}

// SubmissionAudio looks up a submission and opens its archived whistle
func (s *WhistleService) SubmissionAudio(ctx context.Context, id string) (store.Record, io.ReadCloser, error) {
	if s.deps.Records == nil || s.deps.Objects == nil {
		return store.Record{}, nil, fmt.Errorf("submission archive: %w", ErrUnavailable)
	}

	rec, err := s.deps.Records.Get(ctx, id)
	if err != nil {
		return store.Record{}, nil, err
	}

	body, err := s.deps.Objects.Open(ctx, rec.ObjectKey)
	if err != nil {
		return rec, nil, fmt.Errorf("open %s: %w", rec.ObjectKey, err)
	}
	return rec, body, nil
}

func (s *WhistleService) ListSources() ([]string, error) {
	if s.deps.Sources == nil {
		return nil, fmt.Errorf("source listing: %w", ErrUnavailable)
	}
	return s.deps.Sources.ListSources()
}

// GetConfig returns the current configuration
func (s *WhistleService) GetConfig() *config.Config {
	return s.cfg
}

// Close stops any capture, drains the loop and releases storage
func (s *WhistleService) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.loop.Do(s.session.Close)
		s.loop.Close()

		s.subsMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subs = nil
		s.subsMu.Unlock()

		for _, c := range s.deps.Closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// GetLastError returns the last error message (thread-safe)
func (s *WhistleService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *WhistleService) setLastError(msg string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = msg

	slog.Error("Service error occurred", "error_message", msg)
}

// clearLastError clears the last error message (thread-safe)
func (s *WhistleService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
