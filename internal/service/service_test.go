package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/whistle/internal/audio"
	"github.com/audiolibrelab/whistle/internal/config"
	"github.com/audiolibrelab/whistle/internal/flow"
	"github.com/audiolibrelab/whistle/internal/session"
	"github.com/audiolibrelab/whistle/internal/storage"
	"github.com/audiolibrelab/whistle/internal/store"
	"github.com/audiolibrelab/whistle/internal/submit"
)

type stubRecorder struct {
	path     string
	finished chan error
}

func (r *stubRecorder) Path() string           { return r.path }
func (r *stubRecorder) Stop() error            { return nil }
func (r *stubRecorder) Finished() <-chan error { return r.finished }

type stubFactory struct{}

func (stubFactory) NewRecorder(path string, settings audio.Settings) (audio.Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte("whistle"), 0644); err != nil {
		return nil, err
	}
	return &stubRecorder{path: path, finished: make(chan error, 1)}, nil
}

type stubPlayer struct{}

func (stubPlayer) Play(path string) error { return nil }

// gatedSubmitter returns the queued results in order, one per call
type gatedSubmitter struct {
	mu       sync.Mutex
	results  []error
	requests []submit.Request
}

func (g *gatedSubmitter) Submit(ctx context.Context, req submit.Request) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if len(g.results) == 0 {
		return nil
	}
	err := g.results[0]
	g.results = g.results[1:]
	return err
}

type stubRecords struct {
	records []store.Record
}

func (s stubRecords) List(ctx context.Context, limit int) ([]store.Record, error) {
	return s.records, nil
}

func (s stubRecords) Get(ctx context.Context, id string) (store.Record, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Record{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

type stubObjects map[string]string

func (o stubObjects) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	body, ok := o[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.ArtifactDir = t.TempDir()
	cfg.Submit.Timeout = 5 * time.Second
	return cfg
}

func newTestService(t *testing.T, perm audio.Permission, sub submit.Submitter) *WhistleService {
	t.Helper()
	svc := NewWithDeps(testConfig(t), Deps{
		Recorders:  stubFactory{},
		Permission: perm,
		Player:     stubPlayer{},
		Submitter:  sub,
	})
	t.Cleanup(func() { svc.Close() })
	return svc
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recordWhistle drives a service from Home to SelectGenre
func recordWhistle(t *testing.T, svc *WhistleService) {
	t.Helper()
	if err := svc.AddWhistle(); err != nil {
		t.Fatalf("AddWhistle failed: %v", err)
	}
	if p, err := svc.AwaitPermission(ctxTimeout(t)); err != nil || p != session.PermissionGranted {
		t.Fatalf("Expected permission granted, got %s %v", p, err)
	}
	if err := svc.ToggleRecording(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.ToggleRecording(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := svc.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
}

func TestEndToEnd_SubmitJazz(t *testing.T) {
	sub := &gatedSubmitter{}
	svc := newTestService(t, audio.StaticPermission(true), sub)

	updates, unsubscribe := svc.Subscribe()
	sawSubmit := false
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for u := range updates {
			if u.Flow.Screen == flow.ScreenSubmit {
				sawSubmit = true
				if u.Flow.CanGoBack {
					t.Error("Back offered on Submit")
				}
			}
		}
	}()

	recordWhistle(t, svc)
	if err := svc.SelectGenre(4); err != nil {
		t.Fatalf("SelectGenre failed: %v", err)
	}
	if err := svc.SubmitComments(flow.Placeholder); err != nil {
		t.Fatalf("SubmitComments failed: %v", err)
	}

	outcome, err := svc.AwaitSubmission(ctxTimeout(t))
	if err != nil {
		t.Fatalf("AwaitSubmission failed: %v", err)
	}
	if !outcome.OK {
		t.Fatalf("Expected Ok, got %+v", outcome)
	}

	st := svc.Status()
	if st.Flow.Screen != flow.ScreenHome {
		t.Errorf("Expected Home, got %s", st.Flow.Screen)
	}
	if st.Session.Recorder != session.StateIdle {
		t.Errorf("Expected session reset, got %s", st.Session.Recorder)
	}

	req := sub.requests[0]
	if req.Genre() != "Jazz" || req.Comments() != "" {
		t.Errorf("Unexpected request genre=%q comments=%q", req.Genre(), req.Comments())
	}

	unsubscribe()
	<-drained
	if !sawSubmit {
		t.Error("Expected a status update on the Submit screen")
	}
}

func TestSubmissionFailure_Retry(t *testing.T) {
	sub := &gatedSubmitter{results: []error{errors.New("bucket unreachable")}}
	svc := newTestService(t, audio.StaticPermission(true), sub)

	recordWhistle(t, svc)
	svc.SelectGenre(0)
	svc.SubmitComments("")

	outcome, err := svc.AwaitSubmission(ctxTimeout(t))
	if err != nil {
		t.Fatalf("AwaitSubmission failed: %v", err)
	}
	if outcome.OK || !strings.Contains(outcome.Reason, "bucket unreachable") {
		t.Fatalf("Expected failure reason, got %+v", outcome)
	}
	if st := svc.Status(); st.Flow.Screen != flow.ScreenSubmit || st.LastError == "" {
		t.Errorf("Expected to stay on Submit with an error, got %+v", st)
	}
	if err := svc.Back(); !errors.Is(err, flow.ErrBackDisabled) {
		t.Errorf("Expected ErrBackDisabled, got: %v", err)
	}

	if err := svc.Retry(); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	outcome, err = svc.AwaitSubmission(ctxTimeout(t))
	if err != nil || !outcome.OK {
		t.Fatalf("Expected retry to succeed, got %+v %v", outcome, err)
	}
	if len(sub.requests) != 2 || sub.requests[0] != sub.requests[1] {
		t.Errorf("Expected the same request twice, got %v", sub.requests)
	}
}

func TestRecording_RequiresRecordScreen(t *testing.T) {
	svc := newTestService(t, audio.StaticPermission(true), &gatedSubmitter{})

	if err := svc.StartRecording(); !errors.Is(err, flow.ErrWrongScreen) {
		t.Errorf("Expected ErrWrongScreen on Home, got: %v", err)
	}
	if svc.GetLastError() == "" {
		t.Error("Expected last error to be tracked")
	}

	svc.AddWhistle()
	if svc.GetLastError() != "" {
		t.Errorf("Expected last error cleared, got %q", svc.GetLastError())
	}
}

func TestPermissionDenied(t *testing.T) {
	svc := newTestService(t, audio.StaticPermission(false), &gatedSubmitter{})
	svc.AddWhistle()

	p, err := svc.AwaitPermission(ctxTimeout(t))
	if err != nil || p != session.PermissionDenied {
		t.Fatalf("Expected denied, got %s %v", p, err)
	}

	if err := svc.ToggleRecording(); !errors.Is(err, session.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got: %v", err)
	}
	want := "Recording failed: please ensure the app has access to your microphone."
	if svc.GetLastError() != want {
		t.Errorf("Expected %q, got %q", want, svc.GetLastError())
	}
	if err := svc.Next(); !errors.Is(err, flow.ErrNotRecorded) {
		t.Errorf("Expected ErrNotRecorded, got: %v", err)
	}
}

func TestAwaitSubmission_NoneYet(t *testing.T) {
	svc := newTestService(t, audio.StaticPermission(true), &gatedSubmitter{})

	if _, err := svc.AwaitSubmission(ctxTimeout(t)); !errors.Is(err, ErrNoSubmission) {
		t.Errorf("Expected ErrNoSubmission, got: %v", err)
	}
}

func TestListSubmissions(t *testing.T) {
	svc := newTestService(t, audio.StaticPermission(true), &gatedSubmitter{})
	if _, err := svc.ListSubmissions(context.Background(), 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable without an index, got: %v", err)
	}

	withIndex := NewWithDeps(testConfig(t), Deps{
		Recorders:  stubFactory{},
		Permission: audio.StaticPermission(true),
		Player:     stubPlayer{},
		Submitter:  &gatedSubmitter{},
		Records:    stubRecords{records: []store.Record{{ID: "1", Genre: "Soul"}}},
	})
	defer withIndex.Close()

	records, err := withIndex.ListSubmissions(context.Background(), 10)
	if err != nil || len(records) != 1 || records[0].Genre != "Soul" {
		t.Errorf("Expected one Soul record, got %v %v", records, err)
	}
}

func TestSubmissionAudio(t *testing.T) {
	svc := newTestService(t, audio.StaticPermission(true), &gatedSubmitter{})
	if _, _, err := svc.SubmissionAudio(context.Background(), "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable without an archive, got: %v", err)
	}

	records := stubRecords{records: []store.Record{
		{ID: "1", Genre: "Soul", ObjectKey: "whistles/1.m4a"},
		{ID: "2", Genre: "Rock", ObjectKey: "whistles/2.m4a"},
	}}
	archived := NewWithDeps(testConfig(t), Deps{
		Recorders:  stubFactory{},
		Permission: audio.StaticPermission(true),
		Player:     stubPlayer{},
		Submitter:  &gatedSubmitter{},
		Records:    records,
		Objects:    stubObjects{"whistles/1.m4a": "whistle"},
	})
	defer archived.Close()

	rec, body, err := archived.SubmissionAudio(context.Background(), "1")
	if err != nil {
		t.Fatalf("SubmissionAudio failed: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if rec.Genre != "Soul" || string(data) != "whistle" {
		t.Errorf("Unexpected record %+v body %q", rec, data)
	}

	if _, _, err := archived.SubmissionAudio(context.Background(), "9"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
	if _, _, err := archived.SubmissionAudio(context.Background(), "2"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got: %v", err)
	}
}

func TestGenres(t *testing.T) {
	svc := newTestService(t, audio.StaticPermission(true), &gatedSubmitter{})

	genres := svc.Genres()
	if len(genres) != 12 || genres[0] != "Unknown" || genres[11] != "Soul" {
		t.Errorf("Unexpected catalog %v", genres)
	}
}

func TestClose(t *testing.T) {
	svc := NewWithDeps(testConfig(t), Deps{
		Recorders:  stubFactory{},
		Permission: audio.StaticPermission(true),
		Player:     stubPlayer{},
		Submitter:  &gatedSubmitter{},
	})
	updates, _ := svc.Subscribe()

	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	if _, ok := <-updates; ok {
		t.Error("Expected subscriber channel closed")
	}
	if err := svc.AddWhistle(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got: %v", err)
	}
}
