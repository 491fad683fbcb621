package flow

import (
	"errors"
	"testing"

	"github.com/audiolibrelab/whistle/internal/genre"
	"github.com/audiolibrelab/whistle/internal/session"
	"github.com/audiolibrelab/whistle/internal/submit"
)

type fakeRecording struct {
	state  session.RecorderState
	path   string
	resets int
}

func (r *fakeRecording) State() session.RecorderState { return r.state }

func (r *fakeRecording) ArtifactPath() string {
	if r.state != session.StateStoppedOk {
		return ""
	}
	return r.path
}

func (r *fakeRecording) Reset() {
	r.resets++
	r.state = session.StateIdle
}

// fakeDispatcher holds callbacks so tests decide when a submission completes
type fakeDispatcher struct {
	requests []submit.Request
	pending  []func(submit.Outcome)
}

func (d *fakeDispatcher) Dispatch(req submit.Request, done func(submit.Outcome)) {
	d.requests = append(d.requests, req)
	d.pending = append(d.pending, done)
}

func (d *fakeDispatcher) complete(o submit.Outcome) {
	done := d.pending[len(d.pending)-1]
	d.pending = d.pending[:len(d.pending)-1]
	done(o)
}

func newFlow() (*Flow, *fakeRecording, *fakeDispatcher) {
	rec := &fakeRecording{state: session.StateIdle, path: "/data/whistle.m4a"}
	d := &fakeDispatcher{}
	return New(rec, d), rec, d
}

// toComments drives a flow to the AddComments screen with genre index i
func toComments(t *testing.T, f *Flow, rec *fakeRecording, i int) {
	t.Helper()
	if err := f.AddWhistle(); err != nil {
		t.Fatalf("AddWhistle failed: %v", err)
	}
	rec.state = session.StateStoppedOk
	if err := f.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := f.SelectGenre(i); err != nil {
		t.Fatalf("SelectGenre failed: %v", err)
	}
}

func TestEndToEnd_JazzBlankComments(t *testing.T) {
	f, rec, d := newFlow()

	var views []View
	f.OnChange(func(v View) { views = append(views, v) })

	toComments(t, f, rec, 4)
	if f.Screen() != ScreenAddComments {
		t.Fatalf("Expected AddComments, got %s", f.Screen())
	}

	if err := f.SubmitComments(Placeholder); err != nil {
		t.Fatalf("SubmitComments failed: %v", err)
	}
	if f.Screen() != ScreenSubmit {
		t.Fatalf("Expected Submit, got %s", f.Screen())
	}
	if f.CanGoBack() {
		t.Error("Expected no back affordance on Submit")
	}
	if err := f.Back(); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("Expected back rejected while submitting, got: %v", err)
	}

	req := d.requests[0]
	if req.Genre() != "Jazz" || req.Comments() != "" || req.ArtifactPath() != "/data/whistle.m4a" {
		t.Errorf("Unexpected request: genre=%q comments=%q artifact=%q", req.Genre(), req.Comments(), req.ArtifactPath())
	}

	var result submit.Outcome
	f.OnResult(func(o submit.Outcome) { result = o })
	d.complete(submit.Ok())

	if !result.OK {
		t.Error("Expected Ok outcome reported")
	}
	if f.Screen() != ScreenHome {
		t.Errorf("Expected Home after Ok, got %s", f.Screen())
	}
	if f.View().Status != "Done!" {
		t.Errorf("Expected Done! status, got %q", f.View().Status)
	}
	if rec.state != session.StateIdle {
		t.Errorf("Expected session reset, got %s", rec.state)
	}

	for _, v := range views {
		if v.Screen == ScreenSubmit && v.CanGoBack {
			t.Error("Back was offered on the Submit screen")
		}
	}
}

func TestSelectGenre_RequestMatchesCatalog(t *testing.T) {
	for _, i := range []int{0, 3} {
		f, rec, d := newFlow()
		toComments(t, f, rec, i)
		f.SubmitComments("heard it on the radio")

		want, _ := genre.Lookup(i)
		if got := d.requests[0].Genre(); got != want {
			t.Errorf("Index %d: expected genre %q, got %q", i, want, got)
		}
		if got := d.requests[0].Comments(); got != "heard it on the radio" {
			t.Errorf("Expected comments verbatim, got %q", got)
		}
	}
}

func TestSelectGenre_FallsBackToUnknown(t *testing.T) {
	for _, i := range []int{-1, 12, 99} {
		f, rec, _ := newFlow()
		toComments(t, f, rec, i)

		if f.Draft().Genre != "Unknown" {
			t.Errorf("Index %d: expected Unknown, got %q", i, f.Draft().Genre)
		}
	}
}

func TestEffectiveComments(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{Placeholder, ""},
		{"", ""},
		{"  ", "  "},
		{Placeholder + " ", Placeholder + " "},
		{"sounds like the Archers theme", "sounds like the Archers theme"},
	}

	for _, test := range tests {
		if got := EffectiveComments(test.in); got != test.want {
			t.Errorf("EffectiveComments(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestNext_RequiresFinishedRecording(t *testing.T) {
	f, rec, _ := newFlow()
	f.AddWhistle()

	for _, state := range []session.RecorderState{session.StateIdle, session.StateRecording, session.StateStoppedFailed} {
		rec.state = state
		if err := f.Next(); !errors.Is(err, ErrNotRecorded) {
			t.Errorf("State %s: expected ErrNotRecorded, got: %v", state, err)
		}
	}
	if f.Screen() != ScreenRecordWhistle {
		t.Errorf("Expected to stay on RecordWhistle, got %s", f.Screen())
	}
}

func TestBack(t *testing.T) {
	f, rec, _ := newFlow()

	if err := f.Back(); !errors.Is(err, ErrAtRoot) {
		t.Errorf("Expected ErrAtRoot at Home, got: %v", err)
	}

	toComments(t, f, rec, 2)

	if err := f.Back(); err != nil {
		t.Fatalf("Back from AddComments failed: %v", err)
	}
	if f.Screen() != ScreenSelectGenre || f.Draft().Genre != "" {
		t.Errorf("Expected SelectGenre with genre cleared, got %s %q", f.Screen(), f.Draft().Genre)
	}

	f.Back()
	if f.Screen() != ScreenRecordWhistle {
		t.Errorf("Expected RecordWhistle, got %s", f.Screen())
	}

	resets := rec.resets
	f.Back()
	if f.Screen() != ScreenHome {
		t.Errorf("Expected Home, got %s", f.Screen())
	}
	if rec.resets != resets+1 {
		t.Error("Expected leaving the recording screen to reset the session")
	}
}

func TestSubmissionFailed_RetryThenOk(t *testing.T) {
	f, rec, d := newFlow()
	toComments(t, f, rec, 5)
	f.SubmitComments("")

	d.complete(submit.Failed("network unreachable"))

	if f.Screen() != ScreenSubmit {
		t.Fatalf("Expected to stay on Submit, got %s", f.Screen())
	}
	v := f.View()
	if v.Submission != SubmitFailed || v.Reason != "network unreachable" {
		t.Errorf("Expected failed view with reason, got %+v", v)
	}
	if err := f.Back(); !errors.Is(err, ErrBackDisabled) {
		t.Errorf("Expected ErrBackDisabled, got: %v", err)
	}

	if err := f.Retry(); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if len(d.requests) != 2 || d.requests[1] != d.requests[0] {
		t.Errorf("Expected the same request re-dispatched, got %v", d.requests)
	}
	if err := f.Retry(); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("Expected retry rejected while in flight, got: %v", err)
	}

	d.complete(submit.Ok())
	if f.Screen() != ScreenHome {
		t.Errorf("Expected Home after retry succeeded, got %s", f.Screen())
	}
}

func TestSubmissionFailed_Cancel(t *testing.T) {
	f, rec, d := newFlow()
	toComments(t, f, rec, 1)
	f.SubmitComments("")

	if err := f.Cancel(); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("Expected cancel rejected while in flight, got: %v", err)
	}

	d.complete(submit.Failed("boom"))
	if err := f.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if f.Screen() != ScreenHome {
		t.Errorf("Expected Home after cancel, got %s", f.Screen())
	}
	if f.Draft() != (Draft{}) {
		t.Errorf("Expected draft cleared, got %+v", f.Draft())
	}
	if f.Submission() != SubmitNone {
		t.Errorf("Expected no submission status, got %s", f.Submission())
	}
}

func TestRetry_NothingToRetry(t *testing.T) {
	f, rec, d := newFlow()
	toComments(t, f, rec, 1)
	f.SubmitComments("")
	d.complete(submit.Failed("x"))
	f.Retry()
	d.complete(submit.Ok())

	if err := f.Retry(); !errors.Is(err, ErrWrongScreen) {
		t.Errorf("Expected ErrWrongScreen at Home, got: %v", err)
	}
}

func TestStaleOutcomeIgnored(t *testing.T) {
	f, rec, d := newFlow()
	toComments(t, f, rec, 1)
	f.SubmitComments("")

	stale := d.pending[0]
	d.complete(submit.Failed("first"))
	f.Retry()

	// A late duplicate of the first attempt must not end the retry
	stale(submit.Ok())
	if f.Submission() != SubmitInProgress {
		t.Errorf("Expected retry still in flight, got %s", f.Submission())
	}
}

func TestWrongScreen(t *testing.T) {
	f, _, _ := newFlow()

	checks := map[string]error{
		"Next":           f.Next(),
		"SelectGenre":    f.SelectGenre(1),
		"SubmitComments": f.SubmitComments("x"),
		"Retry":          f.Retry(),
		"Cancel":         f.Cancel(),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrWrongScreen) {
			t.Errorf("%s at Home: expected ErrWrongScreen, got: %v", name, err)
		}
	}
}

func TestScreenTitles(t *testing.T) {
	if ScreenHome.Title() != "What's the Whistle?" {
		t.Errorf("Unexpected home title %q", ScreenHome.Title())
	}
	if ScreenSubmit.Title() != "You're all set" {
		t.Errorf("Unexpected submit title %q", ScreenSubmit.Title())
	}
}
