// Package flow sequences the whistle screens and threads the draft submission
// through them: Home, RecordWhistle, SelectGenre, AddComments, Submit, Home.
//
// Like the session, a Flow is owned by one loop goroutine and every method must
// be called there.
package flow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/whistle/internal/genre"
	"github.com/audiolibrelab/whistle/internal/session"
	"github.com/audiolibrelab/whistle/internal/submit"
)

type Screen string

const (
	ScreenHome          Screen = "HOME"
	ScreenRecordWhistle Screen = "RECORD_WHISTLE"
	ScreenSelectGenre   Screen = "SELECT_GENRE"
	ScreenAddComments   Screen = "ADD_COMMENTS"
	ScreenSubmit        Screen = "SUBMIT"
)

// Title is the heading shown for the screen
func (s Screen) Title() string {
	switch s {
	case ScreenHome:
		return "What's the Whistle?"
	case ScreenRecordWhistle:
		return "Record your whistle"
	case ScreenSelectGenre:
		return "Select genre"
	case ScreenAddComments:
		return "Comments"
	case ScreenSubmit:
		return "You're all set"
	}
	return string(s)
}

// Placeholder is the prompt pre-filled in the comments field
const Placeholder = "Do you have any additional comments that might help identify your tune?"

var (
	ErrBackDisabled       = errors.New("back is disabled once a submission has started")
	ErrAtRoot             = errors.New("already at the home screen")
	ErrWrongScreen        = errors.New("action not available on this screen")
	ErrNotRecorded        = errors.New("no successful recording yet")
	ErrSubmissionInFlight = errors.New("a submission is in progress")
	ErrNothingToRetry     = errors.New("no failed submission to retry")
)

// SubmitStatus tracks the request on the Submit screen
type SubmitStatus string

const (
	SubmitNone       SubmitStatus = ""
	SubmitInProgress SubmitStatus = "SUBMITTING"
	SubmitFailed     SubmitStatus = "FAILED"
	SubmitDone       SubmitStatus = "DONE"
)

// Recording is the part of the session the flow drives
type Recording interface {
	State() session.RecorderState
	ArtifactPath() string
	Reset()
}

type Dispatcher interface {
	Dispatch(req submit.Request, done func(submit.Outcome))
}

// Draft accumulates what each screen contributes
type Draft struct {
	ArtifactPath string `json:"artifact_path,omitempty"`
	Genre        string `json:"genre,omitempty"`
	Comments     string `json:"comments"`
}

// View is an immutable copy of the flow for observers
type View struct {
	Screen     Screen       `json:"screen"`
	Title      string       `json:"title"`
	Stack      []Screen     `json:"stack"`
	CanGoBack  bool         `json:"can_go_back"`
	Draft      Draft        `json:"draft"`
	Submission SubmitStatus `json:"submission,omitempty"`
	Status     string       `json:"status,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

type Flow struct {
	rec        Recording
	dispatcher Dispatcher

	stack   []Screen
	draft   Draft
	request submit.Request
	status  SubmitStatus
	reason  string
	attempt int

	onChange func(View)
	onResult func(submit.Outcome)
}

func New(rec Recording, dispatcher Dispatcher) *Flow {
	return &Flow{
		rec:        rec,
		dispatcher: dispatcher,
		stack:      []Screen{ScreenHome},
	}
}

// OnChange registers the observer called after every transition
func (f *Flow) OnChange(fn func(View)) {
	f.onChange = fn
}

// OnResult registers a callback for every submission outcome
func (f *Flow) OnResult(fn func(submit.Outcome)) {
	f.onResult = fn
}

func (f *Flow) Screen() Screen {
	return f.stack[len(f.stack)-1]
}

// CanGoBack is false at Home and on Submit
func (f *Flow) CanGoBack() bool {
	return len(f.stack) > 1 && f.Screen() != ScreenSubmit
}

func (f *Flow) Draft() Draft {
	return f.draft
}

func (f *Flow) Submission() SubmitStatus {
	return f.status
}

func (f *Flow) View() View {
	v := View{
		Screen:     f.Screen(),
		Title:      f.Screen().Title(),
		Stack:      append([]Screen(nil), f.stack...),
		CanGoBack:  f.CanGoBack(),
		Draft:      f.draft,
		Submission: f.status,
		Reason:     f.reason,
	}
	switch f.status {
	case SubmitInProgress:
		v.Status = "Submitting..."
	case SubmitFailed:
		v.Status = "Submission failed"
	case SubmitDone:
		v.Status = "Done!"
	}
	return v
}

// AddWhistle leaves Home for a fresh recording screen
func (f *Flow) AddWhistle() error {
	if err := f.expect(ScreenHome); err != nil {
		return err
	}
	f.rec.Reset()
	f.draft = Draft{}
	f.status, f.reason = SubmitNone, ""
	f.push(ScreenRecordWhistle)
	return nil
}

// Next advances once the session holds a finished take
func (f *Flow) Next() error {
	if err := f.expect(ScreenRecordWhistle); err != nil {
		return err
	}
	if f.rec.State() != session.StateStoppedOk {
		return fmt.Errorf("%w: recorder is %s", ErrNotRecorded, f.rec.State())
	}
	f.draft.ArtifactPath = f.rec.ArtifactPath()
	f.push(ScreenSelectGenre)
	return nil
}

// SelectGenre records the catalog entry at index, falling back to index 0
func (f *Flow) SelectGenre(index int) error {
	if err := f.expect(ScreenSelectGenre); err != nil {
		return err
	}
	if _, ok := genre.Lookup(index); !ok {
		slog.Warn("Genre selection out of range, using default", "index", index, "genre", genre.At(0))
	}
	f.draft.Genre = genre.At(index)
	f.push(ScreenAddComments)
	return nil
}

// SubmitComments builds the request and starts the submission
func (f *Flow) SubmitComments(text string) error {
	if err := f.expect(ScreenAddComments); err != nil {
		return err
	}

	comments := EffectiveComments(text)
	req, err := submit.NewRequest(f.draft.Genre, comments, f.draft.ArtifactPath)
	if err != nil {
		return err
	}

	f.draft.Comments = comments
	f.request = req
	f.push(ScreenSubmit)
	f.dispatch()
	return nil
}

// Retry re-sends the same request after a failure
func (f *Flow) Retry() error {
	if err := f.expect(ScreenSubmit); err != nil {
		return err
	}
	if f.status != SubmitFailed {
		return ErrNothingToRetry
	}
	f.dispatch()
	return nil
}

// Cancel abandons a failed submission and returns Home
func (f *Flow) Cancel() error {
	if err := f.expect(ScreenSubmit); err != nil {
		return err
	}
	slog.Info("Submission abandoned", "genre", f.request.Genre())
	f.home(SubmitNone)
	return nil
}

// Back pops one screen
func (f *Flow) Back() error {
	if f.status == SubmitInProgress {
		return ErrSubmissionInFlight
	}
	switch {
	case f.Screen() == ScreenSubmit:
		return ErrBackDisabled
	case len(f.stack) == 1:
		return ErrAtRoot
	}

	switch f.pop() {
	case ScreenRecordWhistle:
		// Leaving the recording screen ends its session
		f.rec.Reset()
	case ScreenSelectGenre:
		f.draft.ArtifactPath = ""
	case ScreenAddComments:
		f.draft.Genre = ""
	}
	f.notify()
	return nil
}

// EffectiveComments drops the untouched placeholder prompt
func EffectiveComments(text string) string {
	if text == Placeholder {
		return ""
	}
	return text
}

func (f *Flow) dispatch() {
	f.attempt++
	attempt := f.attempt
	f.status, f.reason = SubmitInProgress, ""
	f.notify()

	f.dispatcher.Dispatch(f.request, func(o submit.Outcome) {
		f.submissionDone(attempt, o)
	})
}

func (f *Flow) submissionDone(attempt int, o submit.Outcome) {
	if attempt != f.attempt || f.status != SubmitInProgress {
		return
	}

	if o.OK {
		slog.Info("Whistle submitted", "genre", f.request.Genre())
		f.home(SubmitDone)
	} else {
		f.status, f.reason = SubmitFailed, o.Reason
		f.notify()
	}

	if f.onResult != nil {
		f.onResult(o)
	}
}

// home unwinds to the root, discarding the draft and the recording
func (f *Flow) home(status SubmitStatus) {
	f.stack = []Screen{ScreenHome}
	f.draft = Draft{}
	f.request = submit.Request{}
	f.status, f.reason = status, ""
	f.rec.Reset()
	f.notify()
}

func (f *Flow) expect(screen Screen) error {
	if f.status == SubmitInProgress {
		return ErrSubmissionInFlight
	}
	if f.Screen() != screen {
		return fmt.Errorf("%w: on %s, need %s", ErrWrongScreen, f.Screen(), screen)
	}
	return nil
}

func (f *Flow) push(screen Screen) {
	f.stack = append(f.stack, screen)
	slog.Debug("Screen pushed", "screen", screen)
	f.notify()
}

func (f *Flow) pop() Screen {
	top := f.Screen()
	f.stack = f.stack[:len(f.stack)-1]
	slog.Debug("Screen popped", "screen", top)
	return top
}

func (f *Flow) notify() {
	if f.onChange != nil {
		f.onChange(f.View())
	}
}

// Message maps a flow error to the text shown to the user
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotRecorded):
		return "Record a whistle before moving on"
	case errors.Is(err, ErrBackDisabled):
		return "Your whistle is being submitted"
	case errors.Is(err, ErrSubmissionInFlight):
		return "Submitting..."
	case errors.Is(err, submit.ErrSubmissionFailed):
		return "There was a problem submitting your whistle; please try again"
	}
	return session.Message(err)
}
