package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/whistle/internal/flow"
	"github.com/audiolibrelab/whistle/internal/genre"
	"github.com/audiolibrelab/whistle/internal/service"
	"github.com/audiolibrelab/whistle/internal/session"
)

var (
	title  = color.New(color.FgCyan, color.Bold)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Walk through recording and submitting a whistle",
	Long: `Interactive flow: record a whistle, listen back, choose a genre,
add comments and submit. Type 'b' at any prompt to go back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		defer svc.Close()

		w := &wizard{svc: svc, in: bufio.NewReader(os.Stdin), out: os.Stdout}
		return w.run(cmd.Context())
	},
}

// wizard renders one screen at a time and feeds answers to the service
type wizard struct {
	svc service.Service
	in  *bufio.Reader
	out io.Writer
}

func (w *wizard) run(ctx context.Context) error {
	for {
		st := w.svc.Status()
		title.Fprintf(w.out, "\n%s\n", st.Flow.Title)

		var (
			quit bool
			err  error
		)
		switch st.Flow.Screen {
		case flow.ScreenHome:
			quit, err = w.home(st)
		case flow.ScreenRecordWhistle:
			quit, err = w.record(ctx, st)
		case flow.ScreenSelectGenre:
			quit, err = w.selectGenre()
		case flow.ScreenAddComments:
			quit, err = w.comments()
		case flow.ScreenSubmit:
			quit, err = w.submit(ctx)
		}
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		if msg := w.svc.GetLastError(); msg != "" {
			red.Fprintln(w.out, msg)
		}
	}
}

func (w *wizard) home(st service.Status) (bool, error) {
	if st.Flow.Status != "" {
		green.Fprintln(w.out, st.Flow.Status)
	}
	answer, err := w.choice("Press Enter to add a whistle, q to quit: ")
	if err != nil || answer == "q" {
		return true, err
	}
	w.svc.AddWhistle()
	return false, nil
}

func (w *wizard) record(ctx context.Context, st service.Status) (bool, error) {
	if st.Session.Permission == session.PermissionUnknown {
		yellow.Fprintln(w.out, "Requesting microphone access...")
		if _, err := w.svc.AwaitPermission(ctx); err != nil {
			return true, err
		}
		st = w.svc.Status()
	}

	switch st.Session.Recorder {
	case session.StateRecording:
		yellow.Fprintln(w.out, "Recording...")
	case session.StateStoppedOk:
		green.Fprintln(w.out, "Whistle recorded")
	}

	options := "[r]ecord, [b]ack, [q]uit"
	switch {
	case st.Session.Recorder == session.StateRecording:
		options = "[s]top, [x] abandon, [q]uit"
	case st.Session.CanPlay:
		options = "[r]e-record, [p]lay, [n]ext, [b]ack, [q]uit"
	}

	answer, err := w.choice(options + ": ")
	if err != nil {
		return true, err
	}
	switch answer {
	case "r", "s":
		w.svc.ToggleRecording()
	case "x":
		w.svc.StopRecording(false)
	case "p":
		w.svc.Play()
	case "n":
		w.svc.Next()
	case "b":
		w.svc.Back()
	case "q":
		if st.Session.Recorder == session.StateRecording {
			w.svc.StopRecording(false)
		}
		return true, nil
	}
	return false, nil
}

func (w *wizard) selectGenre() (bool, error) {
	for i, g := range w.svc.Genres() {
		fmt.Fprintf(w.out, "  %2d. %s\n", i, g)
	}
	answer, err := w.choice(fmt.Sprintf("Genre number 0-%d or name (b to go back): ", genre.Count()-1))
	if err != nil {
		return true, err
	}
	if answer == "b" {
		w.svc.Back()
		return false, nil
	}

	// An unreadable choice falls back to the first genre
	w.svc.SelectGenre(genre.Parse(answer))
	return false, nil
}

func (w *wizard) comments() (bool, error) {
	fmt.Fprintf(w.out, "%s\n", flow.Placeholder)
	answer, err := w.prompt("> ")
	if err != nil {
		return true, err
	}
	if answer == "b" {
		w.svc.Back()
		return false, nil
	}
	w.svc.SubmitComments(answer)
	return false, nil
}

func (w *wizard) submit(ctx context.Context) (bool, error) {
	yellow.Fprintln(w.out, "Submitting...")
	outcome, err := w.svc.AwaitSubmission(ctx)
	if err != nil {
		return true, err
	}
	if outcome.OK {
		return false, nil
	}

	red.Fprintf(w.out, "Submission failed: %s\n", outcome.Reason)
	answer, err := w.choice("[r]etry or [c]ancel: ")
	if err != nil {
		return true, err
	}
	if answer == "c" {
		w.svc.Cancel()
	} else {
		w.svc.Retry()
	}
	return false, nil
}

func (w *wizard) prompt(label string) (string, error) {
	fmt.Fprint(w.out, label)
	line, err := w.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "q", nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// choice reads a menu answer, ignoring case and surrounding space
func (w *wizard) choice(label string) (string, error) {
	answer, err := w.prompt(label)
	return strings.ToLower(strings.TrimSpace(answer)), err
}
