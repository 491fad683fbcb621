package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/whistle/internal/service"
	"github.com/audiolibrelab/whistle/internal/session"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a whistle without submitting it",
	Long: `Record a single whistle from the microphone. Press Enter to finish,
or Ctrl+C to abandon the take. The result replaces any previous whistle.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		defer svc.Close()

		if err := svc.AddWhistle(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Recorder.PermissionTimeout*2)
		defer cancel()
		p, err := svc.AwaitPermission(ctx)
		if err != nil {
			return fmt.Errorf("permission request failed: %w", err)
		}
		if p != session.PermissionGranted {
			return fmt.Errorf("%s", session.Message(session.ErrPermissionDenied))
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		enter := make(chan struct{})
		go func() {
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(enter)
		}()

		snap, err := captureTake(cmd.Context(), svc, enter, sigChan)
		if err != nil {
			return err
		}
		return reportTake(snap)
	},
}

// captureTake starts the recorder and waits for enter, an interrupt or
// the recorder ending on its own. Updates are subscribed before the
// start so an immediate end is never missed.
func captureTake(ctx context.Context, svc service.Service, enter <-chan struct{}, interrupt <-chan os.Signal) (session.Snapshot, error) {
	updates, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	if err := svc.StartRecording(); err != nil {
		return session.Snapshot{}, fmt.Errorf("%s: %w", svc.GetLastError(), err)
	}
	slog.Info("Recording whistle - press Enter to stop, Ctrl+C to abandon")

	success := true
wait:
	for {
		select {
		case <-ctx.Done():
			svc.StopRecording(false)
			return session.Snapshot{}, ctx.Err()
		case <-enter:
			break wait
		case <-interrupt:
			success = false
			break wait
		case st, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if st.Session.Recorder == session.StateStoppedOk || st.Session.Recorder == session.StateStoppedFailed {
				return st.Session, nil
			}
		}
	}

	slog.Info("Stopping recording...")
	if err := svc.StopRecording(success); err != nil && success {
		return session.Snapshot{}, fmt.Errorf("%s: %w", svc.GetLastError(), err)
	}
	return svc.Status().Session, nil
}

func reportTake(snap session.Snapshot) error {
	switch snap.Recorder {
	case session.StateStoppedOk:
		green.Printf("Whistle saved to %s\n", snap.ArtifactPath)
		return nil
	case session.StateStoppedFailed:
		if snap.LastError != "" {
			return fmt.Errorf("%s", snap.LastError)
		}
		return fmt.Errorf("recording abandoned")
	}
	return fmt.Errorf("recording ended in state %s", snap.Recorder)
}
