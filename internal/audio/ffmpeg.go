package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/whistle/internal/config"
)

// FFmpegBackend captures from the configured input device with ffmpeg
type FFmpegBackend struct {
	cfg     config.RecorderConfig
	command func(name string, args ...string) *exec.Cmd
}

// NewFFmpegBackend creates a new ffmpeg-based backend
func NewFFmpegBackend(cfg config.RecorderConfig) *FFmpegBackend {
	return &FFmpegBackend{
		cfg:     cfg,
		command: exec.Command,
	}
}

// GetType returns the backend type
func (b *FFmpegBackend) GetType() BackendType {
	return BackendTypeFFmpeg
}

// NewRecorder starts ffmpeg writing to path. The returned recorder is already capturing.
func (b *FFmpegBackend) NewRecorder(path string, settings Settings) (Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	args := b.buildArgs(path, settings)
	slog.Info("Starting ffmpeg capture", "command", b.cfg.FFmpegPath+" "+strings.Join(args, " "))

	cmd := b.command(b.cfg.FFmpegPath, args...)
	stderr := &tailWriter{label: "stderr"}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r := &ffmpegRecorder{
		path:        path,
		cmd:         cmd,
		stderr:      stderr,
		stopTimeout: b.cfg.StopTimeout,
		done:        make(chan struct{}),
		finished:    make(chan error, 1),
	}
	go r.wait()

	return r, nil
}

// buildArgs constructs the ffmpeg arguments for a single mono AAC capture
func (b *FFmpegBackend) buildArgs(path string, settings Settings) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", b.cfg.InputFormat,
		"-i", b.cfg.InputDevice,
		"-ac", strconv.Itoa(settings.Channels),
		"-ar", strconv.Itoa(settings.SampleRate),
		"-c:a", settings.Codec,
		"-b:a", settings.Bitrate,
		"-f", "mp4",
		"-y", // Overwrite the previous whistle
		path,
	}
}

// ListSources returns the capture devices ffmpeg reports for the input format
func (b *FFmpegBackend) ListSources() ([]string, error) {
	cmd := b.command(b.cfg.FFmpegPath, "-hide_banner", "-sources", b.cfg.InputFormat)
	output, err := cmd.CombinedOutput()
	if err != nil && len(output) == 0 {
		return nil, fmt.Errorf("failed to list %s sources: %w", b.cfg.InputFormat, err)
	}
	return parseSources(string(output)), nil
}

// parseSources extracts device names from `ffmpeg -sources` output
func parseSources(output string) []string {
	var sources []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if i := strings.Index(line, " ["); i > 0 {
			line = line[:i]
		}
		if line != "" {
			sources = append(sources, line)
		}
	}
	return sources
}

type ffmpegRecorder struct {
	path        string
	cmd         *exec.Cmd
	stderr      *tailWriter
	stopTimeout time.Duration

	stopping atomic.Bool
	done     chan struct{}
	exitErr  error
	finished chan error
}

func (r *ffmpegRecorder) Path() string {
	return r.path
}

func (r *ffmpegRecorder) Finished() <-chan error {
	return r.finished
}

// wait reaps the process and reports exits that Stop did not ask for
func (r *ffmpegRecorder) wait() {
	err := r.cmd.Wait()
	r.exitErr = err
	if !r.stopping.Load() {
		result := classifyExit(err)
		if result != nil {
			slog.Warn("ffmpeg capture ended unexpectedly", "error", err, "stderr", r.stderr.String())
		} else if err != nil {
			slog.Info("ffmpeg interrupted externally, file finalized", "exit", err)
		}
		r.finished <- result
	}
	close(r.done)
}

// Stop interrupts ffmpeg so it finalizes the file, then validates the artifact
func (r *ffmpegRecorder) Stop() error {
	if !r.stopping.CompareAndSwap(false, true) {
		return ErrNotRecording
	}

	select {
	case <-r.done:
		slog.Debug("ffmpeg already exited before stop")
	default:
		slog.Debug("Sending SIGINT to ffmpeg process")
		if err := r.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to ffmpeg, killing", "error", err)
			r.cmd.Process.Kill()
		}

		select {
		case <-r.done:
		case <-time.After(r.stopTimeout):
			slog.Warn("ffmpeg did not exit within timeout, force killing")
			r.cmd.Process.Kill()
			<-r.done
		}
	}

	if err := classifyExit(r.exitErr); err != nil {
		slog.Debug("ffmpeg stderr", "output", r.stderr.String())
		return err
	}

	return ValidateArtifact(r.path)
}

// classifyExit treats interrupt-driven exits as success
func classifyExit(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Exit code 255 means ffmpeg was interrupted and finalized gracefully
		if exitErr.ExitCode() == 255 {
			return nil
		}
		if exitErr.ProcessState != nil {
			state := exitErr.ProcessState.String()
			if state == "signal: interrupt" {
				return nil
			}
		}
	}

	return fmt.Errorf("ffmpeg process failed: %w", err)
}

// tailWriter keeps the last few KB of process output and mirrors lines to the debug log
type tailWriter struct {
	label string
	mu    sync.Mutex
	buf   bytes.Buffer
}

const tailLimit = 4096

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			slog.Debug("ffmpeg output", "stream", w.label, "line", line)
		}
	}

	w.buf.Write(p)
	if extra := w.buf.Len() - tailLimit; extra > 0 {
		w.buf.Next(extra)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(w.buf.String())
}
