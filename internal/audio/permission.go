package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/whistle/internal/config"
)

// StaticPermission always answers with its own value
type StaticPermission bool

func (p StaticPermission) Request(ctx context.Context) (bool, error) {
	return bool(p), nil
}

// DevicePermission grants access when ffmpeg can open the capture device
type DevicePermission struct {
	cfg      config.RecorderConfig
	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewDevicePermission creates a permission probe for the configured device
func NewDevicePermission(cfg config.RecorderConfig) *DevicePermission {
	return &DevicePermission{
		cfg:      cfg,
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
	}
}

// Request opens the device for a tenth of a second and discards the audio.
// Any failure to open it is reported as a denial together with the cause.
func (p *DevicePermission) Request(ctx context.Context) (bool, error) {
	ffmpeg, err := p.lookPath(p.cfg.FFmpegPath)
	if err != nil {
		return false, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", p.cfg.InputFormat,
		"-i", p.cfg.InputDevice,
		"-t", "0.1",
		"-f", "null",
		"-",
	}

	slog.Debug("Probing capture device", "format", p.cfg.InputFormat, "device", p.cfg.InputDevice)
	output, err := p.command(ctx, ffmpeg, args...).CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("cannot open %s device %q: %w: %s",
			p.cfg.InputFormat, p.cfg.InputDevice, err, strings.TrimSpace(string(output)))
	}

	return true, nil
}
