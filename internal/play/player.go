package play

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/whistle/internal/audio"
	"github.com/audiolibrelab/whistle/internal/config"
)

// Player streams the whistle artifact through the first available command-line player
type Player struct {
	preferred string
	lookPath  func(string) (string, error)
	command   func(name string, args ...string) *exec.Cmd
}

func New(cfg config.PlayerConfig) *Player {
	return &Player{
		preferred: cfg.Preferred,
		lookPath:  exec.LookPath,
		command:   exec.Command,
	}
}

// Play validates the artifact synchronously and starts playback in the background.
// An unreadable or corrupted file is reported before any player is launched.
func (p *Player) Play(path string) error {
	cmd, player, err := p.start(path)
	if err != nil {
		return err
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Warn("Playback exited with error", "player", player, "error", err)
			return
		}
		slog.Debug("Playback completed", "player", player)
	}()

	return nil
}

// PlayAndWait plays the artifact and returns when the player exits
func (p *Player) PlayAndWait(path string) error {
	cmd, player, err := p.start(path)
	if err != nil {
		return err
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", player, err)
	}
	return nil
}

func (p *Player) start(path string) (*exec.Cmd, string, error) {
	if err := audio.ValidateArtifact(path); err != nil {
		return nil, "", err
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return nil, "", fmt.Errorf("no suitable audio player found: %w", err)
	}

	var cmd *exec.Cmd
	switch player {
	case "vlc":
		cmd = p.command("vlc", "--intf", "dummy", "--play-and-exit", path)
	case "mpv":
		cmd = p.command("mpv", "--no-video", "--really-quiet", path)
	case "ffplay":
		cmd = p.command("ffplay", "-nodisp", "-autoexit", "-loglevel", "error", path)
	default:
		return nil, "", fmt.Errorf("unsupported player: %s", player)
	}

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("playback failed with %s: %w", player, err)
	}

	slog.Info("Playing whistle", "file", path, "player", player)
	return cmd, player, nil
}

func (p *Player) findAudioPlayer() (string, error) {
	// List of preferred audio players in order of preference
	players := []string{"ffplay", "mpv", "vlc"}
	if p.preferred != "" {
		players = append([]string{p.preferred}, players...)
	}

	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}
