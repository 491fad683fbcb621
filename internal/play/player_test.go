package play

import (
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/audiolibrelab/whistle/internal/audio"
	"github.com/audiolibrelab/whistle/internal/config"
)

func box(kind string, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(8+len(payload)))
	copy(out[4:8], kind)
	return append(out, payload...)
}

func writeArtifact(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whistle.m4a")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
	return path
}

func validArtifact() []byte {
	var out []byte
	out = append(out, box("ftyp", []byte("M4A "))...)
	out = append(out, box("mdat", []byte("tweet"))...)
	return append(out, box("moov", nil)...)
}

func TestPlay_MissingArtifact(t *testing.T) {
	p := New(config.PlayerConfig{})

	err := p.Play(filepath.Join(t.TempDir(), "whistle.m4a"))
	if !errors.Is(err, audio.ErrArtifactMissing) {
		t.Errorf("Expected ErrArtifactMissing, got: %v", err)
	}
}

func TestPlay_CorruptArtifact(t *testing.T) {
	p := New(config.PlayerConfig{})
	p.lookPath = func(string) (string, error) {
		t.Error("Player lookup should not happen for a corrupt artifact")
		return "", exec.ErrNotFound
	}

	err := p.Play(writeArtifact(t, []byte("not an m4a file at all")))
	if !errors.Is(err, audio.ErrArtifactCorrupt) {
		t.Errorf("Expected ErrArtifactCorrupt, got: %v", err)
	}
}

func TestPlay_NoPlayerAvailable(t *testing.T) {
	p := New(config.PlayerConfig{})
	p.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	err := p.Play(writeArtifact(t, validArtifact()))
	if err == nil || !strings.Contains(err.Error(), "no suitable audio player found") {
		t.Errorf("Expected no player error, got: %v", err)
	}
}

func TestPlay_StartsPreferredPlayer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell builtin")
	}

	var started []string
	p := New(config.PlayerConfig{Preferred: "mpv"})
	p.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	p.command = func(name string, args ...string) *exec.Cmd {
		started = append([]string{name}, args...)
		return exec.Command("true")
	}

	path := writeArtifact(t, validArtifact())
	if err := p.Play(path); err != nil {
		t.Fatalf("Expected playback to start, got: %v", err)
	}

	if len(started) == 0 || started[0] != "mpv" {
		t.Fatalf("Expected mpv to be launched, got %v", started)
	}
	if started[len(started)-1] != path {
		t.Errorf("Expected artifact path as last argument, got %v", started)
	}
}

func TestFindAudioPlayer_Order(t *testing.T) {
	p := New(config.PlayerConfig{})
	p.lookPath = func(name string) (string, error) {
		if name == "vlc" {
			return "/usr/bin/vlc", nil
		}
		return "", exec.ErrNotFound
	}

	player, err := p.findAudioPlayer()
	if err != nil || player != "vlc" {
		t.Errorf("Expected vlc fallback, got %q %v", player, err)
	}
}

func TestPlayAndWait_ReportsPlayerFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell builtin")
	}

	p := New(config.PlayerConfig{})
	p.lookPath = func(name string) (string, error) { return "/usr/bin/" + name, nil }
	p.command = func(name string, args ...string) *exec.Cmd { return exec.Command("false") }

	err := p.PlayAndWait(writeArtifact(t, validArtifact()))
	if err == nil || !strings.Contains(err.Error(), "playback failed with ffplay") {
		t.Errorf("Expected player failure, got: %v", err)
	}
}
