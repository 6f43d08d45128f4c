package events

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecPlayer plays sound files by invoking an external player binary.
// The player command is taken from SFX_PLAYER (default ffplay with
// flags for headless one-shot playback).
type ExecPlayer struct {
	Dir     string
	Command []string
}

// NewExecPlayer builds a player rooted at the sfx directory.
func NewExecPlayer(dir string) *ExecPlayer {
	cmd := []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}
	if v := os.Getenv("SFX_PLAYER"); v != "" {
		cmd = strings.Fields(v)
	}
	return &ExecPlayer{Dir: dir, Command: cmd}
}

// Play fires the player for a file in the sfx directory without
// waiting for playback to finish. Path traversal outside the
// directory is rejected.
func (p *ExecPlayer) Play(name string) {
	path := filepath.Join(p.Dir, filepath.Clean("/"+name))
	if _, err := os.Stat(path); err != nil {
		slog.Warn("sfx file missing", "name", name, "error", err)
		return
	}
	args := append(append([]string{}, p.Command[1:]...), path)
	cmd := exec.Command(p.Command[0], args...)
	go func() {
		if err := cmd.Run(); err != nil {
			slog.Warn("sfx playback failed", "name", name, "error", err)
		}
	}()
}
