package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// ErrNoAudioOutput means the player cannot render recordings.
var ErrNoAudioOutput = errors.New("no audio output configured")

// CommandPlayer shells out to a system audio tool (afplay, paplay, aplay,
// ffplay). Commands are split on whitespace; a "{file}" argument is
// replaced with the file to play, otherwise the file is appended.
type CommandPlayer struct {
	ToneCommand  string
	ToneFile     string
	AudioCommand string
	// Fallback plays tones when no tone command or file is configured.
	Fallback Player
}

// Tone plays the tone file through ToneCommand.
func (p *CommandPlayer) Tone(ctx context.Context) error {
	if p.ToneCommand == "" || p.ToneFile == "" {
		if p.Fallback != nil {
			return p.Fallback.Tone(ctx)
		}
		return ErrNoAudioOutput
	}
	return run(ctx, p.ToneCommand, p.ToneFile)
}

// Play plays path through AudioCommand.
func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	if p.AudioCommand == "" {
		if p.Fallback != nil {
			return p.Fallback.Play(ctx, path)
		}
		return ErrNoAudioOutput
	}
	return run(ctx, p.AudioCommand, path)
}

func run(ctx context.Context, command, file string) error {
	args := commandArgs(command, file)
	if len(args) == 0 {
		return ErrNoAudioOutput
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // G204: command comes from operator config
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func commandArgs(command, file string) []string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	substituted := false
	for i, f := range fields {
		if strings.Contains(f, "{file}") {
			fields[i] = strings.ReplaceAll(f, "{file}", file)
			substituted = true
		}
	}
	if !substituted {
		fields = append(fields, file)
	}
	return fields
}

// BellPlayer rings the terminal bell for each pulse. It cannot play
// recordings.
type BellPlayer struct {
	mu sync.Mutex
	W  io.Writer
}

// Tone writes BEL.
func (p *BellPlayer) Tone(ctx context.Context) error {
	if p.W == nil {
		return ErrNoAudioOutput
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.W, "\a")
	return err
}

// Play reports ErrNoAudioOutput.
func (p *BellPlayer) Play(ctx context.Context, path string) error {
	return ErrNoAudioOutput
}

// NoopPlayer discards everything. Used when alerts are disabled.
type NoopPlayer struct{}

func (NoopPlayer) Tone(ctx context.Context) error              { return nil }
func (NoopPlayer) Play(ctx context.Context, path string) error { return nil }
