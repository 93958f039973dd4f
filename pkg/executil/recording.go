package executil

import (
	"context"
	"sync"
)

// RecordedCommand captures a command that was executed.
type RecordedCommand struct {
	Dir string
	Cmd string
}

// RecordingRunner captures commands for testing.
// Configure the Errors map to control return values.
type RecordingRunner struct {
	mu       sync.Mutex
	Commands []RecordedCommand

	// Errors maps command strings to their error.
	Errors map[string]error
}

// RunSh records the command and returns the configured error, if any.
func (r *RecordingRunner) RunSh(ctx context.Context, dir, cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Commands = append(r.Commands, RecordedCommand{Dir: dir, Cmd: cmd})

	if r.Errors != nil {
		return r.Errors[cmd]
	}
	return nil
}

// Reset clears recorded commands.
func (r *RecordingRunner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commands = nil
}
