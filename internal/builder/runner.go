package builder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is one external process invocation.
type Command struct {
	// Dir is the working directory.
	Dir string
	// Args is the argv; Args[0] is looked up in PATH.
	Args []string
	// Env is appended to the current environment.
	Env []string
	// Interactive attaches the process to the terminal instead of capturing output.
	Interactive bool
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// CommandRunner executes commands. Implementations must honour ctx cancellation.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// errNoArgs is returned when a command has no argv.
var errNoArgs = errors.New("command has no arguments")

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Stream, if set, receives a live copy of captured output.
	Stream io.Writer
}

// Run starts the command and waits for it. For captured commands the combined
// stdout and stderr are returned even when the command fails.
func (r *ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	if len(c.Args) == 0 {
		return nil, errNoArgs
	}

	//nolint:gosec // Commands come from the workspace configuration.
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	if c.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		return nil, cmd.Run()
	}

	var output bytes.Buffer

	var w io.Writer = &output
	if r.Stream != nil {
		w = io.MultiWriter(&output, r.Stream)
	}

	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()

	return output.Bytes(), err
}
