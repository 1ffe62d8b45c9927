package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var (
	// ErrSpawn is wrapped by errors from Run when the shell couldn't be
	// started at all.
	ErrSpawn = errors.New("failed to run shell")

	// ErrNotFound is the error resulting if the shell binary can't be found.
	ErrNotFound = exec.ErrNotFound
)

// waitDelay bounds how long Run waits for grandchildren holding the output
// pipes open after a timed out shell is killed. It only applies when ctx has
// a deadline, otherwise Run waits until every writer has closed the pipes.
const waitDelay = time.Second

// ExecutionResult holds the captured output of a single command.
type ExecutionResult struct {
	Stdout []byte
	Stderr []byte
	// ExitCode is nil if the process didn't exit normally.
	ExitCode *int
}

// Run executes the command with the platform shell and waits for it to
// complete. If dir is empty, the current working directory is used.
//
// A non-zero exit status is not an error, the only errors returned are those
// that prevented the shell from starting, these wrap ErrSpawn.
func (p *Platform) Run(ctx context.Context, command, dir string) (*ExecutionResult, error) {
	if len(p.Shell) == 0 {
		return nil, fmt.Errorf("%w: no shell configured for %s", ErrSpawn, p.Name)
	}

	argv := append(append([]string(nil), p.Shell[1:]...), command)
	cmd := exec.CommandContext(ctx, p.Shell[0], argv...)
	cmd.Dir = dir
	if _, ok := ctx.Deadline(); ok {
		cmd.WaitDelay = waitDelay
	}

	// A nil Stdin is connected to the null device.
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
	case errors.Is(err, exec.ErrWaitDelay):
		// Output is complete as far as the shell is concerned.
	case cmd.ProcessState != nil && ctx.Err() != nil:
		// The context fired after the shell had already exited.
	default:
		return nil, fmt.Errorf("%w %q: %w", ErrSpawn, p.Shell[0], err)
	}

	result := &ExecutionResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	// ExitCode reports -1 for processes terminated by a signal.
	if code := cmd.ProcessState.ExitCode(); code >= 0 {
		result.ExitCode = &code
	}

	return result, nil
}
