package runner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSpawn is wrapped by SpawnError.
	ErrSpawn = errors.New("failed to spawn process")
	// ErrUnavailable is wrapped by UnavailableProgramError.
	ErrUnavailable = errors.New("program not available")
	// ErrNonZeroExit is wrapped by ExitError.
	ErrNonZeroExit = errors.New("process exited with non-zero status")
	// ErrEmptyArgv is returned for a request without a program name.
	ErrEmptyArgv = errors.New("empty argument vector")
)

type (
	// SpawnError is returned when the child could not be created at all:
	// missing executable, permission denied, bad working directory.
	SpawnError struct {
		Argv []string
		Err  error
	}

	// UnavailableProgramError is returned when a program is not on PATH.
	UnavailableProgramError struct {
		Program string
	}

	// ExitError is returned in strict mode when the child exits non-zero.
	ExitError struct {
		Argv     []string
		ExitCode int
		Stderr   string
	}
)

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn `%s`: %v", strings.Join(e.Argv, " "), e.Err)
}

// Unwrap exposes both the sentinel and the underlying os/exec error.
func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

func (e *UnavailableProgramError) Error() string {
	return fmt.Sprintf("program %q not found in PATH", e.Program)
}

func (e *UnavailableProgramError) Unwrap() error { return ErrUnavailable }

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("`%s` exited with status %d", strings.Join(e.Argv, " "), e.ExitCode)
	if first, _, _ := strings.Cut(strings.TrimSpace(e.Stderr), "\n"); first != "" {
		msg += ": " + first
	}
	return msg
}

func (e *ExitError) Unwrap() error { return ErrNonZeroExit }
