package runner

import (
	"context"
	"strings"
	"time"
)

// Request describes one child process invocation.
type Request struct {
	// Argv is the program name followed by its arguments.
	Argv []string
	// Dir is the child's working directory. Empty means inherit ours.
	Dir string
	// StdinPath is streamed to the child's standard input. Empty means the
	// child's standard input is closed right after it starts.
	StdinPath string
	// StdoutPath receives the child's standard output. Empty means it is
	// captured in memory and returned in Result.Stdout.
	StdoutPath string
}

// Program returns the program name, or "" for an empty Argv.
func (r Request) Program() string {
	if len(r.Argv) == 0 {
		return ""
	}
	return r.Argv[0]
}

// CommandLine renders Argv the way it appears in diagnostic headers.
func (r Request) CommandLine() string {
	return strings.Join(r.Argv, " ")
}

// Result captures the outcome of a child process.
type Result struct {
	// Stdout is the captured output, or a "redirected to <path>" marker when
	// the request named a StdoutPath.
	Stdout string
	// Stderr is everything the child wrote to its diagnostic stream.
	Stderr   string
	ExitCode int
	Duration time.Duration

	redirected bool
}

// Redirected reports whether Stdout is a placeholder rather than real output.
func (r *Result) Redirected() bool {
	return r.redirected
}

// Runner defines the interface for executing a single child process.
type Runner interface {
	// Run spawns the program named by req.Argv, pumps its streams until both
	// output streams are exhausted and waits for it to exit. Diagnostic output
	// is reported, not returned as an error.
	Run(ctx context.Context, req Request) (*Result, error)
}
