package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"unixutils/pkg/logger"
	"unixutils/pkg/metrics"
	tracing "unixutils/pkg/observability"
)

// DefaultChunkSize is the buffer size used for every stream pump.
const DefaultChunkSize = 64 * 1024

// DiagnosticTag opens every diagnostic header line.
const DiagnosticTag = "[unixutils]"

// ProcessRunner runs programs with os/exec and moves bytes between the
// caller and the child with one goroutine per stream, so a child that fills
// its output pipe while we are still feeding its input never deadlocks.
//
// There is no timeout: a child that never exits blocks Run forever. The
// context only carries tracing state.
type ProcessRunner struct {
	chunkSize   int
	strict      bool
	diagnostics io.Writer
	diagMu      sync.Mutex
	log         *zap.Logger
}

// Option configures a ProcessRunner.
type Option func(*ProcessRunner)

// WithChunkSize sets the per-stream buffer size.
func WithChunkSize(n int) Option {
	return func(p *ProcessRunner) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithStrict makes Run return an ExitError when the child exits non-zero.
func WithStrict(strict bool) Option {
	return func(p *ProcessRunner) {
		p.strict = strict
	}
}

// WithDiagnostics sets where diagnostic output is forwarded. Defaults to os.Stderr.
func WithDiagnostics(w io.Writer) Option {
	return func(p *ProcessRunner) {
		if w != nil {
			p.diagnostics = w
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *ProcessRunner) {
		if l != nil {
			p.log = l
		}
	}
}

// NewProcessRunner creates a ProcessRunner with 64 KiB chunks that forwards
// diagnostics to os.Stderr.
func NewProcessRunner(opts ...Option) *ProcessRunner {
	p := &ProcessRunner{
		chunkSize:   DefaultChunkSize,
		diagnostics: os.Stderr,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("runner")
	}
	return p
}

// Strict reports whether non-zero exits are escalated.
func (p *ProcessRunner) Strict() bool {
	return p.strict
}

// Run implements Runner. In strict mode a non-zero exit returns the Result
// together with an *ExitError.
func (p *ProcessRunner) Run(ctx context.Context, req Request) (res *Result, err error) {
	if len(req.Argv) == 0 {
		return nil, ErrEmptyArgv
	}
	program := req.Program()
	start := time.Now()
	outcome := metrics.OutcomeOK
	diagnosed := false

	ctx, span := tracing.StartSpan(ctx, "process.run",
		attribute.String("process.program", program),
		attribute.StringSlice("process.argv", req.Argv),
		attribute.Bool("process.redirected", req.StdoutPath != ""),
	)
	defer span.End()
	defer func() {
		metrics.RecordInvocation(program, outcome, diagnosed, time.Since(start).Seconds())
		if err != nil {
			tracing.SetError(ctx, err)
		}
	}()

	var src io.Reader
	if req.StdinPath != "" {
		in, err := os.Open(req.StdinPath)
		if err != nil {
			outcome = metrics.OutcomeIOError
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer in.Close()
		src = in
	}

	var (
		captured bytes.Buffer
		sink     io.Writer = &captured
		outFile  *os.File
	)
	if req.StdoutPath != "" {
		outFile, err = os.OpenFile(req.StdoutPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			outcome = metrics.OutcomeIOError
			return nil, fmt.Errorf("failed to open output: %w", err)
		}
		defer outFile.Close()
		sink = outFile
	}

	cmd := exec.Command(program, req.Argv[1:]...)
	cmd.Dir = req.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		outcome = metrics.OutcomeIOError
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		outcome = metrics.OutcomeIOError
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		outcome = metrics.OutcomeIOError
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	p.log.Debug("spawning process", zap.Strings("argv", req.Argv), zap.String("dir", req.Dir))

	if err := cmd.Start(); err != nil {
		outcome = metrics.OutcomeSpawnError
		if outFile != nil {
			// nothing was written yet; the file only exists because we opened it
			outFile.Close()
			os.Remove(req.StdoutPath)
		}
		return nil, &SpawnError{Argv: req.Argv, Err: err}
	}

	var (
		diag             bytes.Buffer
		inN, outN, diagN int64
		g                errgroup.Group
	)
	g.Go(func() error {
		defer stdin.Close()
		if src == nil {
			return nil
		}
		n, err := pump(stdin, src, make([]byte, p.chunkSize))
		inN = n
		if err != nil && isBrokenPipe(err) {
			p.log.Debug("child closed stdin early", zap.String("program", program), zap.Int64("bytes_written", n))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to feed stdin: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := drain(sink, stdout, make([]byte, p.chunkSize))
		outN = n
		if err != nil {
			return fmt.Errorf("failed to collect stdout: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := drain(&diag, stderr, make([]byte, p.chunkSize))
		diagN = n
		if err != nil {
			return fmt.Errorf("failed to collect stderr: %w", err)
		}
		return nil
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	metrics.RecordBytes("stdin", inN)
	metrics.RecordBytes("stdout", outN)
	metrics.RecordBytes("stderr", diagN)

	res = &Result{
		Stderr:   diag.String(),
		Duration: time.Since(start),
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			outcome = metrics.OutcomeIOError
			return nil, fmt.Errorf("failed to wait for `%s`: %w", req.CommandLine(), waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	if outFile != nil {
		if err := outFile.Close(); err != nil && pumpErr == nil {
			pumpErr = fmt.Errorf("failed to close output: %w", err)
		}
		res.Stdout = "redirected to " + req.StdoutPath
		res.redirected = true
	} else {
		res.Stdout = captured.String()
	}

	tracing.SetAttributes(ctx,
		attribute.Int("process.exit_code", res.ExitCode),
		attribute.Int64("process.stdin_bytes", inN),
		attribute.Int64("process.stdout_bytes", outN),
		attribute.Int64("process.stderr_bytes", diagN),
	)
	p.log.Debug("process finished",
		zap.Strings("argv", req.Argv),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
		zap.Int64("stdout_bytes", outN),
		zap.Int64("stderr_bytes", diagN),
	)

	if res.Stderr != "" {
		diagnosed = true
		p.report(req, res.Stderr)
	}

	if pumpErr != nil {
		outcome = metrics.OutcomeIOError
		return nil, pumpErr
	}
	if res.ExitCode != 0 {
		outcome = metrics.OutcomeExitError
		if p.strict {
			return res, &ExitError{Argv: req.Argv, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
	} else if diagnosed {
		outcome = metrics.OutcomeDiagnostic
	}
	return res, nil
}

// report forwards diagnostic text under a header naming the command. The
// header and body are written under one lock so concurrent runs don't interleave.
func (p *ProcessRunner) report(req Request, text string) {
	p.diagMu.Lock()
	defer p.diagMu.Unlock()

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s `%s` STDERR:\n", DiagnosticTag, req.CommandLine())
	b.WriteString(text)
	if text[len(text)-1] != '\n' {
		b.WriteByte('\n')
	}
	if _, err := p.diagnostics.Write(b.Bytes()); err != nil {
		p.log.Warn("failed to forward diagnostics", zap.Error(err))
	}
	p.log.Debug("diagnostic output", zap.Strings("argv", req.Argv), zap.Int("bytes", len(text)))
}

// pump copies src to dst one chunk at a time. Short reads are normal; the
// os.File writer already loops over short writes and EINTR.
func pump(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// drain is pump for child output. If dst fails, the rest of src is still
// read and discarded so the child never blocks on a full pipe.
func drain(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	n, err := pump(dst, src, buf)
	if err != nil {
		if _, derr := pump(io.Discard, src, buf); derr != nil && !errors.Is(derr, os.ErrClosed) {
			return n, errors.Join(err, derr)
		}
	}
	return n, err
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
