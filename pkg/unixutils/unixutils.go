// Package unixutils wraps common command-line utilities (curl, tar, zip,
// gzip, bzip2, sed, awk, perl, iconv, wc, du, shasum, head, tail, cut) behind
// plain function calls.
//
// Every path-returning operation writes to a freshly allocated temporary
// path, never modifies its input and hands ownership of the output to the
// caller. Use Remove or ReadAndRemove to clean up.
package unixutils

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	config "unixutils/configs"
	"unixutils/pkg/executor/runner"
	"unixutils/pkg/logger"
	tracing "unixutils/pkg/observability"
	"unixutils/pkg/resilience"
	"unixutils/pkg/tmppath"
)

// ErrNotOwned is returned by Remove for paths outside the temp namespace.
var ErrNotOwned = errors.New("path was not allocated by unixutils")

// Utils runs the catalog of operations. Safe for concurrent use.
type Utils struct {
	runner   runner.Runner
	paths    *tmppath.Allocator
	programs *runner.ProgramCache
	breakers *resilience.Registry
	log      *zap.Logger
}

// Option configures Utils.
type Option func(*Utils)

// WithRunner replaces the process runner.
func WithRunner(r runner.Runner) Option {
	return func(u *Utils) {
		if r != nil {
			u.runner = r
		}
	}
}

// WithAllocator replaces the temp path allocator.
func WithAllocator(a *tmppath.Allocator) Option {
	return func(u *Utils) {
		if a != nil {
			u.paths = a
		}
	}
}

// WithProgramCache replaces the program availability cache.
func WithProgramCache(c *runner.ProgramCache) Option {
	return func(u *Utils) {
		if c != nil {
			u.programs = c
		}
	}
}

// WithBreakerConfig sets the per-host circuit breaker thresholds for Fetch.
func WithBreakerConfig(cfg resilience.Config) Option {
	return func(u *Utils) {
		u.breakers = resilience.NewRegistry(cfg)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Utils) {
		if l != nil {
			u.log = l
		}
	}
}

// New creates Utils with a default ProcessRunner, the tmppath.Default
// allocator and a fresh program cache.
func New(opts ...Option) *Utils {
	u := &Utils{}
	for _, opt := range opts {
		opt(u)
	}
	if u.log == nil {
		u.log = logger.Named("unixutils")
	}
	if u.runner == nil {
		u.runner = runner.NewProcessRunner(runner.WithLogger(u.log.Named("runner")))
	}
	if u.paths == nil {
		u.paths = tmppath.Default
	}
	if u.programs == nil {
		u.programs = runner.NewProgramCache()
	}
	if u.breakers == nil {
		u.breakers = resilience.NewRegistry(resilience.DefaultConfig())
	}
	return u
}

// FromConfig builds Utils wired from cfg.
func FromConfig(cfg *config.Config) (*Utils, error) {
	paths, err := tmppath.New(tmppath.WithDir(cfg.TempDir), tmppath.WithPrefix(cfg.Prefix))
	if err != nil {
		return nil, err
	}
	log := logger.Named("unixutils")
	breaker := resilience.DefaultConfig()
	breaker.FailureThreshold = cfg.FetchFailureThreshold
	breaker.OpenTimeout = cfg.FetchOpenTimeout

	return New(
		WithLogger(log),
		WithAllocator(paths),
		WithRunner(runner.NewProcessRunner(
			runner.WithChunkSize(cfg.ChunkSize),
			runner.WithStrict(cfg.Strict),
			runner.WithLogger(log.Named("runner")),
		)),
		WithBreakerConfig(breaker),
	), nil
}

// Bootstrap initialises the global logger and tracer from cfg and returns
// Utils wired from it. The returned shutdown flushes both.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Utils, func(context.Context) error, error) {
	if err := tmppath.ValidatePrefix(cfg.Prefix); err != nil {
		return nil, nil, err
	}
	if _, err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		Encoding:   cfg.LogEncoding,
		OutputPath: cfg.LogOutput,
		Service:    "unixutils",
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}

	tcfg := tracing.DefaultConfig("unixutils")
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.Endpoint = cfg.TracingEndpoint
	provider, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		err := provider.Shutdown(ctx)
		_ = logger.Sync()
		return err
	}

	u, err := FromConfig(cfg)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	return u, shutdown, nil
}

// Allocator returns the allocator output paths come from.
func (u *Utils) Allocator() *tmppath.Allocator {
	return u.paths
}

// Available reports whether a program can be started.
func (u *Utils) Available(program string) bool {
	return u.programs.Available(program)
}

// run checks that the program exists before handing req to the runner.
func (u *Utils) run(ctx context.Context, req runner.Request) (*runner.Result, error) {
	if err := u.programs.Require(req.Program()); err != nil {
		return nil, err
	}
	return u.runner.Run(ctx, req)
}

// toFile runs req with its output redirected to out. out is removed if the
// run fails.
func (u *Utils) toFile(ctx context.Context, req runner.Request, out string) (string, error) {
	req.StdoutPath = out
	if _, err := u.run(ctx, req); err != nil {
		u.discard(out)
		return "", err
	}
	return out, nil
}

// capture runs req and returns its standard output.
func (u *Utils) capture(ctx context.Context, req runner.Request) (string, error) {
	res, err := u.run(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (u *Utils) discard(path string) {
	if err := os.RemoveAll(path); err != nil {
		u.log.Warn("failed to clean up output", zap.String("path", path), zap.Error(err))
	}
}

// Remove deletes a file or directory previously returned by an operation.
// Anything not directly inside the allocator's temp directory with its
// prefix is refused.
func (u *Utils) Remove(path string) error {
	if !u.paths.Owns(path) {
		return fmt.Errorf("refusing to remove %s: %w", path, ErrNotOwned)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// ReadAndRemove turns a path-returning operation into a content-returning
// one:
//
//	s, err := u.ReadAndRemove(u.Sed(ctx, path, "s/bad/good/g"))
func (u *Utils) ReadAndRemove(path string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if rmErr := u.Remove(path); rmErr != nil {
		u.log.Warn("failed to remove temporary output", zap.String("path", path), zap.Error(rmErr))
	}
	if err != nil {
		return "", fmt.Errorf("failed to read output: %w", err)
	}
	return string(data), nil
}
