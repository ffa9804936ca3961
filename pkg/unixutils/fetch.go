package unixutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"unixutils/pkg/executor/runner"
	"unixutils/pkg/metrics"
	"unixutils/pkg/resilience"
)

const fileScheme = "file://"

// ErrLocalInputNotFound is wrapped by LocalInputNotFoundError.
var ErrLocalInputNotFound = errors.New("local input not found")

// LocalInputNotFoundError is returned by Fetch when a local source cannot
// be read. No subprocess is started.
type LocalInputNotFoundError struct {
	Path string
	Err  error
}

func (e *LocalInputNotFoundError) Error() string {
	return fmt.Sprintf("local input %s: %v", e.Path, e.Err)
}

func (e *LocalInputNotFoundError) Unwrap() []error {
	return []error{ErrLocalInputNotFound, e.Err}
}

// errRemoteExit marks a curl run that exited non-zero outside strict mode.
// It counts against the host but is not returned.
var errRemoteExit = errors.New("curl exited non-zero")

// Fetch downloads src to a fresh temp file. Local sources (absolute paths,
// file:// URLs and bare file names without a scheme) are copied instead.
// formData, when given, is posted with curl --data.
func (u *Utils) Fetch(ctx context.Context, src string, formData ...string) (string, error) {
	if local, ok := localSource(src); ok {
		return u.copyLocal(local, src)
	}

	target, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", src, err)
	}
	out := u.paths.Path(src)

	argv := []string{"curl", "--location", "--show-error", "--silent", "--compressed", "--header", "Expect: "}
	for _, form := range formData {
		argv = append(argv, "--data", form)
	}
	argv = append(argv, target.String(), "--output", out)

	host := target.Hostname()
	breaker := u.breakers.Get(host)
	err = breaker.Execute(ctx, func(ctx context.Context) error {
		res, err := u.run(ctx, runner.Request{Argv: argv})
		if err == nil && res.ExitCode != 0 {
			return errRemoteExit
		}
		return err
	}, countsAgainstHost)

	if errors.Is(err, errRemoteExit) {
		err = nil
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			metrics.FetchRejected.WithLabelValues(host).Inc()
			u.log.Warn("fetch rejected", zap.String("host", host), zap.Error(err))
		}
		u.discard(out)
		return "", err
	}
	return out, nil
}

// countsAgainstHost reports whether err says something about the remote
// end. A missing curl binary does not.
func countsAgainstHost(err error) bool {
	return errors.Is(err, errRemoteExit) ||
		errors.Is(err, runner.ErrNonZeroExit) ||
		errors.Is(err, runner.ErrSpawn)
}

// localSource reports whether src names a local file and returns its path.
func localSource(src string) (string, bool) {
	if strings.HasPrefix(src, fileScheme) {
		return strings.TrimPrefix(src, fileScheme), true
	}
	if filepath.IsAbs(src) {
		return src, true
	}
	if strings.Contains(src, "/") {
		return "", false
	}
	if u, err := url.Parse(src); err == nil && u.Scheme != "" {
		return "", false
	}
	return src, true
}

func (u *Utils) copyLocal(path, src string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", &LocalInputNotFoundError{Path: path, Err: err}
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", &LocalInputNotFoundError{Path: path, Err: err}
	}
	if info.IsDir() {
		return "", &LocalInputNotFoundError{Path: path, Err: errors.New("is a directory")}
	}

	out := u.paths.Path(src)
	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create output: %w", err)
	}
	if _, err := io.Copy(f, in); err != nil {
		f.Close()
		u.discard(out)
		return "", fmt.Errorf("failed to copy %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		u.discard(out)
		return "", fmt.Errorf("failed to copy %s: %w", path, err)
	}
	u.log.Debug("copied local input", zap.String("src", path), zap.String("dst", out))
	return out, nil
}
