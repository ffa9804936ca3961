package unixutils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/saintfish/chardet"
	"go.uber.org/zap"

	"unixutils/pkg/executor/runner"
)

// DetectSampleSize is how much of a file DetectEncoding looks at.
const DetectSampleSize = 64 * 1024

const (
	unix2dosProgram = `{ sub(/\r?$/,"\r"); print }`
	dos2unixExpr    = `s/\r\n$/\n/g`
)

// filter streams path through argv into a temp file that keeps path's
// extension.
func (u *Utils) filter(ctx context.Context, path string, argv []string) (string, error) {
	return u.toFile(ctx, runner.Request{Argv: argv, StdinPath: path}, u.paths.Path(path))
}

// Sed runs sed with each expression given as -e.
func (u *Utils) Sed(ctx context.Context, path string, exprs ...string) (string, error) {
	argv := []string{"sed"}
	for _, e := range exprs {
		argv = append(argv, "-e", e)
	}
	return u.filter(ctx, path, argv)
}

// Awk runs an awk program over the file.
func (u *Utils) Awk(ctx context.Context, path, program string) (string, error) {
	return u.filter(ctx, path, []string{"awk", program})
}

// Perl runs perl -pe with each expression.
func (u *Utils) Perl(ctx context.Context, path string, exprs ...string) (string, error) {
	argv := []string{"perl"}
	for _, e := range exprs {
		argv = append(argv, "-pe", e)
	}
	return u.filter(ctx, path, argv)
}

// Unix2Dos converts LF and CRLF line endings to CRLF.
func (u *Utils) Unix2Dos(ctx context.Context, path string) (string, error) {
	return u.Awk(ctx, path, unix2dosProgram)
}

// Dos2Unix converts CRLF line endings to LF.
func (u *Utils) Dos2Unix(ctx context.Context, path string) (string, error) {
	return u.Perl(ctx, path, dos2unixExpr)
}

// Head keeps the first n lines.
func (u *Utils) Head(ctx context.Context, path string, n int) (string, error) {
	return u.filter(ctx, path, []string{"head", "-n", strconv.Itoa(n)})
}

// Tail keeps the last lines. spec is a count ("3") or, with a leading plus,
// the first line to keep ("+3").
func (u *Utils) Tail(ctx context.Context, path, spec string) (string, error) {
	return u.filter(ctx, path, []string{"tail", "-n", spec})
}

// Cut keeps the given character positions, e.g. "1,12,13" or "3-6".
func (u *Utils) Cut(ctx context.Context, path, positions string) (string, error) {
	return u.filter(ctx, path, []string{"cut", "-c", positions})
}

// Iconv converts the file from one character set to another, dropping
// characters that cannot be represented. An empty from is detected.
func (u *Utils) Iconv(ctx context.Context, path, to, from string) (string, error) {
	if from == "" {
		detected, err := u.DetectEncoding(path)
		if err != nil {
			return "", err
		}
		u.log.Info("detected source encoding", zap.String("path", path), zap.String("charset", detected))
		from = detected
	}
	return u.filter(ctx, path, []string{"iconv", "-c", "-t", to, "-f", from})
}

// DetectEncoding guesses the character set of the file from its first
// DetectSampleSize bytes. Empty files are reported as UTF-8.
func (u *Utils) DetectEncoding(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, DetectSampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if n == 0 {
		return "UTF-8", nil
	}

	result, err := chardet.NewTextDetector().DetectBest(buf[:n])
	if err != nil {
		return "", fmt.Errorf("failed to detect encoding of %s: %w", path, err)
	}
	if result == nil || result.Charset == "" {
		return "", fmt.Errorf("failed to detect encoding of %s: %w", path, ErrUnexpectedOutput)
	}
	return result.Charset, nil
}
