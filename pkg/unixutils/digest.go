package unixutils

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"unixutils/pkg/executor/runner"
)

// ErrUnsupportedDigest is returned for SHA sizes shasum does not know.
var ErrUnsupportedDigest = errors.New("unsupported digest size")

// ErrUnexpectedOutput is returned when a program's output cannot be parsed.
var ErrUnexpectedOutput = errors.New("unexpected program output")

// Counts is what wc reports for a file.
type Counts struct {
	Lines int64
	Words int64
	Bytes int64
}

// Shasum returns the hex SHA digest of the file at path. bits is one of
// 1, 224, 256, 384 or 512. Falls back to sha<bits>sum when shasum is missing.
func (u *Utils) Shasum(ctx context.Context, path string, bits int) (string, error) {
	switch bits {
	case 1, 224, 256, 384, 512:
	default:
		return "", fmt.Errorf("sha%d: %w", bits, ErrUnsupportedDigest)
	}

	fallback := fmt.Sprintf("sha%dsum", bits)
	program, err := u.programs.First("shasum", fallback)
	if err != nil {
		return "", err
	}
	argv := []string{fallback}
	if program == "shasum" {
		argv = []string{"shasum", "-a", strconv.Itoa(bits)}
	} else {
		u.log.Info("shasum not available, using fallback", zap.String("program", fallback))
	}
	return u.digest(ctx, argv, path)
}

// Md5sum returns the hex MD5 digest of the file at path, using md5sum or
// the BSD md5 tool.
func (u *Utils) Md5sum(ctx context.Context, path string) (string, error) {
	program, err := u.programs.First("md5sum", "md5")
	if err != nil {
		return "", err
	}
	argv := []string{"md5sum"}
	if program == "md5" {
		argv = []string{"md5", "-q"}
	}
	return u.digest(ctx, argv, path)
}

func (u *Utils) digest(ctx context.Context, argv []string, path string) (string, error) {
	out, err := u.capture(ctx, runner.Request{Argv: argv, StdinPath: path})
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", fmt.Errorf("%s printed no digest: %w", argv[0], ErrUnexpectedOutput)
	}
	return fields[0], nil
}

// Du returns the disk usage of dir in kibibytes.
func (u *Utils) Du(ctx context.Context, dir string) (int64, error) {
	out, err := u.capture(ctx, runner.Request{Argv: []string{"du", "-sk", dir}})
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, fmt.Errorf("du printed nothing for %s: %w", dir, ErrUnexpectedOutput)
	}
	kb, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("du printed %q: %w", fields[0], ErrUnexpectedOutput)
	}
	return kb, nil
}

// Wc counts lines, words and bytes of the file at path.
func (u *Utils) Wc(ctx context.Context, path string) (Counts, error) {
	out, err := u.capture(ctx, runner.Request{Argv: []string{"wc"}, StdinPath: path})
	if err != nil {
		return Counts{}, err
	}
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return Counts{}, fmt.Errorf("wc printed %q: %w", out, ErrUnexpectedOutput)
	}
	var n [3]int64
	for i := range n {
		if n[i], err = strconv.ParseInt(fields[i], 10, 64); err != nil {
			return Counts{}, fmt.Errorf("wc printed %q: %w", out, ErrUnexpectedOutput)
		}
	}
	return Counts{Lines: n[0], Words: n[1], Bytes: n[2]}, nil
}
