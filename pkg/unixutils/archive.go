package unixutils

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"unixutils/pkg/executor/runner"
)

// ErrUnknownArchive is returned by Unpack for content it cannot dispatch.
var ErrUnknownArchive = errors.New("unrecognised archive format")

// Unzip extracts a zip archive into a fresh temp directory. Existing files
// are never overwritten.
func (u *Utils) Unzip(ctx context.Context, path string) (string, error) {
	return u.extract(ctx, path, func(dir string) []string {
		return []string{"unzip", "-qq", "-n", path, "-d", dir}
	})
}

// Untar extracts a tar archive into a fresh temp directory.
func (u *Utils) Untar(ctx context.Context, path string) (string, error) {
	return u.extract(ctx, path, func(dir string) []string {
		return []string{"tar", "-xf", path, "-C", dir}
	})
}

func (u *Utils) extract(ctx context.Context, path string, argv func(dir string) []string) (string, error) {
	cmd := argv("")
	if err := u.programs.Require(cmd[0]); err != nil {
		return "", err
	}
	dir, err := u.paths.Dir(path)
	if err != nil {
		return "", err
	}
	if _, err := u.run(ctx, runner.Request{Argv: argv(dir)}); err != nil {
		u.discard(dir)
		return "", err
	}
	return dir, nil
}

// Gunzip decompresses a gzip file.
func (u *Utils) Gunzip(ctx context.Context, path string) (string, error) {
	out := u.paths.Path(decompressedName(path))
	return u.toFile(ctx, runner.Request{Argv: []string{"gunzip", "--stdout", path}}, out)
}

// Bunzip2 decompresses a bzip2 file.
func (u *Utils) Bunzip2(ctx context.Context, path string) (string, error) {
	out := u.paths.Path(decompressedName(path))
	return u.toFile(ctx, runner.Request{Argv: []string{"bunzip2", "--stdout", path}}, out)
}

// Unpack sniffs the content of path and extracts or decompresses it with
// the matching tool. File names are not consulted.
func (u *Utils) Unpack(ctx context.Context, path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("mime detection failed: %w", err)
	}
	u.log.Debug("unpacking", zap.String("path", path), zap.String("mime_type", mtype.String()))

	switch {
	case mtype.Is("application/zip"), hasAncestor(mtype, "application/zip"):
		return u.Unzip(ctx, path)
	case mtype.Is("application/x-tar"):
		return u.Untar(ctx, path)
	case mtype.Is("application/gzip"):
		return u.Gunzip(ctx, path)
	case mtype.Is("application/x-bzip2"):
		return u.Bunzip2(ctx, path)
	default:
		return "", fmt.Errorf("%s is %s: %w", path, mtype.String(), ErrUnknownArchive)
	}
}

func hasAncestor(mtype *mimetype.MIME, name string) bool {
	for m := mtype.Parent(); m != nil; m = m.Parent() {
		if m.Is(name) {
			return true
		}
	}
	return false
}

// Gzip compresses a file. The output carries a .gz extension.
func (u *Utils) Gzip(ctx context.Context, path string) (string, error) {
	out := u.paths.Path(path, ".gz")
	return u.toFile(ctx, runner.Request{Argv: []string{"gzip", "--stdout", path}}, out)
}

// Bzip2 compresses a file. The output carries a .bz2 extension.
func (u *Utils) Bzip2(ctx context.Context, path string) (string, error) {
	out := u.paths.Path(path, ".bz2")
	return u.toFile(ctx, runner.Request{Argv: []string{"bzip2", "--keep", "--stdout", path}}, out)
}

// Tar archives the contents of dir. The output carries a .tar extension.
func (u *Utils) Tar(ctx context.Context, dir string) (string, error) {
	out, err := filepath.Abs(u.paths.Path(dir, ".tar"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}
	if _, err := u.run(ctx, runner.Request{Argv: []string{"tar", "-cf", out, "-C", dir, "."}}); err != nil {
		u.discard(out)
		return "", err
	}
	return out, nil
}

// Zip archives the contents of dir. The output carries a .zip extension.
func (u *Utils) Zip(ctx context.Context, dir string) (string, error) {
	out, err := filepath.Abs(u.paths.Path(dir, ".zip"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve output path: %w", err)
	}
	// zip runs inside dir so entries are stored relative to it
	if _, err := u.run(ctx, runner.Request{Argv: []string{"zip", "-rq", out, "."}, Dir: dir}); err != nil {
		u.discard(out)
		return "", err
	}
	return out, nil
}

// decompressedName drops a compression suffix so the output is named after
// what was compressed.
func decompressedName(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".gz", ".bz2", ".gzip", ".bzip2":
		return strings.TrimSuffix(path, ext)
	case ".tgz", ".tbz", ".tbz2":
		return strings.TrimSuffix(path, ext) + ".tar"
	}
	return path
}
