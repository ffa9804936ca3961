// Package tmppath derives unique, safely named temporary paths from the
// name of the file or URL they were produced from.
//
// A derived name looks like
//
//	<prefix>_<token>_<basename><ext>
//
// where basename is the ancestor's final path segment with every run of
// non-alphanumeric bytes collapsed to "_". Feeding a derived path back in
// strips the old prefix and token first, so names never nest.
package tmppath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxNameLen is the longest file name component most filesystems accept.
	MaxNameLen = 255
	// TokenLen is the width of the random hex token.
	TokenLen = 8
	// DefaultPrefix marks paths allocated by this package.
	DefaultPrefix = "unix_utils"
	// MaxPrefixLen bounds the prefix so a derived name always has room for
	// part of the basename.
	MaxPrefixLen = 64

	fallbackBase = "file"
)

var (
	nonAlnum    = regexp.MustCompile(`[^A-Za-z0-9]+`)
	validPrefix = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// ErrInvalidPrefix is returned for prefixes that could not safely start a
// file name.
var ErrInvalidPrefix = errors.New("invalid temp path prefix")

// ValidatePrefix reports whether prefix is 1 to MaxPrefixLen bytes of
// ASCII letters, digits and underscores.
func ValidatePrefix(prefix string) error {
	if len(prefix) > MaxPrefixLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidPrefix, MaxPrefixLen)
	}
	if !validPrefix.MatchString(prefix) {
		return fmt.Errorf("%w: %q must match [A-Za-z0-9_]+", ErrInvalidPrefix, prefix)
	}
	return nil
}

// TokenFunc returns a fixed-width lowercase hex token.
type TokenFunc func() string

// RandomToken returns the first TokenLen hex digits of a random UUID.
func RandomToken() string {
	return uuid.New().String()[:TokenLen]
}

// Allocator hands out temporary paths. The zero value is not usable; use New.
type Allocator struct {
	dir    string
	prefix string
	token  TokenFunc
	strip  *regexp.Regexp
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithDir sets the directory paths are allocated under.
func WithDir(dir string) Option {
	return func(a *Allocator) {
		if dir != "" {
			a.dir = dir
		}
	}
}

// WithPrefix sets the namespace prefix. New rejects it unless it passes
// ValidatePrefix.
func WithPrefix(prefix string) Option {
	return func(a *Allocator) {
		a.prefix = prefix
	}
}

// WithTokenFunc replaces the random token source. Tokens must be TokenLen
// lowercase hex digits or re-derivation will not recognise them.
func WithTokenFunc(fn TokenFunc) Option {
	return func(a *Allocator) {
		if fn != nil {
			a.token = fn
		}
	}
}

// New creates an Allocator rooted at os.TempDir() with DefaultPrefix.
func New(opts ...Option) (*Allocator, error) {
	a := &Allocator{
		dir:    os.TempDir(),
		prefix: DefaultPrefix,
		token:  RandomToken,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := ValidatePrefix(a.prefix); err != nil {
		return nil, err
	}
	a.strip = regexp.MustCompile(fmt.Sprintf(`^%s_[0-9a-f]{%d}_`, regexp.QuoteMeta(a.prefix), TokenLen))
	return a, nil
}

// MustNew is New for options known to be valid. It panics otherwise.
func MustNew(opts ...Option) *Allocator {
	a, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// Default is the allocator used by the package-level Path.
var Default = MustNew()

// Path allocates a path with the package Default allocator.
func Path(ancestor string, ext ...string) string {
	return Default.Path(ancestor, ext...)
}

// TempDir returns the directory paths are allocated under.
func (a *Allocator) TempDir() string {
	return a.dir
}

// Prefix returns the namespace prefix.
func (a *Allocator) Prefix() string {
	return a.prefix
}

// Path returns a fresh path derived from ancestor. An explicit extension
// (with or without the leading dot) wins over the ancestor's own. No
// filesystem access happens here.
func (a *Allocator) Path(ancestor string, ext ...string) string {
	return filepath.Join(a.dir, a.Name(ancestor, ext...))
}

// Name is Path without the directory.
func (a *Allocator) Name(ancestor string, ext ...string) string {
	base := lastSegment(ancestor)
	if len(ext) > 0 && ext[0] != "" {
		return a.name(base, sanitizeExt(ext[0]))
	}
	return a.name(base, sanitizeExt(filepath.Ext(base)))
}

func (a *Allocator) name(base, extension string) string {
	if stripped := a.strip.ReplaceAllString(base, ""); stripped != base {
		base = stripped
		if extension != "" && strings.HasSuffix(base, extension) && len(base) > len(extension) {
			base = strings.TrimSuffix(base, extension)
		}
	}

	base = nonAlnum.ReplaceAllString(base, "_")
	if base == "" || base == "_" {
		base = fallbackBase
	}

	head := a.prefix + "_" + a.token() + "_"
	budget := MaxNameLen - len(head) - len(extension)
	if budget < 1 {
		extension = ""
		budget = MaxNameLen - len(head)
	}
	if len(base) > budget {
		base = base[:budget]
	}
	return head + base + extension
}

// Dir allocates an extension-less path and creates it as an empty directory.
func (a *Allocator) Dir(ancestor string) (string, error) {
	path := filepath.Join(a.dir, a.name(lastSegment(ancestor), ""))
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return path, nil
}

// Owns reports whether path sits directly inside the allocation directory
// and carries this allocator's prefix.
func (a *Allocator) Owns(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	dir, err := filepath.Abs(a.dir)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == dir && strings.HasPrefix(filepath.Base(abs), a.prefix+"_")
}

// lastSegment returns the final segment of a path or URL, ignoring
// trailing separators.
func lastSegment(ancestor string) string {
	trimmed := strings.TrimRight(ancestor, `/\`)
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	ext = strings.Trim(nonAlnum.ReplaceAllString(ext, "_"), "_")
	if ext == "" {
		return ""
	}
	return "." + ext
}
