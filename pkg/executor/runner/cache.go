package runner

import (
	"os/exec"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"unixutils/pkg/metrics"
)

// LookPathFunc resolves a program name to an executable path.
type LookPathFunc func(name string) (string, error)

// ProgramCache remembers whether programs are on PATH. Each name is looked
// up at most once per cache; results are never invalidated. Safe for
// concurrent use.
type ProgramCache struct {
	lookPath LookPathFunc
	mu       sync.RWMutex
	known    map[string]bool
	group    singleflight.Group
}

// NewProgramCache creates a cache backed by exec.LookPath.
func NewProgramCache() *ProgramCache {
	return NewProgramCacheWith(exec.LookPath)
}

// NewProgramCacheWith creates a cache backed by a custom resolver.
func NewProgramCacheWith(lookPath LookPathFunc) *ProgramCache {
	return &ProgramCache{
		lookPath: lookPath,
		known:    make(map[string]bool),
	}
}

// Available reports whether name can be started.
func (c *ProgramCache) Available(name string) bool {
	c.mu.RLock()
	ok, cached := c.known[name]
	c.mu.RUnlock()
	if cached {
		return ok
	}

	v, _, _ := c.group.Do(name, func() (interface{}, error) {
		c.mu.RLock()
		ok, cached := c.known[name]
		c.mu.RUnlock()
		if cached {
			return ok, nil
		}

		_, err := c.lookPath(name)
		ok = err == nil
		metrics.ProgramLookups.WithLabelValues(name, strconv.FormatBool(ok)).Inc()

		c.mu.Lock()
		c.known[name] = ok
		c.mu.Unlock()
		return ok, nil
	})
	return v.(bool)
}

// Require returns an *UnavailableProgramError if name is not available.
func (c *ProgramCache) Require(name string) error {
	if !c.Available(name) {
		return &UnavailableProgramError{Program: name}
	}
	return nil
}

// First returns the first available program of names, in order. When none
// is available the error names the preferred (first) program.
func (c *ProgramCache) First(names ...string) (string, error) {
	for _, name := range names {
		if c.Available(name) {
			return name, nil
		}
	}
	if len(names) == 0 {
		return "", ErrEmptyArgv
	}
	return "", &UnavailableProgramError{Program: names[0]}
}
