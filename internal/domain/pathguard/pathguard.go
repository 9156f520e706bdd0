// Package pathguard confines relative member paths to a trusted root.
//
// A path is accepted only when its canonical form, with symlinks of every
// existing ancestor evaluated, lies strictly below the canonical root.
package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Guard resolves member paths under one canonical root.
type Guard struct {
	root string
}

// New canonicalizes root. The directory must exist.
func New(root string) (*Guard, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return &Guard{root: real}, nil
}

// Root returns the canonical root.
func (g *Guard) Root() string { return g.root }

// Resolve returns the canonical absolute path of rel under the root, or
// ErrEscapesRoot. The returned path never lies outside the root.
func (g *Guard) Resolve(rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}
	// Both separators are treated as absolute markers regardless of OS so a
	// member name written on another platform cannot override the root.
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("%w: %q is absolute", ErrEscapesRoot, rel)
	}

	joined := filepath.Join(g.root, rel)
	if !g.within(joined) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}

	resolved, err := resolveExisting(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrEscapesRoot, rel, err)
	}
	if !g.within(resolved) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}
	return resolved, nil
}

// Contains reports whether an absolute path is a strict descendant of the
// root without touching the file system.
func (g *Guard) Contains(path string) bool {
	return g.within(filepath.Clean(path))
}

func (g *Guard) within(path string) bool {
	prefix := g.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix) && len(path) > len(prefix)
}

// Resolve is a convenience for New(root) followed by Resolve(rel).
func Resolve(root, rel string) (string, error) {
	g, err := New(root)
	if err != nil {
		return "", err
	}
	return g.Resolve(rel)
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of path
// and re-attaches the components that do not exist yet.
func resolveExisting(path string) (string, error) {
	cur := path
	var tail []string
	for {
		_, err := os.Lstat(cur)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
	// A dangling link fails here and is refused by the caller.
	real, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	for i := len(tail) - 1; i >= 0; i-- {
		real = filepath.Join(real, tail[i])
	}
	return real, nil
}
