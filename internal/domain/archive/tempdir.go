package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// TempDir is a private scratch directory owned by one extraction.
type TempDir struct {
	path string
	once sync.Once
	err  error
}

// NewTempDir creates a fresh 0700 directory under parent (os.TempDir when
// empty). Concurrent callers always receive distinct directories.
func NewTempDir(parent, prefix string) (*TempDir, error) {
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("chmod temp dir: %w", err)
	}
	return &TempDir{path: dir}, nil
}

// Path returns the directory path.
func (t *TempDir) Path() string { return t.path }

// Close removes the directory tree. It is safe to call more than once.
func (t *TempDir) Close() error {
	t.once.Do(func() {
		t.err = os.RemoveAll(t.path)
	})
	return t.err
}

// WithTempDir runs fn inside a scoped temporary directory that is removed
// when fn returns, fails, panics or ctx is cancelled.
func WithTempDir(ctx context.Context, prefix string, fn func(ctx context.Context, dir string) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	td, err := NewTempDir("", prefix)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := td.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("remove temp dir: %w", cerr))
		}
	}()
	return fn(ctx, td.Path())
}
