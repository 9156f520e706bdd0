package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
	"github.com/gofrs/flock"
)

const (
	defaultLockTimeout = 30 * time.Second
	lockRetryDelay     = 25 * time.Millisecond
	maxCacheBytes      = 256 << 20
)

// FileCache is a JSON fingerprint cache guarded by an advisory file lock.
// Readers share the lock; Merge holds it exclusively across
// load, merge and atomic replace, so processes sharing the file never drop
// each other's fingerprints.
type FileCache struct {
	path        string
	lockTimeout time.Duration
	log         logger.Logger
}

// NewFileCache returns a cache stored at path. The file is created on the
// first Merge.
func NewFileCache(path string, opts ...Option) *FileCache {
	c := &FileCache{
		path:        path,
		lockTimeout: defaultLockTimeout,
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the cache file location.
func (c *FileCache) Path() string { return c.path }

// Snapshot reads the cache under a shared lock. A missing file is an empty
// cache.
func (c *FileCache) Snapshot(ctx context.Context) (Snapshot, error) {
	if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	unlock, err := c.acquire(ctx, false)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()
	snap, err := c.load()
	if err != nil {
		return Snapshot{}, err
	}
	c.report(snap)
	return snap, nil
}

// Merge adds fingerprints to the cache file. A corrupt file is left
// untouched and reported.
func (c *FileCache) Merge(ctx context.Context, add Snapshot) (int, error) {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create cache directory: %w", err)
		}
	}
	unlock, err := c.acquire(ctx, true)
	if err != nil {
		return 0, err
	}
	defer unlock()

	snap, err := c.load()
	if err != nil {
		return 0, err
	}
	snap, n := mergeSnapshot(snap, add)
	if n > 0 {
		if err := c.store(snap); err != nil {
			return 0, err
		}
	}
	c.report(snap)
	c.log.Info(ctx, "fingerprint cache updated",
		logger.Int("added", n),
		logger.Int("video", len(snap.Video)),
		logger.Int("controls", len(snap.Controls)))
	return n, nil
}

// acquire takes the lock file next to the cache. Each call opens its own
// descriptor so goroutines in one process exclude each other too.
func (c *FileCache) acquire(ctx context.Context, exclusive bool) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	fl := flock.New(c.path + ".lock")
	start := time.Now()
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(lctx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(lctx, lockRetryDelay)
	}
	metrics.ObserveCacheLockWait(time.Since(start))
	if err != nil || !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || err == nil {
			return nil, fmt.Errorf("%w after %s", ErrCacheLocked, c.lockTimeout)
		}
		return nil, fmt.Errorf("lock fingerprint cache: %w", err)
	}
	return func() { _ = fl.Unlock() }, nil
}

func (c *FileCache) load() (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return snap, err
	}
	if info.Size() > maxCacheBytes {
		return snap, fmt.Errorf("%w: %d bytes", ErrCorruptCache, info.Size())
	}
	if info.Size() == 0 {
		return snap, nil
	}
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCorruptCache, err)
	}
	return snap, nil
}

// store replaces the cache file atomically.
func (c *FileCache) store(snap Snapshot) error {
	if snap.Video == nil {
		snap.Video = []uint64{}
	}
	if snap.Controls == nil {
		snap.Controls = []uint64{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), "."+filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write fingerprint cache: %w", err)
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write fingerprint cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync fingerprint cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, c.path); err != nil {
		cleanup()
		return fmt.Errorf("replace fingerprint cache: %w", err)
	}
	return nil
}

func (c *FileCache) report(s Snapshot) {
	metrics.UpdateCacheSize(PartitionVideo, len(s.Video))
	metrics.UpdateCacheSize(PartitionControls, len(s.Controls))
}
