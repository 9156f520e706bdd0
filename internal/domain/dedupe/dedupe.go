// Package dedupe stores the fingerprints of admitted shards so later
// submissions can be compared against them.
package dedupe

import (
	"context"
	"sync"
)

// Partitions of the cache, also used as metric labels.
const (
	PartitionVideo    = "video"
	PartitionControls = "controls"
)

// Snapshot is the full content of a cache. Its JSON form is the on-disk
// cache format.
type Snapshot struct {
	Video    []uint64 `json:"video_hashes"`
	Controls []uint64 `json:"control_hashes"`
}

// Len returns the number of fingerprints in both partitions.
func (s Snapshot) Len() int { return len(s.Video) + len(s.Controls) }

// Cache is an append-only fingerprint store. Reads may run concurrently;
// Merge is atomic with respect to every other Merge on the same store.
type Cache interface {
	// Snapshot returns a copy of every known fingerprint.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Merge adds the fingerprints not already present and returns how
	// many were new.
	Merge(ctx context.Context, add Snapshot) (int, error)
}

// merge appends to dst every value of add not in dst, keeping first-seen
// order, and returns the result and the number appended.
func merge(dst, add []uint64) ([]uint64, int) {
	seen := make(map[uint64]struct{}, len(dst)+len(add))
	for _, h := range dst {
		seen[h] = struct{}{}
	}
	n := 0
	for _, h := range add {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		dst = append(dst, h)
		n++
	}
	return dst, n
}

// mergeSnapshot merges add into base partition by partition.
func mergeSnapshot(base, add Snapshot) (Snapshot, int) {
	var nv, nc int
	base.Video, nv = merge(base.Video, add.Video)
	base.Controls, nc = merge(base.Controls, add.Controls)
	return base, nv + nc
}

// memoryCache keeps fingerprints in process memory.
type memoryCache struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() Cache {
	return &memoryCache{}
}

func (c *memoryCache) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.snap), nil
}

func (c *memoryCache) Merge(ctx context.Context, add Snapshot) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	c.snap, n = mergeSnapshot(c.snap, add)
	return n, nil
}

func clone(s Snapshot) Snapshot {
	return Snapshot{
		Video:    append([]uint64{}, s.Video...),
		Controls: append([]uint64{}, s.Controls...),
	}
}
