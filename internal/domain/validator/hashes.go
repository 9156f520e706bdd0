package validator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/ShagaDAO/gap/internal/domain/shard"
	"golang.org/x/sync/errgroup"
)

const hashChunk = 1 << 20

type fileDigest struct {
	name     string
	path     string
	expected string
	actual   string
	missing  bool
	err      error
}

func (r *run) checkHashes() {
	p, err := r.guard.Resolve(shard.HashesFile)
	if err != nil {
		r.fail(model.CategorySecurity, "%s: %v", shard.HashesFile, err)
		return
	}
	m, err := shard.LoadManifest(p, r.v.limits.MaxMetaBytes)
	if err != nil {
		r.fail(model.CategoryIntegrity, "Failed to load hashes.json: %v", err)
		return
	}
	if !m.WatermarksListed {
		r.warn(model.CategoryIntegrity, "hashes.json missing frame_watermark_sample list")
	}
	if m.SHA256 == nil {
		r.fail(model.CategoryIntegrity, "hashes.json missing sha256 section")
		return
	}

	var todo []*fileDigest
	for _, name := range m.Names() {
		d := &fileDigest{name: name, expected: m.SHA256[name]}
		d.path, err = r.guard.Resolve(name)
		if err != nil {
			if errors.Is(err, pathguard.ErrEscapesRoot) {
				r.fail(model.CategorySecurity, "Hash entry escapes shard root: %s", name)
			} else {
				r.fail(model.CategorySecurity, "Invalid hash entry %q: %v", name, err)
			}
			continue
		}
		todo = append(todo, d)
	}

	if err := digestAll(r.ctx, todo, r.v.hashWorkers); err != nil {
		return
	}

	for _, d := range todo {
		switch {
		case d.missing:
			r.warn(model.CategoryIntegrity, "Hash entry for non-existent file: %s", d.name)
		case errors.Is(d.err, shard.ErrNotRegular):
			r.fail(model.CategorySecurity, "Hash entry is not a regular file: %s", d.name)
		case d.err != nil:
			r.fail(model.CategoryIntegrity, "Failed to hash %s: %v", d.name, d.err)
		case !strings.EqualFold(d.actual, d.expected):
			r.fail(model.CategoryIntegrity, "Hash mismatch for %s: expected %s, got %s", d.name, d.expected, d.actual)
		}
	}
}

// digestAll hashes files with at most workers goroutines. Per-file failures
// are stored on the digest; only cancellation is returned.
func digestAll(ctx context.Context, files []*fileDigest, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, d := range files {
		g.Go(func() error {
			d.actual, d.err = sha256File(gctx, d.path)
			if errors.Is(d.err, fs.ErrNotExist) {
				d.missing, d.err = true, nil
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

// sha256File returns the lowercase hex SHA-256 of a regular file.
func sha256File(ctx context.Context, path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", shard.ErrNotRegular
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, hashChunk)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := f.Read(buf)
		h.Write(buf[:n])
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return "", rerr
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
