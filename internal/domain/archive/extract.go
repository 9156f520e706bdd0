// Package archive safely unpacks untrusted shard archives.
//
// Every archive is pre-scanned against entry-count, total-size and
// expansion-ratio limits before a single byte is written. Members are then
// streamed through a pathguard.Guard in fixed-size chunks. Any failure aborts
// the whole extraction; the caller owns and discards the destination.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/ShagaDAO/gap/pkg/logger"
	"github.com/ShagaDAO/gap/pkg/metrics"
)

// Extractor unpacks archives under fixed limits. It is safe for concurrent
// use as long as each call has its own destination.
type Extractor struct {
	limits    Limits
	chunkSize int
	log       logger.Logger
}

// Result summarizes a successful extraction.
type Result struct {
	Format Format `json:"format"`
	Files  int    `json:"files"`
	Dirs   int    `json:"dirs"`
	Bytes  int64  `json:"bytes"`
}

// NewExtractor builds an Extractor with default limits.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		limits:    DefaultLimits(),
		chunkSize: defaultChunkSize,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limits returns the active limits.
func (e *Extractor) Limits() Limits { return e.limits }

// Extract unpacks archivePath into dest, which must already exist.
func (e *Extractor) Extract(ctx context.Context, archivePath, dest string) (*Result, error) {
	res, err := e.extract(ctx, archivePath, dest)
	if err != nil {
		metrics.RecordArchiveRejection(Reason(err))
		e.log.Warn(ctx, "archive rejected",
			logger.String("archive", filepath.Base(archivePath)),
			logger.String("reason", Reason(err)),
			logger.Error(err))
		return nil, err
	}
	metrics.AddExtractedBytes(res.Bytes)
	e.log.Debug(ctx, "archive extracted",
		logger.String("archive", filepath.Base(archivePath)),
		logger.String("format", res.Format.String()),
		logger.Int("files", res.Files),
		logger.Int64("bytes", res.Bytes))
	return res, nil
}

func (e *Extractor) extract(ctx context.Context, archivePath, dest string) (*Result, error) {
	format, err := Detect(archivePath)
	if err != nil {
		return nil, err
	}
	guard, err := pathguard.New(dest)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatZip:
		return e.extractZip(ctx, archivePath, guard)
	case FormatTar, FormatTarGzip, FormatTarZstd:
		return e.extractTar(ctx, archivePath, format, guard)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
}

// budget tracks pre-scan totals against the limits.
type budget struct {
	limits     Limits
	files      int
	total      uint64
	compressed uint64
}

func (b *budget) addFile(name string, size uint64) error {
	b.files++
	if b.files > b.limits.MaxEntries {
		return fmt.Errorf("%w: more than %d files", ErrTooManyEntries, b.limits.MaxEntries)
	}
	b.total += size
	if b.total < size || b.total > uint64(b.limits.MaxTotalBytes) {
		return fmt.Errorf("%w: %s brings total past %d bytes", ErrArchiveTooLarge, name, b.limits.MaxTotalBytes)
	}
	return nil
}

func (b *budget) checkRatio() error {
	if b.total == 0 {
		return nil
	}
	compressed := b.compressed
	if compressed == 0 {
		compressed = 1
	}
	ratio := float64(b.total) / float64(compressed)
	if ratio > b.limits.MaxExpansion {
		return fmt.Errorf("%w: %.1fx > %.1fx", ErrExpansionRatio, ratio, b.limits.MaxExpansion)
	}
	return nil
}

// cleanMemberName rejects absolute and parent-relative member names before
// they ever reach the guard. An empty result means the entry names the root.
func cleanMemberName(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: empty or NUL name", ErrUnsafeMember)
	}
	n := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(n, "/") || hasDriveLetter(n) {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafeMember, name)
	}
	for _, part := range strings.Split(n, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q contains '..'", ErrUnsafeMember, name)
		}
	}
	cleaned := path.Clean(n)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

func hasDriveLetter(n string) bool {
	if len(n) < 2 || n[1] != ':' {
		return false
	}
	c := n[0] | 0x20
	return c >= 'a' && c <= 'z'
}

func (e *Extractor) makeDir(guard *pathguard.Guard, name string) error {
	target, err := guard.Resolve(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsafeMember, err)
	}
	return os.MkdirAll(target, defaultDirPermissions)
}

// writeMember streams one regular member to its guarded target. At most
// declared bytes are accepted.
func (e *Extractor) writeMember(ctx context.Context, guard *pathguard.Guard, name string, src io.Reader, declared int64, buf []byte) (int64, error) {
	target, err := guard.Resolve(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnsafeMember, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), defaultDirPermissions); err != nil {
		return 0, fmt.Errorf("create parent of %s: %w", name, err)
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: duplicate member %q", ErrUnsafeMember, name)
		}
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	n, err := copyChunked(ctx, out, src, declared, buf)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// copyChunked copies src to dst one buffer at a time, checking ctx between
// chunks and refusing more than limit bytes.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if written+int64(n) > limit {
				return written, fmt.Errorf("%w: more than %d bytes", ErrMemberSize, limit)
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
