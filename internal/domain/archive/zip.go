package archive

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/klauspost/compress/zip"
)

func (e *Extractor) extractZip(ctx context.Context, archivePath string, guard *pathguard.Guard) (*Result, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %w", ErrUnsupportedArchive, err)
	}
	defer func() { _ = r.Close() }()

	if err := e.scanZip(r.File); err != nil {
		return nil, err
	}

	res := &Result{Format: FormatZip}
	buf := make([]byte, e.chunkSize)
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, _ := cleanMemberName(f.Name)
		if name == "" {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := e.makeDir(guard, name); err != nil {
				return nil, err
			}
			res.Dirs++
			continue
		}
		n, err := e.extractZipFile(ctx, guard, f, name, buf)
		if err != nil {
			return nil, err
		}
		res.Files++
		res.Bytes += n
	}
	return res, nil
}

// scanZip enforces every limit from the central directory alone.
func (e *Extractor) scanZip(files []*zip.File) error {
	b := &budget{limits: e.limits}
	for _, f := range files {
		name, err := cleanMemberName(f.Name)
		if err != nil {
			return err
		}
		if name == "" || f.FileInfo().IsDir() {
			continue
		}
		mode := f.Mode()
		if mode&fs.ModeSymlink != 0 || !mode.IsRegular() {
			return fmt.Errorf("%w: %q is not a regular file", ErrUnsafeMember, f.Name)
		}
		if err := b.addFile(name, f.UncompressedSize64); err != nil {
			return err
		}
		b.compressed += max(f.CompressedSize64, 1)
	}
	return b.checkRatio()
}

func (e *Extractor) extractZipFile(ctx context.Context, guard *pathguard.Guard, f *zip.File, name string, buf []byte) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open member %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	return e.writeMember(ctx, guard, name, rc, int64(f.UncompressedSize64), buf)
}
