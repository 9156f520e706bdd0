package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ShagaDAO/gap/internal/domain/pathguard"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const zstdMaxMemory = 256 << 20

// extractTar runs two passes over the stream: headers only, then data.
func (e *Extractor) extractTar(ctx context.Context, archivePath string, format Format, guard *pathguard.Guard) (*Result, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, err
	}

	b := &budget{limits: e.limits, compressed: uint64(max(info.Size(), 1))}
	err = walkTar(ctx, archivePath, format, func(_ *tar.Reader, hdr *tar.Header, name string) error {
		if hdr.Typeflag != tar.TypeReg {
			return nil
		}
		if err := b.addFile(name, uint64(hdr.Size)); err != nil {
			return err
		}
		// The compressed size is fixed, so the ratio only grows.
		return b.checkRatio()
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Format: format}
	buf := make([]byte, e.chunkSize)
	err = walkTar(ctx, archivePath, format, func(tr *tar.Reader, hdr *tar.Header, name string) error {
		if hdr.Typeflag == tar.TypeDir {
			res.Dirs++
			return e.makeDir(guard, name)
		}
		n, err := e.writeMember(ctx, guard, name, tr, hdr.Size, buf)
		if err != nil {
			return err
		}
		res.Files++
		res.Bytes += n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// walkTar calls visit for every directory and regular member. Links and
// special files abort the walk.
func walkTar(ctx context.Context, archivePath string, format Format, visit func(*tar.Reader, *tar.Header, string) error) error {
	stream, closeFn, err := openTarStream(archivePath, format)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read tar header: %w", ErrUnsupportedArchive, err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		name, err := cleanMemberName(hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if name == "" {
				continue
			}
		case tar.TypeReg:
			if name == "" {
				return fmt.Errorf("%w: file entry names the root", ErrUnsafeMember)
			}
			if hdr.Size < 0 {
				return fmt.Errorf("%w: %q has negative size", ErrUnsafeMember, hdr.Name)
			}
		default:
			return fmt.Errorf("%w: %q has type %q", ErrUnsafeMember, hdr.Name, string(hdr.Typeflag))
		}
		if err := visit(tr, hdr, name); err != nil {
			return err
		}
	}
}

func openTarStream(archivePath string, format Format) (io.Reader, func() error, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, err
	}
	switch format {
	case FormatTar:
		return f, f.Close, nil
	case FormatTarGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("%w: gzip: %w", ErrUnsupportedArchive, err)
		}
		return zr, func() error { return errors.Join(zr.Close(), f.Close()) }, nil
	case FormatTarZstd:
		dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(zstdMaxMemory))
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("%w: zstd: %w", ErrUnsupportedArchive, err)
		}
		return dec, func() error { dec.Close(); return f.Close() }, nil
	default:
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, format)
	}
}
