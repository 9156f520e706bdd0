package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// Format is a supported container/compression pair.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGzip
	FormatTarZstd
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGzip:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	default:
		return "unknown"
	}
}

var (
	magicZip      = []byte("PK\x03\x04")
	magicZipEmpty = []byte("PK\x05\x06")
	magicGzip     = []byte{0x1f, 0x8b}
	magicZstd     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicUstar    = []byte("ustar")
)

const (
	ustarOffset = 257
	sniffLen    = 512
)

// Detect identifies the archive format of path by extension, falling back
// to magic bytes.
func Detect(path string) (Format, error) {
	if f := formatFromName(path); f != FormatUnknown {
		return f, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer func() { _ = fh.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, err
	}
	if f := sniff(head[:n]); f != FormatUnknown {
		return f, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedArchive, path)
}

// IsArchive reports whether path is a regular file in a supported format.
func IsArchive(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := Detect(path)
	return err == nil && f != FormatUnknown
}

func formatFromName(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tar.zstd"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd
	}
	return FormatUnknown
}

func sniff(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicZip), bytes.HasPrefix(head, magicZipEmpty):
		return FormatZip
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGzip
	case bytes.HasPrefix(head, magicZstd):
		return FormatTarZstd
	case len(head) >= ustarOffset+len(magicUstar) && bytes.Equal(head[ustarOffset:ustarOffset+len(magicUstar)], magicUstar):
		return FormatTar
	}
	return FormatUnknown
}
