package admission

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShagaDAO/gap/internal/domain/archive"
	"github.com/ShagaDAO/gap/internal/domain/pathguard"
)

// SourceKind tells directories and archives apart.
type SourceKind int

const (
	SourceDir SourceKind = iota + 1
	SourceArchive
)

func (k SourceKind) String() string {
	switch k {
	case SourceDir:
		return "directory"
	case SourceArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Source is an input resolved to the local file system.
type Source struct {
	Path string
	Kind SourceKind
}

// Name is the last path element, safe to put in logs and errors.
func (s Source) Name() string { return filepath.Base(s.Path) }

// ResolveSource turns a plain path or file:// URI into a local Source.
// Remote schemes are left to an external loader.
func ResolveSource(raw string) (Source, error) {
	path, err := localPath(raw)
	if err != nil {
		return Source{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, filepath.Base(path))
		}
		return Source{}, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	switch {
	case info.IsDir():
		return Source{Path: path, Kind: SourceDir}, nil
	case archive.IsArchive(path):
		return Source{Path: path, Kind: SourceArchive}, nil
	default:
		return Source{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, filepath.Base(path))
	}
}

// ConfineSource maps a submitted source onto a path below the guard's root.
// Relative sources are taken relative to the root; absolute ones must
// already lie inside it.
func ConfineSource(g *pathguard.Guard, raw string) (string, error) {
	path, err := localPath(raw)
	if err != nil {
		return "", err
	}
	rel := path
	if filepath.IsAbs(path) {
		abs := path
		if canon, err := filepath.EvalSymlinks(path); err == nil {
			abs = canon
		}
		if rel, err = filepath.Rel(g.Root(), abs); err != nil {
			return "", fmt.Errorf("%w: %w", pathguard.ErrEscapesRoot, err)
		}
	}
	return g.Resolve(rel)
}

func localPath(raw string) (string, error) {
	path := raw
	if i := strings.Index(raw, "://"); i > 0 {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse source: %w", err)
		}
		if !strings.EqualFold(u.Scheme, "file") {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", fmt.Errorf("%w: file URI with remote host", ErrUnsupportedScheme)
		}
		path = u.Path
	}
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrSourceNotFound)
	}
	return filepath.Clean(path), nil
}
