// Package shard models the files of a GAP shard and reads them under hard
// resource caps.
package shard

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Well-known member names.
const (
	MetaFile          = "meta.json"
	HashesFile        = "hashes.json"
	ControlsJSONLFile = "controls.jsonl"
	ControlsParquet   = "controls.parquet"
)

// VideoFiles lists the recognized video member names.
var VideoFiles = []string{"video.ivf", "video.mkv", "video.mp4", "video.webm"}

// ControlsFiles lists the recognized controls member names.
var ControlsFiles = []string{ControlsJSONLFile, ControlsParquet}

// ControlsFormat names the encoding of the control stream.
type ControlsFormat string

const (
	FormatJSONL   ControlsFormat = "jsonl"
	FormatParquet ControlsFormat = "parquet"
)

// FormatOf returns the controls format implied by a member name.
func FormatOf(name string) ControlsFormat {
	if strings.HasSuffix(name, ".parquet") {
		return FormatParquet
	}
	return FormatJSONL
}

// FileName returns the member name for a controls format.
func (f ControlsFormat) FileName() string {
	if f == FormatParquet {
		return ControlsParquet
	}
	return ControlsJSONLFile
}

// Layout is what a shard directory contains, by member name.
type Layout struct {
	Dir       string
	HasMeta   bool
	HasHashes bool
	Videos    []string
	Controls  []string
	// Irregular lists recognized members that are symlinks or not regular
	// files. They are never opened.
	Irregular []string
	Sizes     map[string]int64
}

// Discover classifies the top-level members of dir. It never follows links.
func Discover(dir string) (*Layout, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	l := &Layout{Dir: dir, Sizes: map[string]int64{}}
	for _, e := range entries {
		name := e.Name()
		if !recognized(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			l.Irregular = append(l.Irregular, name)
			continue
		}
		l.Sizes[name] = info.Size()
		switch {
		case name == MetaFile:
			l.HasMeta = true
		case name == HashesFile:
			l.HasHashes = true
		case contains(VideoFiles, name):
			l.Videos = append(l.Videos, name)
		case contains(ControlsFiles, name):
			l.Controls = append(l.Controls, name)
		}
	}
	sort.Strings(l.Videos)
	sort.Strings(l.Controls)
	return l, nil
}

// Video returns the single video member, if there is exactly one.
func (l *Layout) Video() (string, bool) {
	if len(l.Videos) == 0 {
		return "", false
	}
	return l.Videos[0], true
}

// ControlsFor returns the controls member to read for the preferred format,
// falling back to whatever is present.
func (l *Layout) ControlsFor(preferred ControlsFormat) (string, bool) {
	want := preferred.FileName()
	if contains(l.Controls, want) {
		return want, true
	}
	if len(l.Controls) > 0 {
		return l.Controls[0], true
	}
	return "", false
}

// Path joins a member name to the shard directory.
func (l *Layout) Path(name string) string {
	return filepath.Join(l.Dir, name)
}

func recognized(name string) bool {
	return name == MetaFile || name == HashesFile || contains(VideoFiles, name) || contains(ControlsFiles, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

const maxRootDepth = 4

// FindRoot returns the shallowest directory under dir that holds meta.json.
// Archives often wrap the shard in a single top-level folder.
func FindRoot(dir string) (string, error) {
	best, bestDepth := "", maxRootDepth+1
	base := filepath.Clean(dir)
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(base, p)
		depth := 0
		if rel != "." {
			depth = strings.Count(rel, string(filepath.Separator)) + 1
		}
		if d.IsDir() {
			if depth >= bestDepth || depth > maxRootDepth {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() == MetaFile && d.Type().IsRegular() {
			parentDepth := depth - 1
			if parentDepth < bestDepth {
				best, bestDepth = filepath.Dir(p), parentDepth
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", fmt.Errorf("%w: no %s under %s", ErrNoShard, MetaFile, filepath.Base(dir))
	}
	return best, nil
}
