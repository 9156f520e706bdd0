package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/ShagaDAO/gap/internal/synth"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if err != nil {
		return -1
	}
	return 0
}

func newShard(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shard")
	if _, err := synth.Generate(dir, synth.Options{Seed: 3, DurationSec: 2}); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestValidateCommand(t *testing.T) {
	dir := newShard(t)

	out, err := runCLI(t, "validate", dir, "--profile", "wayfarer-owl")
	if code := exitCode(err); code != 0 {
		t.Fatalf("expected exit 0, got %d (%v)\n%s", code, err, out)
	}
	if !strings.Contains(out, "VALID") || !strings.Contains(out, "file_structure") {
		t.Errorf("unexpected text output:\n%s", out)
	}

	out, err = runCLI(t, "validate", dir, "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rep struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil || !rep.Valid {
		t.Errorf("expected a valid JSON report, got %v:\n%s", err, out)
	}

	out, err = runCLI(t, "validate", dir, "--format", "yaml")
	if err != nil || !strings.Contains(out, "valid: true") {
		t.Errorf("expected YAML report, got %v:\n%s", err, out)
	}

	if _, err := runCLI(t, "validate", dir, "--format", "xml"); err == nil || exitCode(err) != -1 {
		t.Errorf("expected a usage error for an unknown format, got %v", err)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	empty := t.TempDir()

	out, err := runCLI(t, "validate", empty, "--quiet")
	if code := exitCode(err); code != 1 {
		t.Fatalf("expected exit 1, got %d (%v)", code, err)
	}
	if !strings.Contains(out, "INVALID") || !strings.Contains(out, "ERROR [structural] Required file missing: meta.json") {
		t.Errorf("expected the verdict and errors with --quiet, got:\n%s", out)
	}
	if strings.Contains(out, "file_structure") {
		t.Errorf("expected no stage table with --quiet, got:\n%s", out)
	}

	if _, err := runCLI(t, "validate", filepath.Join(empty, "missing")); exitCode(err) != -1 {
		t.Errorf("expected a resolution error, got %v", err)
	}
}

func TestStrictFlagUsage(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"validate", "check", "submit"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("find %s: %v", name, err)
		}
		usage := cmd.Flags().Lookup("strict").Usage
		if !strings.Contains(usage, "bitrate") || strings.Contains(usage, "warnings as errors") {
			t.Errorf("%s --strict usage should describe the bitrate check, got %q", name, usage)
		}
	}
}

func TestSynthCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	out, err := runCLI(t, "synth", dir, "--seed", "9", "--duration", "2", "--parquet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Wrote session") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "controls.parquet")); err != nil {
		t.Errorf("expected controls.parquet: %v", err)
	}
	if _, err := runCLI(t, "validate", dir, "--quiet"); err != nil {
		t.Errorf("synthetic shard should validate, got %v", err)
	}
}

func TestExtractCommand(t *testing.T) {
	src := newShard(t)
	archivePath := filepath.Join(t.TempDir(), "shard.zip")
	writeZip(t, src, archivePath, nil)

	dest := filepath.Join(t.TempDir(), "unpacked")
	out, err := runCLI(t, "extract", archivePath, dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Extracted zip") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dest, "session", "meta.json")); err != nil {
		t.Errorf("expected meta.json in destination: %v", err)
	}

	evil := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, src, evil, map[string]string{"../escape.txt": "x"})
	bad := filepath.Join(t.TempDir(), "bad")
	if _, err := runCLI(t, "extract", evil, bad); err == nil || !strings.Contains(err.Error(), "archive rejected") {
		t.Errorf("expected archive rejection, got %v", err)
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("expected the destination to be removed, got %v", err)
	}
}

func TestCacheCommands(t *testing.T) {
	t.Setenv("GAP_FFMPEG_PATH", filepath.Join(t.TempDir(), "no-ffmpeg"))
	cache := filepath.Join(t.TempDir(), "fingerprints.json")
	dir := newShard(t)

	if _, err := runCLI(t, "cache", "stats"); err == nil || !strings.Contains(err.Error(), "no cache file") {
		t.Errorf("expected missing cache error, got %v", err)
	}

	out, err := runCLI(t, "cache", "update", dir, "--cache", cache)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, dir) {
		t.Errorf("expected the shard in the table:\n%s", out)
	}

	out, err = runCLI(t, "cache", "stats", "--cache", cache, "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stats struct {
		Video    int `json:"video"`
		Controls int `json:"controls"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("bad JSON: %v\n%s", err, out)
	}
	if stats.Controls != 1 || stats.Video != 0 {
		t.Errorf("unexpected cache stats %+v", stats)
	}
}

func writeZip(t *testing.T, dir, out string, extra map[string]string) {
	t.Helper()
	f, err := os.Create(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	add := func(name string, data []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		add("session/"+e.Name(), data)
	}
	for name, body := range extra {
		add(name, []byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}
