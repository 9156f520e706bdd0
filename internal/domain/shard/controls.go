package shard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Event types.
const (
	EventKey   = "key"
	EventMouse = "mouse"
	EventPad   = "pad"
)

// ControlEvent is one input event. JSONL streams carry the event fields;
// parquet tables carry player and device columns.
type ControlEvent struct {
	TUs      int64   `json:"t_us"`
	Type     string  `json:"type,omitempty"`
	Key      string  `json:"key,omitempty"`
	State    string  `json:"state,omitempty"`
	DX       float64 `json:"dx,omitempty"`
	DY       float64 `json:"dy,omitempty"`
	PlayerID string  `json:"player_id,omitempty"`
	Device   string  `json:"device,omitempty"`
	Keymask  uint32  `json:"keymask,omitempty"`
}

// Limits caps what a shard reader will consume.
type Limits struct {
	MaxMetaBytes     int64
	MaxControlsBytes int64
	MaxRecords       int64
}

// DefaultLimits returns 4 MiB meta, 100 MiB controls and 5,000,000 records.
func DefaultLimits() Limits {
	return Limits{
		MaxMetaBytes:     4 << 20,
		MaxControlsBytes: 100 << 20,
		MaxRecords:       5_000_000,
	}
}

// Controls is a decoded control stream.
type Controls struct {
	Format ControlsFormat
	Events []ControlEvent
	// Columns records which fields were present on every record.
	Columns map[string]bool
	// First holds the raw field names of the first record.
	First map[string]json.RawMessage
}

// Timestamps returns the t_us column.
func (c *Controls) Timestamps() []int64 {
	out := make([]int64, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.TUs
	}
	return out
}

// ReadCapped reads a whole regular file, refusing files above maxBytes.
func ReadCapped(path string, maxBytes int64) ([]byte, error) {
	f, err := openRegular(path, maxBytes)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, maxBytes)
	}
	return data, nil
}

func openRegular(path string, maxBytes int64) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %.1fMB > %.1fMB", ErrFileTooLarge, mb(info.Size()), mb(maxBytes))
	}
	return os.Open(path)
}

func mb(n int64) float64 { return float64(n) / (1 << 20) }

type jsonlRecord struct {
	TUs   *int64  `json:"t_us"`
	Type  *string `json:"type"`
	Key   string  `json:"key"`
	State string  `json:"state"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
}

const ctxCheckEvery = 4096

// ReadJSONL decodes a controls.jsonl stream. The read aborts as soon as the
// byte or line cap is crossed.
func ReadJSONL(ctx context.Context, path string, lim Limits) (*Controls, error) {
	f, err := openRegular(path, lim.MaxControlsBytes)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	c := &Controls{Format: FormatJSONL}
	r := bufio.NewReader(io.LimitReader(f, lim.MaxControlsBytes+1))
	var (
		read     int64
		lines    int64
		withTUs  int
		withType int
	)
	for {
		line, rerr := r.ReadBytes('\n')
		read += int64(len(line))
		if read > lim.MaxControlsBytes {
			return nil, fmt.Errorf("%w: controls.jsonl exceeds %d bytes", ErrFileTooLarge, lim.MaxControlsBytes)
		}
		if len(line) > 0 {
			lines++
			if lines > lim.MaxRecords {
				return nil, fmt.Errorf("%w: controls.jsonl exceeds %d lines", ErrTooManyRecords, lim.MaxRecords)
			}
			if lines%ctxCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				if c.First == nil {
					if err := json.Unmarshal(trimmed, &c.First); err != nil {
						return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, lines, err)
					}
				}
				var rec jsonlRecord
				if err := json.Unmarshal(trimmed, &rec); err != nil {
					return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, lines, err)
				}
				ev := ControlEvent{Key: rec.Key, State: rec.State, DX: rec.DX, DY: rec.DY}
				if rec.TUs != nil {
					ev.TUs = *rec.TUs
					withTUs++
				}
				if rec.Type != nil {
					ev.Type = *rec.Type
					withType++
				}
				c.Events = append(c.Events, ev)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, rerr
		}
	}
	c.Columns = map[string]bool{
		"t_us": len(c.Events) > 0 && withTUs == len(c.Events),
		"type": len(c.Events) > 0 && withType == len(c.Events),
	}
	return c, nil
}

// keyNames maps keymask bit positions to key names.
var keyNames = []string{"W", "A", "S", "D", "Space", "Ctrl", "LMB", "RMB", "R", "E", "Shift"}

// DecodeKeymask expands a keymask into key names in bit order.
func DecodeKeymask(mask uint32) []string {
	var keys []string
	for bit, name := range keyNames {
		if mask&(1<<bit) != 0 {
			keys = append(keys, name)
		}
	}
	return keys
}

// KeymaskBit returns the keymask bit for a key name.
func KeymaskBit(name string) (uint32, bool) {
	for bit, n := range keyNames {
		if n == name {
			return 1 << bit, true
		}
	}
	return 0, false
}

// FirstJSONLRecord decodes only the first non-empty line of a JSONL file,
// reading at most maxBytes.
func FirstJSONLRecord(path string, maxBytes int64) (map[string]json.RawMessage, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(io.LimitReader(f, maxBytes))
	for {
		line, rerr := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var rec map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &rec); err != nil {
				return nil, fmt.Errorf("%w: first record: %w", ErrMalformed, err)
			}
			return rec, nil
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil, fmt.Errorf("%w: no records", ErrMalformed)
			}
			return nil, rerr
		}
	}
}
