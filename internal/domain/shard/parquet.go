package shard

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ParquetColumns are required in a columnar control table.
var ParquetColumns = []string{"ts_us", "player_id", "device"}

// ControlRow is the row layout of controls.parquet.
type ControlRow struct {
	TsUs     int64   `parquet:"ts_us"`
	PlayerID string  `parquet:"player_id,optional"`
	Device   string  `parquet:"device,optional"`
	Keymask  int64   `parquet:"keymask,optional"`
	MouseDX  float64 `parquet:"mouse_dx,optional"`
	MouseDY  float64 `parquet:"mouse_dy,optional"`
}

const parquetBatch = 1024

// ReadParquet decodes controls.parquet. The row count from the footer is
// checked before any row is read.
func ReadParquet(ctx context.Context, path string, lim Limits) (*Controls, error) {
	f, err := openRegular(path, lim.MaxControlsBytes)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: controls.parquet: %w", ErrMalformed, err)
	}
	if pf.NumRows() > lim.MaxRecords {
		return nil, fmt.Errorf("%w: controls.parquet has %d rows", ErrTooManyRecords, pf.NumRows())
	}
	c := &Controls{Format: FormatParquet, Columns: map[string]bool{}}
	for _, col := range ParquetColumns {
		_, ok := pf.Schema().Lookup(col)
		c.Columns[col] = ok
	}
	if !c.Columns["ts_us"] {
		return c, fmt.Errorf("%w: ts_us", ErrMissingColumn)
	}

	r := parquet.NewGenericReader[ControlRow](f)
	defer func() { _ = r.Close() }()

	c.Events = make([]ControlEvent, 0, pf.NumRows())
	buf := make([]ControlRow, parquetBatch)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, rerr := r.Read(buf)
		for _, row := range buf[:n] {
			c.Events = append(c.Events, ControlEvent{
				TUs:      row.TsUs,
				PlayerID: row.PlayerID,
				Device:   row.Device,
				Keymask:  uint32(row.Keymask),
				DX:       row.MouseDX,
				DY:       row.MouseDY,
			})
		}
		if int64(len(c.Events)) > lim.MaxRecords {
			return nil, fmt.Errorf("%w: controls.parquet exceeds %d rows", ErrTooManyRecords, lim.MaxRecords)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("%w: controls.parquet: %w", ErrMalformed, rerr)
		}
	}
	return c, nil
}

// Inputs returns the stream as typed key and mouse events. JSONL records
// already are; columnar rows are expanded: keymask transitions become key
// up and down events (releases first), and a row with motion or without a
// key transition becomes a mouse event. Validation works on Events, one per
// record, so timestamps there stay strictly increasing.
func (c *Controls) Inputs() []ControlEvent {
	if c.Format != FormatParquet {
		return c.Events
	}
	out := make([]ControlEvent, 0, len(c.Events))
	var prev uint32
	for _, row := range c.Events {
		changed := row.Keymask != prev
		for _, k := range DecodeKeymask(prev &^ row.Keymask) {
			out = append(out, ControlEvent{TUs: row.TUs, Type: EventKey, Key: k, State: "up"})
		}
		for _, k := range DecodeKeymask(row.Keymask &^ prev) {
			out = append(out, ControlEvent{TUs: row.TUs, Type: EventKey, Key: k, State: "down"})
		}
		prev = row.Keymask
		if row.DX != 0 || row.DY != 0 || !changed {
			out = append(out, ControlEvent{TUs: row.TUs, Type: EventMouse, DX: row.DX, DY: row.DY})
		}
	}
	return out
}

// ReadControls dispatches on the member name.
func ReadControls(ctx context.Context, path string, lim Limits) (*Controls, error) {
	switch FormatOf(path) {
	case FormatParquet:
		return ReadParquet(ctx, path, lim)
	default:
		return ReadJSONL(ctx, path, lim)
	}
}
