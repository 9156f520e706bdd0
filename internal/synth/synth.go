// Package synth writes rights-free synthetic shards for tests and demos.
package synth

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/ShagaDAO/gap/internal/domain/shard"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

const (
	defaultDuration   = 10
	defaultRateHz     = 60
	defaultVideoBytes = 64 << 10
	defaultT0US       = int64(1_700_000_000_000_000)

	filePerm = 0o644
	dirPerm  = 0o755
)

var keys = []string{"W", "A", "S", "D", "Space", "LMB", "RMB"}

// Options shapes a generated shard. The zero value is filled in by
// Generate; equal options with equal seeds produce byte-identical shards.
type Options struct {
	Seed        int64
	DurationSec int
	RateHz      int
	VideoBytes  int
	Controls    shard.ControlsFormat
	Overrides   shard.MetaOverrides
}

// Result describes a generated shard.
type Result struct {
	Dir       string
	SessionID string
	Events    int
	Files     []string
}

func (o *Options) defaults() {
	if o.DurationSec <= 0 {
		o.DurationSec = defaultDuration
	}
	if o.RateHz <= 0 {
		o.RateHz = defaultRateHz
	}
	if o.VideoBytes <= 0 {
		o.VideoBytes = defaultVideoBytes
	}
	if o.Controls == "" {
		o.Controls = shard.FormatJSONL
	}
}

// DefaultMeta returns metadata that passes the wayfarer-owl baseline.
func DefaultMeta(sessionID string, durationSec int, rateHz int) shard.Meta {
	return shard.Meta{
		SchemaVersion: shard.SchemaVersion,
		Profile:       "wayfarer-owl.v0.1",
		SessionID:     sessionID,
		Tool:          &shard.Tool{Name: "gap-synth", Version: "1.0"},
		Title:         shard.Title{Name: "Synthetic Game", Build: "test", Map: "colorbar_arena"},
		Capture: shard.Capture{
			HostOS:  "linux",
			GPU:     "virtual",
			Driver:  "synthetic",
			Encoder: "synthetic_av1",
			Clock:   "monotonic_us",
		},
		Display: shard.Display{Resolution: "1920x1080", FPS: 60, Colorspace: "sRGB", BitDepth: 8},
		Video: shard.VideoInfo{
			Codec:       "av1",
			BitrateMbps: 25,
			CFREnforced: true,
			DurationSec: float64(durationSec),
		},
		Controls: shard.ControlsInfo{
			Devices:        []string{"kbm"},
			Format:         "jsonl_events",
			TimestampClock: "monotonic_us",
			SampleRateHz:   float64(rateHz),
		},
		Audio:   &shard.Audio{},
		Privacy: shard.Privacy{SinglePlayerOnly: true, Consent: "synthetic-data"},
		Timing:  shard.Timing{T0US: defaultT0US, Timezone: "UTC"},
		Geo:     &shard.Geo{H3: "8a0000000000000"},
		Rights: shard.Rights{
			PublisherLicense: "synthetic-public-domain",
			PlayerConsentID:  "synthetic-consent",
		},
	}
}

// Generate writes a shard into dir, creating it when missing.
func Generate(dir string, opts Options) (*Result, error) {
	opts.defaults()
	rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec // synthetic data

	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create shard dir: %w", err)
	}

	meta := DefaultMeta(id.String(), opts.DurationSec, opts.RateHz)
	if opts.Controls == shard.FormatParquet {
		meta.Controls.Format = "parquet"
	}
	opts.Overrides.Apply(&meta)

	res := &Result{Dir: dir, SessionID: meta.SessionID}
	events := Events(rng, meta.Timing.T0US, opts.DurationSec, opts.RateHz)
	res.Events = len(events)

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	if err := write(dir, shard.MetaFile, metaData); err != nil {
		return nil, err
	}

	controlsName := opts.Controls.FileName()
	if opts.Controls == shard.FormatParquet {
		if err := parquet.WriteFile(filepath.Join(dir, controlsName), Rows(events)); err != nil {
			return nil, fmt.Errorf("write %s: %w", controlsName, err)
		}
	} else {
		data, err := encodeJSONL(events)
		if err != nil {
			return nil, err
		}
		if err := write(dir, controlsName, data); err != nil {
			return nil, err
		}
	}

	const videoName = "video.ivf"
	if err := write(dir, videoName, placeholderIVF(rng, opts.VideoBytes)); err != nil {
		return nil, err
	}

	members := []string{shard.MetaFile, controlsName, videoName}
	manifest, err := buildManifest(dir, members)
	if err != nil {
		return nil, err
	}
	if err := write(dir, shard.HashesFile, manifest); err != nil {
		return nil, err
	}
	res.Files = append(members, shard.HashesFile)
	return res, nil
}

// Events produces a 60 Hz style key/mouse stream with one event per tick,
// so t_us is strictly increasing.
func Events(rng *rand.Rand, t0 int64, durationSec, rateHz int) []shard.ControlEvent {
	interval := int64(1_000_000 / rateHz)
	n := durationSec * rateHz
	out := make([]shard.ControlEvent, 0, n)
	pressed := map[string]bool{}
	for i := range n {
		ts := t0 + int64(i)*interval
		if rng.Float64() < 0.1 {
			key := keys[rng.Intn(len(keys))]
			state := "down"
			if pressed[key] {
				state = "up"
			}
			pressed[key] = !pressed[key]
			out = append(out, shard.ControlEvent{TUs: ts, Type: shard.EventKey, Key: key, State: state})
			continue
		}
		phase := float64(i) / float64(rateHz) * 2 * math.Pi
		dx := math.Round(10*math.Sin(phase) + rng.Float64()*4 - 2)
		dy := math.Round(5*math.Cos(phase*0.7) + rng.Float64()*2 - 1)
		out = append(out, shard.ControlEvent{TUs: ts, Type: shard.EventMouse, DX: dx, DY: dy})
	}
	return out
}

// Rows converts events into the columnar layout. Held keys become bits of
// the keymask.
func Rows(events []shard.ControlEvent) []shard.ControlRow {
	rows := make([]shard.ControlRow, len(events))
	var mask int64
	for i, e := range events {
		if e.Type == shard.EventKey {
			b, _ := shard.KeymaskBit(e.Key)
			bit := int64(b)
			if e.State == "down" {
				mask |= bit
			} else {
				mask &^= bit
			}
		}
		rows[i] = shard.ControlRow{
			TsUs:     e.TUs,
			PlayerID: "player-1",
			Device:   "kbm",
			Keymask:  mask,
			MouseDX:  e.DX,
			MouseDY:  e.DY,
		}
	}
	return rows
}

func encodeJSONL(events []shard.ControlEvent) ([]byte, error) {
	buf := make([]byte, 0, len(events)*48)
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// placeholderIVF is a 32-byte IVF file header followed by noise. It is not
// decodable video.
func placeholderIVF(rng *rand.Rand, size int) []byte {
	if size < 32 {
		size = 32
	}
	b := make([]byte, size)
	copy(b, "DKIF")
	binary.LittleEndian.PutUint16(b[4:], 0)
	binary.LittleEndian.PutUint16(b[6:], 32)
	copy(b[8:], "AV01")
	binary.LittleEndian.PutUint16(b[12:], 1920)
	binary.LittleEndian.PutUint16(b[14:], 1080)
	binary.LittleEndian.PutUint32(b[16:], 60)
	binary.LittleEndian.PutUint32(b[20:], 1)
	_, _ = rng.Read(b[32:])
	return b
}

func buildManifest(dir string, members []string) ([]byte, error) {
	sums := make(map[string]string, len(members))
	for _, name := range members {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		sums[name] = hex.EncodeToString(sum[:])
	}
	m := shard.Manifest{
		SHA256: sums,
		FrameWatermarkSample: []shard.WatermarkSample{
			{FrameIdx: 30, Proof: "synthetic_wm_001"},
			{FrameIdx: 60, Proof: "synthetic_wm_002"},
			{FrameIdx: 90, Proof: "synthetic_wm_003"},
		},
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode hashes: %w", err)
	}
	return data, nil
}

func write(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
