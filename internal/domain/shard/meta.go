package shard

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SchemaVersion is the only meta.json schema version accepted.
const SchemaVersion = "0.2.0"

// Meta is the typed view of meta.json.
type Meta struct {
	SchemaVersion string       `json:"schema_version" yaml:"schema_version"`
	Profile       string       `json:"profile,omitempty" yaml:"profile,omitempty"`
	SessionID     string       `json:"session_id" yaml:"session_id"`
	Tool          *Tool        `json:"tool,omitempty" yaml:"tool,omitempty"`
	Title         Title        `json:"title" yaml:"title"`
	Capture       Capture      `json:"capture" yaml:"capture"`
	Display       Display      `json:"display" yaml:"display"`
	Video         VideoInfo    `json:"video" yaml:"video"`
	Controls      ControlsInfo `json:"controls" yaml:"controls"`
	Audio         *Audio       `json:"audio,omitempty" yaml:"audio,omitempty"`
	Privacy       Privacy      `json:"privacy" yaml:"privacy"`
	Timing        Timing       `json:"timing" yaml:"timing"`
	Geo           *Geo         `json:"geo,omitempty" yaml:"geo,omitempty"`
	Rights        Rights       `json:"rights" yaml:"rights"`
}

type Tool struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

type Title struct {
	Name  string `json:"name" yaml:"name"`
	Build string `json:"build,omitempty" yaml:"build,omitempty"`
	Map   string `json:"map,omitempty" yaml:"map,omitempty"`
}

type Capture struct {
	HostOS  string `json:"host_os,omitempty" yaml:"host_os,omitempty"`
	GPU     string `json:"gpu,omitempty" yaml:"gpu,omitempty"`
	Driver  string `json:"driver,omitempty" yaml:"driver,omitempty"`
	Encoder string `json:"encoder,omitempty" yaml:"encoder,omitempty"`
	Clock   string `json:"clock,omitempty" yaml:"clock,omitempty"`
}

type Display struct {
	Resolution string  `json:"resolution" yaml:"resolution"`
	FPS        float64 `json:"fps" yaml:"fps"`
	HDR        bool    `json:"hdr" yaml:"hdr"`
	Colorspace string  `json:"colorspace,omitempty" yaml:"colorspace,omitempty"`
	BitDepth   int     `json:"bit_depth,omitempty" yaml:"bit_depth,omitempty"`
}

type VideoInfo struct {
	Codec       string  `json:"codec,omitempty" yaml:"codec,omitempty"`
	BitrateMbps float64 `json:"bitrate_mbps" yaml:"bitrate_mbps"`
	CFREnforced bool    `json:"cfr_enforced" yaml:"cfr_enforced"`
	DurationSec float64 `json:"duration_sec,omitempty" yaml:"duration_sec,omitempty"`
	FileSizeMB  float64 `json:"file_size_mb,omitempty" yaml:"file_size_mb,omitempty"`
}

type ControlsInfo struct {
	Devices        []string `json:"devices,omitempty" yaml:"devices,omitempty"`
	Format         string   `json:"format,omitempty" yaml:"format,omitempty"`
	TimestampClock string   `json:"timestamp_clock,omitempty" yaml:"timestamp_clock,omitempty"`
	SampleRateHz   float64  `json:"sample_rate_hz,omitempty" yaml:"sample_rate_hz,omitempty"`
}

type Audio struct {
	Present bool `json:"present" yaml:"present"`
}

type Privacy struct {
	MicRecorded      bool   `json:"mic_recorded" yaml:"mic_recorded"`
	Overlays         bool   `json:"overlays" yaml:"overlays"`
	SinglePlayerOnly bool   `json:"single_player_only" yaml:"single_player_only"`
	Consent          string `json:"consent,omitempty" yaml:"consent,omitempty"`
}

type Timing struct {
	T0US     int64  `json:"t0_us" yaml:"t0_us"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

type Geo struct {
	H3 string `json:"h3" yaml:"h3"`
}

type Rights struct {
	PublisherLicense string `json:"publisher_license,omitempty" yaml:"publisher_license,omitempty"`
	PlayerConsentID  string `json:"player_consent_id,omitempty" yaml:"player_consent_id,omitempty"`
}

// MetaDocument is meta.json decoded twice: generically for structural
// checks and into Meta for typed access.
type MetaDocument struct {
	Raw  map[string]any
	Meta Meta
	// TypedErr is set when the document is valid JSON but does not fit Meta.
	TypedErr error
}

// ParseMeta decodes meta.json bytes. It fails only when data is not a JSON
// object.
func ParseMeta(data []byte) (*MetaDocument, error) {
	doc := &MetaDocument{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc.Raw); err != nil {
		return nil, fmt.Errorf("%w: meta.json: %w", ErrMalformed, err)
	}
	if doc.Raw == nil {
		return nil, fmt.Errorf("%w: meta.json is not an object", ErrMalformed)
	}
	if err := json.Unmarshal(data, &doc.Meta); err != nil {
		doc.TypedErr = err
	}
	return doc, nil
}

// LoadMeta reads and parses meta.json with a byte cap.
func LoadMeta(path string, maxBytes int64) (*MetaDocument, error) {
	data, err := ReadCapped(path, maxBytes)
	if err != nil {
		return nil, err
	}
	return ParseMeta(data)
}

// MetaOverrides names every field a producer may override on generated
// metadata. Nil fields leave the default untouched.
type MetaOverrides struct {
	Profile      *string
	SessionID    *string
	TitleName    *string
	Resolution   *string
	FPS          *float64
	BitrateMbps  *float64
	CFREnforced  *bool
	MicRecorded  *bool
	SampleRateHz *float64
	T0US         *int64
	DurationSec  *float64
}

// Apply writes the non-nil overrides into m.
func (o MetaOverrides) Apply(m *Meta) {
	setIf(&m.Profile, o.Profile)
	setIf(&m.SessionID, o.SessionID)
	setIf(&m.Title.Name, o.TitleName)
	setIf(&m.Display.Resolution, o.Resolution)
	setIf(&m.Display.FPS, o.FPS)
	setIf(&m.Video.BitrateMbps, o.BitrateMbps)
	setIf(&m.Video.CFREnforced, o.CFREnforced)
	setIf(&m.Privacy.MicRecorded, o.MicRecorded)
	setIf(&m.Controls.SampleRateHz, o.SampleRateHz)
	setIf(&m.Timing.T0US, o.T0US)
	setIf(&m.Video.DurationSec, o.DurationSec)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
