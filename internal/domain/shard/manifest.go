package shard

import (
	"encoding/json"
	"fmt"
	"sort"
)

// WatermarkSample is one frame watermark proof.
type WatermarkSample struct {
	FrameIdx int64  `json:"frame_idx"`
	Proof    string `json:"proof"`
}

// Manifest is the integrity manifest stored in hashes.json.
type Manifest struct {
	// SHA256 maps member names to lowercase hex digests. Nil when the
	// section is absent.
	SHA256               map[string]string `json:"sha256"`
	FrameWatermarkSample []WatermarkSample `json:"frame_watermark_sample"`
	// WatermarksListed is false when frame_watermark_sample is missing or
	// not a list.
	WatermarksListed bool `json:"-"`
}

// Names returns the manifest entries in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.SHA256))
	for n := range m.SHA256 {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseManifest decodes hashes.json. A sha256 section of the wrong shape is
// an error; watermark problems are reported through WatermarksListed.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: hashes.json: %w", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: hashes.json is not an object", ErrMalformed)
	}
	m := &Manifest{}
	if v, ok := raw["sha256"]; ok {
		if err := json.Unmarshal(v, &m.SHA256); err != nil {
			return nil, fmt.Errorf("%w: hashes.json sha256 must map names to digests: %w", ErrMalformed, err)
		}
		if m.SHA256 == nil {
			m.SHA256 = map[string]string{}
		}
	}
	if v, ok := raw["frame_watermark_sample"]; ok {
		if err := json.Unmarshal(v, &m.FrameWatermarkSample); err == nil && m.FrameWatermarkSample != nil {
			m.WatermarksListed = true
		}
	}
	return m, nil
}

// LoadManifest reads and parses hashes.json with a byte cap.
func LoadManifest(path string, maxBytes int64) (*Manifest, error) {
	data, err := ReadCapped(path, maxBytes)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}
