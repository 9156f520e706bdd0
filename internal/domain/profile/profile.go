// Package profile holds named presets of stricter-than-baseline shard
// requirements.
package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/internal/domain/shard"
)

// Owl is the event-stream capture profile family.
const Owl = "wayfarer-owl"

// Profile is one preset. Resolution and FPS apply only to the baseline,
// i.e. when the requested name equals Name exactly.
type Profile struct {
	Name           string
	Controls       shard.ControlsFormat
	Resolution     string
	FPS            float64
	RequireCFR     bool
	ForbidMic      bool
	MinBitrateMbps float64
	TargetMbps     float64
	EventTypes     []string
}

// EventStream reports whether the profile records discrete input events.
func (p Profile) EventStream() bool { return p.Controls == shard.FormatJSONL }

// Registry resolves requested profile names to presets by family prefix.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry builds a registry from presets.
func NewRegistry(presets ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile, len(presets))}
	for _, p := range presets {
		r.profiles[p.Name] = p
	}
	return r
}

// DefaultRegistry knows the wayfarer-owl family.
func DefaultRegistry() *Registry {
	return NewRegistry(Profile{
		Name:           Owl,
		Controls:       shard.FormatJSONL,
		Resolution:     "1920x1080",
		FPS:            60,
		RequireCFR:     true,
		ForbidMic:      true,
		MinBitrateMbps: 20,
		TargetMbps:     25,
		EventTypes:     []string{shard.EventKey, shard.EventMouse, shard.EventPad},
	})
}

// Lookup returns the preset whose family the requested name belongs to.
// The longest matching family wins.
func (r *Registry) Lookup(requested string) (Profile, bool) {
	var (
		best  Profile
		found bool
	)
	for name, p := range r.profiles {
		if strings.HasPrefix(requested, name) && (!found || len(name) > len(best.Name)) {
			best, found = p, true
		}
	}
	return best, found
}

// Names lists registered families.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ExpectedControls returns the controls format a requested profile expects.
// Without a known profile the columnar table is expected.
func (r *Registry) ExpectedControls(requested string) shard.ControlsFormat {
	if p, ok := r.Lookup(requested); ok {
		return p.Controls
	}
	return shard.FormatParquet
}

// Input is what the profile rules look at.
type Input struct {
	Requested string
	Strict    bool
	Meta      *shard.Meta
	// FirstEvent holds the raw fields of the first control record, nil when
	// the stream is not an event stream or could not be read.
	FirstEvent map[string]json.RawMessage
}

func finding(sev model.Severity, cat model.Category, format string, args ...any) model.Issue {
	return model.Issue{Stage: model.StageProfileSpecific, Severity: sev, Category: cat, Message: fmt.Sprintf(format, args...)}
}

// Check applies the preset to the input and returns its findings.
func (p Profile) Check(in Input) []model.Issue {
	var out []model.Issue
	warn := func(cat model.Category, format string, args ...any) {
		out = append(out, finding(model.SeverityWarning, cat, format, args...))
	}
	fail := func(cat model.Category, format string, args ...any) {
		out = append(out, finding(model.SeverityError, cat, format, args...))
	}

	if in.Meta == nil {
		warn(model.CategoryProfile, "Could not validate %s requirements: meta.json unavailable", p.Name)
	} else {
		m := in.Meta
		if in.Requested == p.Name {
			if p.Resolution != "" && m.Display.Resolution != p.Resolution {
				warn(model.CategoryProfile, "%s baseline expects %s, got %s", p.Name, p.Resolution, m.Display.Resolution)
			}
			if p.FPS > 0 && m.Display.FPS != p.FPS {
				warn(model.CategoryProfile, "%s baseline expects %gfps, got %g", p.Name, p.FPS, m.Display.FPS)
			}
		}
		switch {
		case m.Profile == "":
			warn(model.CategoryProfile, "Profile field missing from meta.json")
		case !strings.HasPrefix(m.Profile, p.Name):
			warn(model.CategoryProfile, "Profile mismatch: expected %s.*, got %s", p.Name, m.Profile)
		}
		if p.ForbidMic && m.Privacy.MicRecorded {
			fail(model.CategoryProfile, "%s profile prohibits mic recording", p.Name)
		}
		if p.RequireCFR && !m.Video.CFREnforced {
			warn(model.CategoryProfile, "%s profile strongly recommends CFR enforcement", p.Name)
		}
		if b := m.Video.BitrateMbps; p.MinBitrateMbps > 0 && b > 0 && b < p.MinBitrateMbps {
			if in.Strict {
				fail(model.CategoryProfile, "%s baseline expects ~%g Mbps, got %g Mbps", p.Name, p.TargetMbps, b)
			} else {
				warn(model.CategoryProfile, "%s baseline expects ~%g Mbps, got %g Mbps (advisory)", p.Name, p.TargetMbps, b)
			}
		}
	}

	if p.EventStream() && in.FirstEvent != nil {
		if _, ok := in.FirstEvent["type"]; !ok {
			fail(model.CategorySchema, "%s controls missing 'type' field", p.Name)
		}
		if _, ok := in.FirstEvent["t_us"]; !ok {
			fail(model.CategorySchema, "%s controls missing 't_us' timestamp", p.Name)
		}
		var typ string
		_ = json.Unmarshal(in.FirstEvent["type"], &typ)
		if !contains(p.EventTypes, typ) {
			warn(model.CategorySchema, "Unexpected event type: %q", typ)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
