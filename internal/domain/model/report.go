// Package model contains domain models passed between layers.
package model

// Severity of a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category is the taxonomy of a finding.
type Category string

const (
	CategoryStructural Category = "structural"
	CategorySchema     Category = "schema"
	CategoryTemporal   Category = "temporal"
	CategoryIntegrity  Category = "integrity"
	CategoryProfile    Category = "profile"
	CategorySecurity   Category = "security"
)

// Stage names a validator check stage.
type Stage string

const (
	StageFileStructure   Stage = "file_structure"
	StageMeta            Stage = "meta"
	StageControls        Stage = "controls"
	StageHashes          Stage = "hashes"
	StageProfileSpecific Stage = "profile_specific"
)

// Stages lists the validator stages in execution order.
var Stages = []Stage{StageFileStructure, StageMeta, StageControls, StageHashes, StageProfileSpecific}

// Issue is one finding with its taxonomy.
type Issue struct {
	Stage    Stage    `json:"stage" yaml:"stage"`
	Category Category `json:"category" yaml:"category"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

// SyncStats describes control-to-frame alignment in milliseconds.
type SyncStats struct {
	MeanDeltaMS   float64 `json:"mean_delta_ms" yaml:"mean_delta_ms"`
	MedianDeltaMS float64 `json:"median_delta_ms" yaml:"median_delta_ms"`
	MaxDeltaMS    float64 `json:"max_delta_ms" yaml:"max_delta_ms"`
	P95DeltaMS    float64 `json:"p95_delta_ms" yaml:"p95_delta_ms"`
	Within8msPct  float64 `json:"within_8ms_pct" yaml:"within_8ms_pct"`
	Samples       int     `json:"samples" yaml:"samples"`
}

// ValidationReport is the result of one validator run. It is built once and
// never modified after it is returned.
type ValidationReport struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Profile  string   `json:"profile,omitempty" yaml:"profile,omitempty"`
	Strict   bool     `json:"strict,omitempty" yaml:"strict,omitempty"`
	Errors   []string `json:"errors" yaml:"errors"`
	Warnings []string `json:"warnings" yaml:"warnings"`
	// Checks maps each stage that ran to whether it produced no errors.
	Checks map[Stage]bool `json:"checks" yaml:"checks"`
	// NotRun lists stages skipped because a precondition failed.
	NotRun    []Stage    `json:"not_run,omitempty" yaml:"not_run,omitempty"`
	Issues    []Issue    `json:"issues" yaml:"issues"`
	SyncStats *SyncStats `json:"sync_stats,omitempty" yaml:"sync_stats,omitempty"`
}

// Passed reports whether a stage ran and passed.
func (r *ValidationReport) Passed(s Stage) bool {
	return r.Checks[s]
}

// Ran reports whether a stage ran at all.
func (r *ValidationReport) Ran(s Stage) bool {
	_, ok := r.Checks[s]
	return ok
}
