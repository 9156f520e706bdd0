package model

// RiskLevel is the duplicate risk tier.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskUnknown RiskLevel = "unknown"
)

// Action is the admission outcome.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReview Action = "review"
	ActionFlag   Action = "flag"
	ActionReject Action = "reject"
)

// AdmissionDecision is derived from fingerprint distances; it is never
// stored on its own.
type AdmissionDecision struct {
	RiskScore int       `json:"risk_score" yaml:"risk_score"`
	RiskLevel RiskLevel `json:"risk_level" yaml:"risk_level"`
	Action    Action    `json:"action" yaml:"action"`
}

// FingerprintResult is the duplicate check for one content kind.
type FingerprintResult struct {
	// Hashes are the computed fingerprints as 16-digit hex.
	Hashes []string `json:"hashes" yaml:"hashes"`
	// MinDistance is the smallest Hamming distance to a known fingerprint,
	// 64 when nothing was compared.
	MinDistance int       `json:"min_distance" yaml:"min_distance"`
	Risk        RiskLevel `json:"risk" yaml:"risk"`
	Compared    int       `json:"compared" yaml:"compared"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Outcome is the estimated server-side acceptance.
type Outcome string

const (
	OutcomeLikely   Outcome = "likely_accept"
	OutcomeModerate Outcome = "moderate_accept"
	OutcomeUnlikely Outcome = "unlikely_accept"
	OutcomeReject   Outcome = "reject"
)

// Acceptance estimates whether an ingest server would take the shard.
type Acceptance struct {
	Outcome     Outcome `json:"outcome" yaml:"outcome"`
	Probability float64 `json:"probability" yaml:"probability"`
	ShouldSend  bool    `json:"should_send" yaml:"should_send"`
	Reason      string  `json:"reason" yaml:"reason"`
}

// ExtractionSummary describes an unpacked archive.
type ExtractionSummary struct {
	Format string `json:"format" yaml:"format"`
	Files  int    `json:"files" yaml:"files"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
}

// AdmissionReport is the full output of one admission.
type AdmissionReport struct {
	Source       string             `json:"source" yaml:"source"`
	Extraction   *ExtractionSummary `json:"extraction,omitempty" yaml:"extraction,omitempty"`
	Validation   *ValidationReport  `json:"validation" yaml:"validation"`
	Video        *FingerprintResult `json:"video,omitempty" yaml:"video,omitempty"`
	Controls     *FingerprintResult `json:"controls,omitempty" yaml:"controls,omitempty"`
	Decision     *AdmissionDecision `json:"decision,omitempty" yaml:"decision,omitempty"`
	Acceptance   *Acceptance        `json:"acceptance,omitempty" yaml:"acceptance,omitempty"`
	CacheUpdated bool               `json:"cache_updated" yaml:"cache_updated"`
	CacheError   string             `json:"cache_error,omitempty" yaml:"cache_error,omitempty"`
	DurationMS   int64              `json:"duration_ms" yaml:"duration_ms"`
}
