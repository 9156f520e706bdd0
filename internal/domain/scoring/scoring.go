// Package scoring turns fingerprint distances into an admission decision
// and estimates whether an ingest server would accept the shard.
package scoring

import (
	"math"

	"github.com/ShagaDAO/gap/internal/domain/fingerprint"
	"github.com/ShagaDAO/gap/internal/domain/model"
)

// Points awarded per content kind at each risk tier.
const (
	videoHighPoints      = 40
	videoMediumPoints    = 20
	controlsHighPoints   = 30
	controlsMediumPoints = 15
)

// Action thresholds on the risk score, inclusive.
const (
	rejectScore = 80
	flagScore   = 50
	reviewScore = 30
)

// Weights sets how many points each kind contributes at the high and
// medium tiers.
type Weights struct {
	VideoHigh      int
	VideoMedium    int
	ControlsHigh   int
	ControlsMedium int
}

// DefaultWeights gives video up to 40 points and controls up to 30.
func DefaultWeights() Weights {
	return Weights{
		VideoHigh:      videoHighPoints,
		VideoMedium:    videoMediumPoints,
		ControlsHigh:   controlsHighPoints,
		ControlsMedium: controlsMediumPoints,
	}
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights replaces the point table.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		s.weights = w
	}
}

// Scorer maps minimum fingerprint distances to a decision. It has no state
// beyond its point table.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the default point table.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultScorer = NewScorer()

// Decide scores two distances with the default point table.
func Decide(videoDistance, controlsDistance int) model.AdmissionDecision {
	return defaultScorer.Decide(videoDistance, controlsDistance)
}

// Decide combines the video and controls minimum distances. Unknown
// fingerprints are passed as fingerprint.NoMatch and contribute nothing.
func (s *Scorer) Decide(videoDistance, controlsDistance int) model.AdmissionDecision {
	score := points(videoDistance, s.weights.VideoHigh, s.weights.VideoMedium) +
		points(controlsDistance, s.weights.ControlsHigh, s.weights.ControlsMedium)
	score = max(0, min(100, score))

	d := model.AdmissionDecision{RiskScore: score}
	switch {
	case score >= rejectScore:
		d.Action, d.RiskLevel = model.ActionReject, model.RiskHigh
	case score >= flagScore:
		d.Action, d.RiskLevel = model.ActionFlag, model.RiskHigh
	case score >= reviewScore:
		d.Action, d.RiskLevel = model.ActionReview, model.RiskMedium
	default:
		d.Action, d.RiskLevel = model.ActionAccept, model.RiskLow
	}
	return d
}

func points(distance, high, medium int) int {
	switch fingerprint.RiskForDistance(distance) {
	case model.RiskHigh:
		return high
	case model.RiskMedium:
		return medium
	default:
		return 0
	}
}

// Acceptance probability bases by outcome of the two gates.
const (
	baseBothPassed     = 0.95
	baseDuplicateRisk  = 0.3
	baseValidityFailed = 0.2
	baseBothFailed     = 0.05
	maxRiskPenalty     = 0.8
)

// EstimateAcceptance predicts the ingest outcome from local validity and
// the duplicate decision. A nil decision counts as the worst score.
func EstimateAcceptance(valid bool, d *model.AdmissionDecision) model.Acceptance {
	score := 100
	clean := false
	if d != nil {
		score = d.RiskScore
		clean = d.Action == model.ActionAccept
	}

	var base float64
	switch {
	case valid && clean:
		base = baseBothPassed
	case valid:
		base = baseDuplicateRisk
	case clean:
		base = baseValidityFailed
	default:
		base = baseBothFailed
	}
	penalty := math.Min(float64(score)/100, maxRiskPenalty)
	p := base * (1 - penalty)

	a := model.Acceptance{Probability: math.Round(p*1e4) / 1e4}
	switch {
	case p >= 0.8:
		a.Outcome, a.Reason = model.OutcomeLikely, "Upload recommended: high acceptance probability"
	case p >= 0.5:
		a.Outcome, a.Reason = model.OutcomeModerate, "Upload possible: moderate acceptance probability"
	case p >= 0.2:
		a.Outcome, a.Reason = model.OutcomeUnlikely, "Upload risky: low acceptance probability"
	default:
		a.Outcome, a.Reason = model.OutcomeReject, "Upload not recommended: very low acceptance probability"
	}
	a.ShouldSend = a.Outcome == model.OutcomeLikely || a.Outcome == model.OutcomeModerate
	return a
}
