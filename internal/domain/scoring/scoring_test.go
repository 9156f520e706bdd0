package scoring_test

import (
	"testing"

	"github.com/ShagaDAO/gap/internal/domain/fingerprint"
	"github.com/ShagaDAO/gap/internal/domain/model"
	scoring "github.com/ShagaDAO/gap/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecide(t *testing.T) {
	Convey("Given the default point table", t, func() {
		Convey("Close video and controls are flagged", func() {
			d := scoring.Decide(5, 5)
			So(d.RiskScore, ShouldEqual, 70)
			So(d.Action, ShouldEqual, model.ActionFlag)
			So(d.RiskLevel, ShouldEqual, model.RiskHigh)
		})

		Convey("Distant content is accepted", func() {
			d := scoring.Decide(50, 50)
			So(d.RiskScore, ShouldEqual, 0)
			So(d.Action, ShouldEqual, model.ActionAccept)
			So(d.RiskLevel, ShouldEqual, model.RiskLow)
		})

		Convey("Each tier boundary is inclusive", func() {
			cases := []struct {
				video, controls int
				score           int
				action          model.Action
			}{
				{8, 17, 40, model.ActionReview},
				{9, 17, 20, model.ActionAccept},
				{16, 16, 35, model.ActionReview},
				{17, 8, 30, model.ActionReview},
				{17, 16, 15, model.ActionAccept},
				{8, 16, 55, model.ActionFlag},
				{0, 0, 70, model.ActionFlag},
			}
			for _, c := range cases {
				d := scoring.Decide(c.video, c.controls)
				So(d.RiskScore, ShouldEqual, c.score)
				So(d.Action, ShouldEqual, c.action)
			}
		})

		Convey("Unknown fingerprints contribute nothing", func() {
			d := scoring.Decide(fingerprint.NoMatch, fingerprint.NoMatch)
			So(d.RiskScore, ShouldEqual, 0)
			So(d.Action, ShouldEqual, model.ActionAccept)
		})

		Convey("The result depends only on the two distances", func() {
			So(scoring.Decide(3, 12), ShouldResemble, scoring.Decide(3, 12))
		})
	})

	Convey("Given heavier weights", t, func() {
		s := scoring.NewScorer(scoring.WithWeights(scoring.Weights{VideoHigh: 50, VideoMedium: 25, ControlsHigh: 50, ControlsMedium: 25}))

		Convey("Exact duplicates are rejected", func() {
			d := s.Decide(0, 0)
			So(d.RiskScore, ShouldEqual, 100)
			So(d.Action, ShouldEqual, model.ActionReject)
			So(d.RiskLevel, ShouldEqual, model.RiskHigh)
		})
	})
}

func TestEstimateAcceptance(t *testing.T) {
	Convey("Given local check outcomes", t, func() {
		accept := &model.AdmissionDecision{RiskScore: 0, Action: model.ActionAccept}
		review := &model.AdmissionDecision{RiskScore: 35, Action: model.ActionReview}

		Convey("A valid, unique shard is likely accepted", func() {
			a := scoring.EstimateAcceptance(true, accept)
			So(a.Outcome, ShouldEqual, model.OutcomeLikely)
			So(a.Probability, ShouldAlmostEqual, 0.95, 1e-9)
			So(a.ShouldSend, ShouldBeTrue)
		})

		Convey("Duplicate risk lowers the estimate", func() {
			a := scoring.EstimateAcceptance(true, review)
			So(a.Probability, ShouldAlmostEqual, 0.195, 1e-9)
			So(a.Outcome, ShouldEqual, model.OutcomeReject)
			So(a.ShouldSend, ShouldBeFalse)
		})

		Convey("An invalid but unique shard is unlikely", func() {
			a := scoring.EstimateAcceptance(false, accept)
			So(a.Probability, ShouldAlmostEqual, 0.2, 1e-9)
			So(a.Outcome, ShouldEqual, model.OutcomeUnlikely)
		})

		Convey("The penalty is capped", func() {
			a := scoring.EstimateAcceptance(false, &model.AdmissionDecision{RiskScore: 100, Action: model.ActionReject})
			So(a.Probability, ShouldAlmostEqual, 0.01, 1e-9)
			So(a.Outcome, ShouldEqual, model.OutcomeReject)
		})

		Convey("A missing decision counts as the worst case", func() {
			a := scoring.EstimateAcceptance(true, nil)
			So(a.Probability, ShouldAlmostEqual, 0.06, 1e-9)
		})
	})
}
