package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ShagaDAO/gap/internal/adapters/http/api"
	"github.com/ShagaDAO/gap/internal/app"
	"github.com/ShagaDAO/gap/internal/client"
	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// echoAdmitter accepts every source except ones containing "bad".
type echoAdmitter struct{}

func (echoAdmitter) Admit(_ context.Context, req model.AdmissionRequest) (*model.AdmissionReport, error) {
	if strings.Contains(req.Source, "bad") {
		return nil, errors.New("source not found")
	}
	return &model.AdmissionReport{
		Source:     req.Source,
		Validation: &model.ValidationReport{Valid: true, Profile: req.Profile, Strict: req.Strict},
		Decision:   &model.AdmissionDecision{Action: model.ActionAccept, RiskLevel: model.RiskLow},
	}, nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.New()
	cfg.WorkerCount = 2
	cfg.QueueSize = 16
	cfg.DefaultProfile = "wayfarer-owl"
	svc := app.New(cfg, app.WithAdmitter(echoAdmitter{}), app.WithLogger(logger.Discard()))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(context.Background())
	})
	return srv
}

func TestClient(t *testing.T) {
	Convey("Given a client for a running server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv := newServer(t)
		c := client.New(srv.URL+"/", client.WithPollInterval(5*time.Millisecond))

		Convey("Health succeeds", func() {
			So(c.Health(ctx), ShouldBeNil)
		})

		Convey("A submission can be waited on", func() {
			strict := true
			j, err := c.Submit(ctx, client.Submission{Source: "/shards/a", Strict: &strict})
			So(err, ShouldBeNil)
			So(j.ID, ShouldNotBeEmpty)

			done, err := c.Wait(ctx, j.ID)
			So(err, ShouldBeNil)
			So(done.Status, ShouldEqual, model.JobDone)
			So(done.Report.Validation.Profile, ShouldEqual, "wayfarer-owl")
			So(done.Report.Validation.Strict, ShouldBeTrue)
		})

		Convey("A failed admission comes back as a failed job", func() {
			j, err := c.Submit(ctx, client.Submission{Source: "/shards/bad"})
			So(err, ShouldBeNil)
			done, err := c.Wait(ctx, j.ID)
			So(err, ShouldBeNil)
			So(done.Status, ShouldEqual, model.JobFailed)
			So(done.Error, ShouldContainSubstring, "source not found")
		})

		Convey("Unknown jobs map to ErrNotFound", func() {
			_, err := c.Job(ctx, "nope")
			So(errors.Is(err, client.ErrNotFound), ShouldBeTrue)
		})

		Convey("Server-side validation errors carry the message", func() {
			_, err := c.Submit(ctx, client.Submission{Source: " "})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing source")
		})

		Convey("SubmitAll keeps input order", func() {
			subs := []client.Submission{{Source: "/s/1"}, {Source: "/s/2"}, {Source: "/s/3"}}
			jobs, err := c.SubmitAll(ctx, subs, 2)
			So(err, ShouldBeNil)
			So(jobs, ShouldHaveLength, 3)
			for i, j := range jobs {
				So(j.Report.Source, ShouldEqual, subs[i].Source)
			}
		})
	})

	Convey("A server answering 429 maps to ErrBackpressure", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		_, err := client.New(srv.URL).Submit(context.Background(), client.Submission{Source: "x"})
		So(errors.Is(err, client.ErrBackpressure), ShouldBeTrue)
	})

	Convey("An unreachable server fails the health check", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		So(client.New(url, client.WithTimeout(time.Second)).Health(context.Background()), ShouldNotBeNil)
	})
}
