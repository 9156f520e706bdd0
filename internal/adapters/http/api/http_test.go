package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ShagaDAO/gap/internal/adapters/http/api"
	"github.com/ShagaDAO/gap/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v3"
)

type mockDependencies struct {
	mu        sync.Mutex
	jobs      map[string]model.Job
	submitted []model.AdmissionRequest
	full      bool
	failWith  error
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{jobs: map[string]model.Job{}}
}

func (m *mockDependencies) Defaults() model.AdmissionRequest {
	return model.AdmissionRequest{Profile: "gap-qat-v1", UpdateCache: true}
}

func (m *mockDependencies) Submit(_ context.Context, req model.AdmissionRequest) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return model.Job{}, fmt.Errorf("queue full: %w", api.ErrBackpressure)
	}
	if m.failWith != nil {
		return model.Job{}, m.failWith
	}
	m.submitted = append(m.submitted, req)
	j := model.Job{ID: fmt.Sprintf("job-%d", len(m.submitted)), Status: model.JobPending, Request: req}
	m.jobs[j.ID] = j
	return j, nil
}

func (m *mockDependencies) Job(_ context.Context, id string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return model.Job{}, fmt.Errorf("job %s: %w", id, api.ErrNotFound)
	}
	return j, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true, "workers": 2}})
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMockDependencies())

		Convey("Health reports ok as JSON", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("Health serves metrics to Prometheus scrapers", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			req.Header.Set("Accept", "text/plain")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/plain")
		})

		Convey("Metrics endpoint is served", func() {
			do(mux, http.MethodGet, "/healthz", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Stats returns the provider's map", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var got map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(got["started"], ShouldEqual, true)
		})

		Convey("Stats rejects other methods", func() {
			w := do(mux, http.MethodPost, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Unknown paths are not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAdmissions(t *testing.T) {
	Convey("Given the admissions endpoints", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("A submission is accepted with a job id", func() {
			w := do(mux, http.MethodPost, "/v1/admissions", `{"source":"/data/shard_000001"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Header().Get("Location"), ShouldEqual, "/v1/admissions/job-1")

			var resp map[string]string
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp["id"], ShouldEqual, "job-1")
			So(resp["status"], ShouldEqual, "pending")

			Convey("Unset fields take the service defaults", func() {
				So(deps.submitted, ShouldHaveLength, 1)
				So(deps.submitted[0].Profile, ShouldEqual, "gap-qat-v1")
				So(deps.submitted[0].UpdateCache, ShouldBeTrue)
				So(deps.submitted[0].Strict, ShouldBeFalse)
			})

			Convey("The job can be fetched as JSON", func() {
				w := do(mux, http.MethodGet, "/v1/admissions/job-1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var j model.Job
				So(json.Unmarshal(w.Body.Bytes(), &j), ShouldBeNil)
				So(j.ID, ShouldEqual, "job-1")
				So(j.Request.Source, ShouldEqual, "/data/shard_000001")
			})

			Convey("The job can be fetched as YAML", func() {
				w := do(mux, http.MethodGet, "/v1/admissions/job-1?format=yaml", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "application/yaml")
				var j model.Job
				So(yaml.Unmarshal(w.Body.Bytes(), &j), ShouldBeNil)
				So(j.Status, ShouldEqual, model.JobPending)
			})
		})

		Convey("Explicit fields override the defaults", func() {
			w := do(mux, http.MethodPost, "/v1/admissions",
				`{"source":"a.zip","profile":"","strict":true,"update_cache":false}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.submitted[0].Strict, ShouldBeTrue)
			So(deps.submitted[0].UpdateCache, ShouldBeFalse)
			So(deps.submitted[0].Profile, ShouldEqual, "gap-qat-v1")
		})

		Convey("A missing source is a bad request", func() {
			w := do(mux, http.MethodPost, "/v1/admissions", `{"source":"  "}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "missing source")
		})

		Convey("Malformed or unknown fields are bad requests", func() {
			So(do(mux, http.MethodPost, "/v1/admissions", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/v1/admissions", `{"source":"x","bogus":1}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A full queue answers 429", func() {
			deps.full = true
			w := do(mux, http.MethodPost, "/v1/admissions", `{"source":"x"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Body.String(), ShouldContainSubstring, "backpressure")
		})

		Convey("A refused source is a bad request", func() {
			deps.failWith = fmt.Errorf("%w: source outside root", api.ErrBadRequest)
			w := do(mux, http.MethodPost, "/v1/admissions", `{"source":"/etc"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "source outside root")
		})

		Convey("Other submit failures are internal errors", func() {
			deps.failWith = errors.New("store unavailable")
			w := do(mux, http.MethodPost, "/v1/admissions", `{"source":"x"}`)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("Submission only accepts POST", func() {
			So(do(mux, http.MethodGet, "/v1/admissions", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Unknown jobs are not found", func() {
			w := do(mux, http.MethodGet, "/v1/admissions/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Nested or empty ids are bad requests", func() {
			So(do(mux, http.MethodGet, "/v1/admissions/", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/v1/admissions/a/b", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestKindErrors(t *testing.T) {
	Convey("Kind errors match both their kind and cause", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("op", api.ErrBadRequest, cause)
		So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "op: bad request: boom")

		bare := api.NewKind("op", api.ErrBackpressure)
		So(errors.Is(bare, api.ErrBackpressure), ShouldBeTrue)
		So(bare.Error(), ShouldEqual, "op: backpressure")
	})
}
