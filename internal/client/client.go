// Package client talks to a running gapd over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/pkg/logger"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	maxErrorBody        = 4 << 10
)

// Errors returned for API answers the caller may want to act on.
var (
	ErrBackpressure = errors.New("server queue is full")
	ErrNotFound     = errors.New("job not found")
	ErrUnhealthy    = errors.New("server unhealthy")
)

// Client submits admissions and polls their reports.
type Client struct {
	baseURL string
	http    *http.Client
	poll    time.Duration
	logger  logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithPollInterval sets how often Wait asks for a job's status.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.poll = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		poll:    defaultPollInterval,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks that the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer c.close(ctx, resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

type submitBody struct {
	Source      string `json:"source"`
	Profile     string `json:"profile,omitempty"`
	Strict      *bool  `json:"strict,omitempty"`
	UpdateCache *bool  `json:"update_cache,omitempty"`
}

// Submission is one admission to send. Nil flags leave the server's
// defaults in place.
type Submission struct {
	Source      string
	Profile     string
	Strict      *bool
	UpdateCache *bool
}

// Submit queues an admission and returns the pending job.
func (c *Client) Submit(ctx context.Context, s Submission) (model.Job, error) {
	body, err := json.Marshal(submitBody(s))
	if err != nil {
		return model.Job{}, fmt.Errorf("failed to marshal request body: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/v1/admissions", body)
	if err != nil {
		return model.Job{}, err
	}
	defer c.close(ctx, resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
	case http.StatusTooManyRequests:
		return model.Job{}, ErrBackpressure
	default:
		return model.Job{}, apiError(resp)
	}
	var ack struct {
		ID     string          `json:"id"`
		Status model.JobStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return model.Job{}, fmt.Errorf("decode submit response: %w", err)
	}
	return model.Job{ID: ack.ID, Status: ack.Status, Request: model.AdmissionRequest{Source: s.Source, Profile: s.Profile}}, nil
}

// Job fetches the current state of a job.
func (c *Client) Job(ctx context.Context, id string) (model.Job, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/admissions/"+id, nil)
	if err != nil {
		return model.Job{}, err
	}
	defer c.close(ctx, resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return model.Job{}, apiError(resp)
	}
	var j model.Job
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return model.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

// Wait polls until the job finishes or ctx ends.
func (c *Client) Wait(ctx context.Context, id string) (model.Job, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		j, err := c.Job(ctx, id)
		if err != nil {
			return model.Job{}, err
		}
		if j.Status.Terminal() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, fmt.Errorf("waiting for %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// SubmitAll sends every submission and waits for each report, running at
// most workers at a time. Results keep the input order. The first
// transport error cancels the rest.
func (c *Client) SubmitAll(ctx context.Context, subs []Submission, workers int) ([]model.Job, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]model.Job, len(subs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range subs {
		g.Go(func() error {
			j, err := c.Submit(gctx, s)
			if err != nil {
				return fmt.Errorf("submit %s: %w", s.Source, err)
			}
			c.logger.Debug(gctx, "submitted", logger.String("job", j.ID), logger.String("source", s.Source))
			done, err := c.Wait(gctx, j.ID)
			if err != nil {
				return err
			}
			out[i] = done
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) close(ctx context.Context, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.Error(ctx, "failed to close response body", logger.Error(err))
	}
}

func apiError(resp *http.Response) error {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		return fmt.Errorf("server returned %d %s: %s", resp.StatusCode, e.Code, e.Message)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
