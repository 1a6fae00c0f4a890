// Package executor issues single HTTP requests, runs the check sequence
// against each response, and records the outcome into the metrics sink.
package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ioc-labs/surge/internal/config"
	"github.com/ioc-labs/surge/internal/metrics"
	"github.com/ioc-labs/surge/internal/shape"
)

// maxBodyBytes bounds how much of a response body is kept for checks.
const maxBodyBytes = 10 << 20

// TokenSource supplies bearer tokens for the Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// RequestResult is the outcome of a single request. It is not retained after recording.
type RequestResult struct {
	Name          string
	Method        string
	URL           string
	StatusCode    int
	Duration      time.Duration
	BytesReceived int64
	Body          []byte
	Tags          map[string]string
	Error         error
	Checks        []CheckResult

	// Recorded is false when the request was never issued because ctx was
	// already done, or when the sink was closed before it completed
	Recorded bool
}

// Passed reports whether the request succeeded and every check passed.
func (r *RequestResult) Passed() bool {
	if r.Error != nil {
		return false
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// FailedChecks returns the names of failed checks.
func (r *RequestResult) FailedChecks() []string {
	var failed []string
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// Options configures an Executor.
type Options struct {
	BaseURL   string
	UserAgent string
	Headers   map[string]string
	Checks    *CheckSet
	Tokens    TokenSource
	Logger    *zap.Logger
}

// Executor performs requests against the target service.
//
// Executor is safe for concurrent use; all workers share one instance.
type Executor struct {
	client  *http.Client
	sink    *metrics.Sink
	baseURL string
	ua      string
	headers map[string]string
	checks  *CheckSet
	tokens  TokenSource
	logger  *zap.Logger
}

// New creates an executor that records into sink.
func New(client *http.Client, sink *metrics.Sink, opts Options) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Checks == nil {
		opts.Checks, _ = NewCheckSet(nil)
	}
	return &Executor{
		client:  client,
		sink:    sink,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		ua:      opts.UserAgent,
		headers: opts.Headers,
		checks:  opts.Checks,
		tokens:  opts.Tokens,
		logger:  opts.Logger,
	}
}

// NewHTTPClient builds the shared client used by every worker.
func NewHTTPClient(s config.GlobalSettings) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: s.MaxIdleConnsPerHost,
		MaxConnsPerHost:     s.MaxConnectionsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	if s.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   s.Timeout.GetDuration(30 * time.Second),
	}
}

// URL resolves a request path against the base URL.
func (e *Executor) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.baseURL + path
}

// Do sends one request with the default headers and returns the status, body
// and duration. It does not run checks or record metrics.
func (e *Executor) Do(ctx context.Context, method, path string) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.URL(path), nil)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if err := e.applyHeaders(req); err != nil {
		return 0, nil, 0, err
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, time.Since(start), err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	duration := time.Since(start)
	if err != nil {
		return resp.StatusCode, body, duration, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, duration, nil
}

// Execute performs spec, runs the check sequence and records the outcome.
//
// It never returns a Go error: transport failures are carried in the result
// and count as failed checks. If ctx is already done nothing is sent or
// recorded. Once sent, a request is allowed to complete even if ctx is
// cancelled mid-flight; the client timeout still applies.
func (e *Executor) Execute(ctx context.Context, spec shape.RequestSpec, tags map[string]string) *RequestResult {
	result := &RequestResult{
		Name:   spec.Name,
		Method: spec.Method,
		URL:    e.URL(spec.Path),
		Tags:   mergeTags(tags, spec.Tags),
	}

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	status, body, duration, err := e.Do(context.WithoutCancel(ctx), method, spec.Path)
	result.StatusCode = status
	result.Body = body
	result.BytesReceived = int64(len(body))
	result.Duration = duration
	result.Error = err
	result.Checks = e.checks.Run(status, duration, body, err)
	result.Recorded = true

	e.record(result)
	return result
}

func (e *Executor) applyHeaders(req *http.Request) error {
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}
	if e.ua != "" {
		req.Header.Set("User-Agent", e.ua)
	}
	if e.tokens != nil {
		token, err := e.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to obtain token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (e *Executor) record(r *RequestResult) {
	ms := float64(r.Duration) / float64(time.Millisecond)
	failed := r.Error != nil || r.StatusCode >= 400
	passed := r.Passed()

	err := e.sink.Batch(func() {
		e.add(e.sink.Add(metrics.HTTPReqs, 1))
		e.add(e.sink.AddTrend(metrics.HTTPReqDuration, ms))
		e.add(e.sink.AddTrend(metrics.ResponseTime, ms))
		if len(r.Tags) > 0 {
			e.add(e.sink.AddTrend(metrics.TaggedName(metrics.ResponseTime, r.Tags), ms))
		}
		e.add(e.sink.AddRate(metrics.HTTPReqFailed, failed))

		for _, c := range r.Checks {
			e.add(e.sink.AddRate(metrics.Checks, c.Passed))
			e.add(e.sink.AddRate(metrics.TaggedName(metrics.Checks, map[string]string{"check": c.Name}), c.Passed))
		}

		if passed {
			e.add(e.sink.Add(metrics.SuccessfulRequests, 1))
			e.add(e.sink.AddRate(metrics.Errors, false))
		} else {
			e.add(e.sink.AddRate(metrics.Errors, true))
		}
	})
	if err != nil {
		r.Recorded = false
		return
	}
	if passed {
		return
	}

	fields := []zap.Field{
		zap.String("endpoint", r.URL),
		zap.String("method", r.Method),
		zap.Int("status", r.StatusCode),
		zap.Duration("duration", r.Duration),
		zap.Strings("failed_checks", r.FailedChecks()),
	}
	if r.Error != nil {
		fields = append(fields, zap.Error(r.Error))
	}
	e.logger.Warn("request failed checks", fields...)
}

func (e *Executor) add(err error) {
	if err != nil {
		e.logger.Debug("metric not recorded", zap.Error(err))
	}
}

func mergeTags(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
