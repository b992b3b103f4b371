package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// HTTPExecutor treats a remote HTTP endpoint as the fuzz target:
// request bodies carry the mutated input, and observation lines are
// parsed out of the response body (headers are not read), per
// SPEC_FULL.md §6.1. Grounded on the teacher's internal/requester
// (fasthttp client + golang.org/x/time/rate limiter).
type HTTPExecutor struct {
	URL       string
	Method    string
	UserAgent string

	client  *fasthttp.Client
	limiter *rate.Limiter
}

// HTTPExecutorOptions configures an HTTPExecutor.
type HTTPExecutorOptions struct {
	Method              string
	RPS                 float64
	Timeout             time.Duration
	MaxConnsPerHost     int
	MaxIdleConnDuration time.Duration
	UserAgent           string
	SkipTLSVerify       bool
}

// DefaultHTTPExecutorOptions mirrors the teacher's DefaultClientOptions.
func DefaultHTTPExecutorOptions() HTTPExecutorOptions {
	return HTTPExecutorOptions{
		Method:              fasthttp.MethodPost,
		RPS:                 100,
		Timeout:             10 * time.Second,
		MaxConnsPerHost:     500,
		MaxIdleConnDuration: 10 * time.Second,
		UserAgent:           "execstatefuzzer/1.0",
		SkipTLSVerify:       true,
	}
}

// NewHTTPExecutor builds an HTTPExecutor targeting url.
func NewHTTPExecutor(url string, opts HTTPExecutorOptions) *HTTPExecutor {
	client := &fasthttp.Client{
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		MaxIdleConnDuration: opts.MaxIdleConnDuration,
		ReadTimeout:         opts.Timeout,
		WriteTimeout:        opts.Timeout,
		TLSConfig:           &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify},
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 100
	}
	return &HTTPExecutor{
		URL:       url,
		Method:    opts.Method,
		UserAgent: opts.UserAgent,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// Execute sends input as the request body, rate-limited by the
// configured RPS, and returns the response body as Stdout so
// internal/harness can parse it with the same "name: value" token
// scanner used for subprocess output.
func (h *HTTPExecutor) Execute(ctx context.Context, input []byte) (Result, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("executor: rate limiter wait: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(h.URL)
	req.Header.SetMethod(h.Method)
	req.Header.SetUserAgent(h.UserAgent)
	if len(input) > 0 {
		req.SetBody(input)
	}

	start := time.Now()
	deadline, hasDeadline := ctx.Deadline()
	var err error
	if hasDeadline {
		err = h.client.DoDeadline(req, resp, deadline)
	} else {
		err = h.client.Do(req, resp)
	}
	elapsed := time.Since(start)

	if err != nil {
		timedOut := ctx.Err() == context.DeadlineExceeded
		return Result{
			Duration:  elapsed,
			Crashed:   !timedOut,
			TimedOut:  timedOut,
			CrashInfo: err.Error(),
		}, nil
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	if resp.StatusCode() >= 500 {
		return Result{
			Stdout:    body,
			Duration:  elapsed,
			Crashed:   true,
			CrashInfo: fmt.Sprintf("server error: status %d", resp.StatusCode()),
		}, nil
	}
	return Result{Stdout: body, Duration: elapsed}, nil
}
