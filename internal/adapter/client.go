package adapter

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

	"github.com/jmehdipour/staffing-awards/internal/config"
	"github.com/jmehdipour/staffing-awards/internal/metrics"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/util"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

// restClient is the authenticated JSON transport shared by every adapter.
type restClient struct {
	target  model.Target
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	br      *MicroBreaker
}

func newRESTClient(target model.Target, cfg config.IntegrationConfig) *restClient {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}

	failThreshold := cfg.Breaker.FailThreshold
	if failThreshold <= 0 {
		failThreshold = 3
	}

	openForMs := cfg.Breaker.OpenForMs
	if openForMs <= 0 {
		openForMs = 15000
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &restClient{
		target:  target,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		limiter: rate.NewLimiter(limit, burst),
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

// do sends in as JSON and decodes a 2xx body into out when out is non-nil.
// Only transport errors, 5xx, 408 and 429 count against the breaker.
func (c *restClient) do(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: rate limit: %w", c.target, op, err)
	}
	if !c.br.TryAcquire() {
		return fmt.Errorf("%s %s: %w", c.target, op, ErrCircuitOpen)
	}

	start := time.Now()
	err := c.send(ctx, op, method, path, in, out)

	outcome := "ok"
	var apiErr *APIError
	switch {
	case err == nil:
		c.br.OnSuccess()
	case errors.As(err, &apiErr) && (apiErr.Permanent() || apiErr.Status == http.StatusConflict):
		c.br.OnSuccess()
		outcome = "rejected"
	default:
		c.br.OnFailure()
		outcome = "error"
	}
	metrics.ExternalRequestSeconds.WithLabelValues(c.target.String(), op, outcome).Observe(time.Since(start).Seconds())

	return err
}

func (c *restClient) send(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: marshal: %w", c.target, op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.target, op, err)
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		body := util.TruncateUTF8(strings.TrimSpace(string(raw)), maxErrorBody)
		return &APIError{Target: c.target, Op: op, Status: res.StatusCode, Body: body}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.target, op, err)
	}
	return nil
}

// setIf adds non-empty values so updates never blank existing fields.
func setIf(props map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		props[key] = v
	}
}
