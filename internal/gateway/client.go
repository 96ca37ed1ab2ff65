// Package gateway is the public API: it relays uploads to the processor,
// hands processed documents to the search service and proxies queries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ziadkadry99/docpipe/internal/retry"
)

// ClientOptions configures a downstream service client.
type ClientOptions struct {
	Timeout   time.Duration
	RateLimit float64
	Retry     retry.Policy
}

// StatusError is a non-2xx answer from a downstream service.
type StatusError struct {
	Service string
	Code    int
	Message string
	Details string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s returned %d", e.Service, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// response is a fully read downstream reply.
type response struct {
	Code        int
	ContentType string
	Body        []byte
}

// errServerStatus marks a 5xx reply as worth retrying.
var errServerStatus = errors.New("server error")

// client calls one downstream service with a per-call timeout, a shared rate
// limit and retries on transport errors and 5xx replies.
type client struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
	logger  *slog.Logger
}

func newClient(name, baseURL string, opts ClientOptions, logger *slog.Logger) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = max(1, int(opts.RateLimit))
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		policy:  opts.Retry,
		logger:  logger.With("component", "client", "service", name),
	}
}

// do sends a request built fresh for every attempt. A 5xx reply that
// survives every retry is returned as a response, not an error.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body func() (io.Reader, string, error)) (*response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var last *response
	attempt := 0
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		last = nil
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		var rd io.Reader
		var contentType string
		if body != nil {
			var err error
			if rd, contentType, err = body(); err != nil {
				return retry.Permanent(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return retry.Permanent(err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Warn("downstream call failed", "method", method, "path", path, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		last = &response{Code: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Warn("downstream server error", "method", method, "path", path, "attempt", attempt, "status", resp.StatusCode)
			return errServerStatus
		}
		return nil
	})
	if last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("%s unreachable: %w", c.name, err)
}

// decode unmarshals a 2xx body into out or converts the reply to a
// StatusError.
func (c *client) decode(resp *response, out any) error {
	if resp.Code < 200 || resp.Code > 299 {
		se := &StatusError{Service: c.name, Code: resp.Code}
		var body struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		if json.Unmarshal(resp.Body, &body) == nil {
			se.Message, se.Details = body.Error, body.Details
		} else {
			se.Message = strings.TrimSpace(string(resp.Body))
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", c.name, err)
	}
	return nil
}

func jsonBody(v any) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}
