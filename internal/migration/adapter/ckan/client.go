package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ckan-migrate/internal/shared/errors"
	"ckan-migrate/internal/shared/utils"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

const (
	defaultAttempts = 3
	defaultDelay    = time.Second
	defaultTimeout  = 30 * time.Second

	// errorExcerptLen bounds how much of an error body ends up in reports.
	errorExcerptLen = 200
)

// Options configures a CKAN action-API client.
type Options struct {
	APIKey   string
	Timeout  time.Duration
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
	Wire     *zap.Logger
}

// Client talks to one CKAN instance's action API. Responses are classified
// into the migration error taxonomy; network failures and 5xx answers are
// retried with exponential backoff before surfacing as transient errors.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	attempts int
	delay    time.Duration
	clock    clock.Clock
	wire     *zap.Logger
}

// NewClient creates a client for the CKAN instance at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Wire == nil {
		opts.Wire = zap.NewNop()
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   opts.APIKey,
		http:     &http.Client{Timeout: opts.Timeout},
		attempts: opts.Attempts,
		delay:    opts.Delay,
		clock:    opts.Clock,
		wire:     opts.Wire,
	}
}

// actionEnvelope is CKAN's standard response wrapper.
type actionEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func (c *Client) actionURL(action string) string {
	return utils.JoinURL(c.baseURL, "api/3/action/"+action)
}

// Get calls an action with query parameters and decodes result into out.
func (c *Client) Get(ctx context.Context, action string, params url.Values, out interface{}) error {
	return c.withRetry(ctx, action, func() error {
		endpoint := c.actionURL(action)
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.NewInternalError("build request").WithCause(err)
		}
		return c.do(req, action, out)
	})
}

// Post calls an action with a JSON body and decodes result into out.
func (c *Client) Post(ctx context.Context, action string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.NewInternalError("marshal request body").WithCause(err)
	}
	return c.withRetry(ctx, action, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL(action), bytes.NewReader(payload))
		if err != nil {
			return errors.NewInternalError("build request").WithCause(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, action, out)
	})
}

// Upload posts a streamed body (multipart form) to an action. makeBody is
// invoked once per attempt so retries restart the stream.
func (c *Client) Upload(ctx context.Context, action string, makeBody func() (io.ReadCloser, string, error), out interface{}) error {
	return c.withRetry(ctx, action, func() error {
		body, contentType, err := makeBody()
		if err != nil {
			return errors.NewInternalError("build upload body").WithCause(err)
		}
		defer body.Close()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL(action), body)
		if err != nil {
			return errors.NewInternalError("build request").WithCause(err)
		}
		req.Header.Set("Content-Type", contentType)
		return c.do(req, action, out)
	})
}

// Download streams an arbitrary URL (resource file) from the instance,
// carrying the API key for private resources. The caller closes the body.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := c.withRetry(ctx, rawURL, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return errors.NewInternalError("build request").WithCause(err)
		}
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return errors.NewTransientError(fmt.Sprintf("download %s", rawURL)).WithCause(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return classifyStatus(resp.StatusCode, rawURL, nil)
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// do executes one HTTP attempt and classifies the answer.
func (c *Client) do(req *http.Request, action string, out interface{}) error {
	req.Header.Set("Authorization", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.wire.Debug("request failed", zap.String("action", action), zap.Error(err))
		return errors.NewTransientError(fmt.Sprintf("call %s", action)).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransientError(fmt.Sprintf("read %s response", action)).WithCause(err)
	}

	c.wire.Debug("request done",
		zap.String("action", action),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(resp.StatusCode, action, data)
	}

	var envelope actionEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.NewValidationError(fmt.Sprintf("unparseable %s response", action)).WithCause(err)
	}
	if !envelope.Success {
		return errors.NewValidationError(fmt.Sprintf("%s rejected: %s", action, excerpt(envelope.Error)))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return errors.NewValidationError(fmt.Sprintf("unexpected %s result shape", action)).WithCause(err)
		}
	}
	return nil
}

// classifyStatus maps a non-2xx answer onto the error taxonomy.
func classifyStatus(status int, action string, body []byte) error {
	switch {
	case status == http.StatusNotFound:
		return errors.NewNotFoundError(action).WithStatus(status)
	case status == http.StatusConflict:
		return errors.NewConflictError(fmt.Sprintf("%s conflict: %s", action, excerpt(body))).WithStatus(status)
	case status == http.StatusTooManyRequests:
		return errors.NewTransientError(fmt.Sprintf("%s throttled", action)).WithStatus(status)
	case status >= 500:
		return errors.NewTransientError(fmt.Sprintf("%s server error", action)).WithStatus(status)
	default:
		return errors.NewValidationError(fmt.Sprintf("%s failed: %s", action, excerpt(body))).WithStatus(status)
	}
}

// withRetry runs one classified attempt under the backoff policy. Transient
// errors are retried with doubling delays; everything else is surfaced
// immediately. Context cancellation stops the loop between attempts.
func (c *Client) withRetry(ctx context.Context, what string, attempt func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: attempt,
		IsFatalError: func(err error) bool {
			return !errors.IsTransient(err)
		},
		NotifyFunc: func(lastError error, n int) {
			c.wire.Debug("retrying", zap.String("target", what), zap.Int("attempt", n), zap.Error(lastError))
		},
		Attempts:    c.attempts,
		Delay:       c.delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	switch {
	case err == nil:
		return nil
	case retry.IsAttemptsExceeded(err):
		last := retry.LastError(err)
		return errors.NewTransientError(fmt.Sprintf("%s: %v", what, errors.ErrRetriesExhausted)).WithCause(last)
	case retry.IsRetryStopped(err):
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	default:
		return err
	}
}

func excerpt(data []byte) string {
	s := string(bytes.TrimSpace(data))
	if s == "" {
		return "(empty body)"
	}
	return utils.TruncateString(s, errorExcerptLen)
}
