package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"

	defaultMaxRetries   = 5
	defaultInitialDelay = 500 * time.Millisecond
	maxBackoffDelay     = 30 * time.Second
)

var ErrTooManyRetries = errors.New("too many retries")

// Client talks to the Anthropic Messages API. Transient provider errors
// (rate limiting, server errors) are retried with exponential backoff before
// a terminal error is surfaced.
type Client struct {
	httpClient *http.Client
	APIKey     string
	BaseURL    string
	APIVersion string

	maxRetries   int
	initialDelay time.Duration
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.BaseURL = baseURL
	}
}

func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.APIVersion = version
	}
}

func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

func WithInitialDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.initialDelay = delay
	}
}

func NewClient(apiKey string, options ...ClientOption) *Client {
	c := &Client{
		httpClient:   &http.Client{},
		APIKey:       apiKey,
		BaseURL:      DefaultBaseURL,
		APIVersion:   defaultAPIVersion,
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// isRetryable classifies a response status. Rate limits and server errors
// are transient; everything else is permanent.
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func backoffDelay(initial time.Duration, attempt int) time.Duration {
	delay := initial << uint(attempt)
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	// Jitter up to half the delay to avoid thundering herds on shared limits.
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

// doWithRetry posts the payload, retrying transient failures. On success the
// caller owns the response body.
func (c *Client) doWithRetry(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.initialDelay, attempt-1)
			log.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying claude request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "could not build claude request")
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "claude request failed")
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseErrorResponse(resp)
		if !isRetryable(resp.StatusCode) {
			return nil, apiErr
		}
		lastErr = apiErr
	}
	return nil, errors.Wrap(lastErr, ErrTooManyRetries.Error())
}

// parseErrorResponse drains and closes the body of a non-200 response and
// converts it into an error.
func parseErrorResponse(resp *http.Response) error {
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "claude API returned status %d", resp.StatusCode)
	}

	var errorResp ErrorResponse
	if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error.Message == "" {
		return errors.Errorf("claude API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return errors.Errorf("claude API error (%s): %s", errorResp.Error.Type, errorResp.Error.Message)
}

// SendMessage sends a blocking message request and returns the complete
// response.
func (c *Client) SendMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal message request")
	}

	resp, err := c.doWithRetry(ctx, c.BaseURL+"/v1/messages", body)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		_ = body.Close()
	}(resp.Body)

	var messageResp MessageResponse
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read message response")
	}
	if err := json.Unmarshal(respBody, &messageResp); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal message response")
	}

	return &messageResp, nil
}

// StreamMessage sends a streaming message request and returns a channel of
// parsed SSE events. The channel is closed when the stream ends or the
// context is cancelled.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (<-chan StreamingEvent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal message request")
	}

	resp, err := c.doWithRetry(ctx, c.BaseURL+"/v1/messages", body)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamingEvent)
	go func() {
		defer close(events)
		streamEvents(ctx, resp, events)
	}()

	return events, nil
}
