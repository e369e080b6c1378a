// Package callout provides the retrying outbound HTTP call primitive used
// by the send_webhook action: per-attempt timeouts, exponential backoff,
// retryable-versus-terminal failure classification, and a full retry
// history retained on every outcome.
package callout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RetryPolicy governs how many times and with what backoff a call is
// retried after a retryable failure.
type RetryPolicy struct {
	MaxRetries          int      `json:"max_retries"`
	InitialDelayMs      int      `json:"initial_delay_ms"`
	BackoffMultiplier   float64  `json:"backoff_multiplier"`
	RetryableStatuses   []int    `json:"retryable_statuses"`
	RetryableErrorCodes []string `json:"retryable_error_codes"`
}

// DefaultRetryPolicy mirrors the catalog default: 3 retries starting at
// 1s, doubling, on the usual transient statuses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          3,
		InitialDelayMs:      1000,
		BackoffMultiplier:   2,
		RetryableStatuses:   []int{408, 429, 500, 502, 503, 504},
		RetryableErrorCodes: []string{"ECONNRESET", "ECONNREFUSED", "ETIMEDOUT"},
	}
}

func (p RetryPolicy) retryableStatus(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}

	return false
}

// errCodePhrases maps portable error codes to the phrases Go's net
// package puts in the error text.
var errCodePhrases = map[string]string{
	"econnreset":   "connection reset",
	"econnrefused": "connection refused",
	"etimedout":    "timed out",
}

// retryableError matches network errors against the configured codes;
// any message containing "timeout" or "aborted" is always retryable.
func (p RetryPolicy) retryableError(err error) bool {
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "timeout") || strings.Contains(message, "aborted") {
		return true
	}

	for _, code := range p.RetryableErrorCodes {
		lowered := strings.ToLower(code)
		if strings.Contains(message, lowered) {
			return true
		}

		if phrase, ok := errCodePhrases[lowered]; ok && strings.Contains(message, phrase) {
			return true
		}
	}

	return false
}

// delayFor returns the backoff applied after the given failed attempt
// (1-based): initial * multiplier^(attempt-1).
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := float64(p.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delay *= p.BackoffMultiplier
	}

	return time.Duration(delay) * time.Millisecond
}

// Request describes one outbound call.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Attempt is one entry in the retry history. DelayMs is the backoff the
// client waited after this attempt failed; zero on the final attempt and
// on success.
type Attempt struct {
	Attempt      int    `json:"attempt"`
	DelayMs      int64  `json:"delay_ms"`
	Status       int    `json:"status,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Result is the outcome of a call; Attempts is retained even on eventual
// success so callers never lose the retry history.
type Result struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code,omitempty"`
	Body       string      `json:"body,omitempty"`
	JSON       any         `json:"json,omitempty"`
	Attempts   []Attempt   `json:"attempts"`
	Headers    http.Header `json:"-"`
}

// Error is the final classified failure of a call, carrying the full
// retry history.
type Error struct {
	Retryable bool
	Attempts  []Attempt
	Last      error
}

func (e *Error) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retries exhausted"
	}

	return fmt.Sprintf("call failed (%s) after %d attempt(s): %v", kind, len(e.Attempts), e.Last)
}

func (e *Error) Unwrap() error {
	return e.Last
}

// Client executes outbound calls with retry/backoff. The sleep function
// is injectable so tests do not wait on real backoff.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(time.Duration)
}

// NewClient creates a call client. A nil httpClient gets a default.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger.With("module", "callout"),
		sleep:      time.Sleep,
	}
}

// Do performs the call under the given policy. Each attempt runs under
// its own timeout; a 2xx stops immediately; a retryable status or error
// backs off and retries until MaxRetries is exhausted; anything else is
// terminal at once. The returned Result always carries the complete
// attempt history.
func (c *Client) Do(ctx context.Context, req Request, policy RetryPolicy, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	var attempts []Attempt

	maxAttempts := policy.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, body, headers, err := c.attempt(ctx, method, req, timeout)

		if err == nil && status >= 200 && status < 300 {
			attempts = append(attempts, Attempt{Attempt: attempt, Status: status})

			result := &Result{
				Success:    true,
				StatusCode: status,
				Body:       body,
				Attempts:   attempts,
				Headers:    headers,
			}

			var parsed any
			if jsonErr := json.Unmarshal([]byte(body), &parsed); jsonErr == nil {
				result.JSON = parsed
			}

			return result, nil
		}

		retryable := false
		entry := Attempt{Attempt: attempt}

		if err != nil {
			entry.ErrorMessage = err.Error()
			retryable = policy.retryableError(err)
		} else {
			entry.Status = status
			entry.ErrorMessage = truncate(body, 512)
			retryable = policy.retryableStatus(status)
			err = fmt.Errorf("unexpected status %d", status)
		}

		if retryable && attempt < maxAttempts {
			delay := policy.delayFor(attempt)
			entry.DelayMs = delay.Milliseconds()
			attempts = append(attempts, entry)

			c.logger.Debug("retrying call",
				"url", req.URL,
				"attempt", attempt,
				"delay_ms", entry.DelayMs)
			c.sleep(delay)

			continue
		}

		attempts = append(attempts, entry)

		return &Result{Success: false, StatusCode: status, Body: body, Attempts: attempts},
			&Error{Retryable: retryable, Attempts: attempts, Last: err}
	}

	// Unreachable: the loop always returns.
	return nil, errors.New("call loop ended without a result")
}

func (c *Client) attempt(ctx context.Context, method string, req Request, timeout time.Duration) (int, string, http.Header, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, bodyReader)
	if err != nil {
		return 0, "", nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, "", nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", resp.Header, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, string(body), resp.Header, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
