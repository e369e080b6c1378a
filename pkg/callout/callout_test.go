package callout

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*Client, *[]time.Duration) {
	t.Helper()

	client := NewClient(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var slept []time.Duration

	client.sleep = func(d time.Duration) { slept = append(slept, d) }

	return client, &slept
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var got *http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, slept := testClient(t)

	result, err := client.Do(t.Context(), Request{
		URL:    server.URL,
		Method: "post",
		Body:   `{"lead":"lead-1"}`,
	}, DefaultRetryPolicy(), time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, map[string]any{"ok": true}, result.JSON)
	assert.Len(t, result.Attempts, 1)
	assert.Empty(t, *slept)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
}

func TestDoRetriesRetryableStatus(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, slept := testClient(t)

	result, err := client.Do(t.Context(), Request{URL: server.URL}, DefaultRetryPolicy(), time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, calls)

	// Full history survives eventual success; backoff doubles per attempt.
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, http.StatusServiceUnavailable, result.Attempts[0].Status)
	assert.Equal(t, int64(1000), result.Attempts[0].DelayMs)
	assert.Equal(t, int64(2000), result.Attempts[1].DelayMs)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestDoExhaustsRetries(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := testClient(t)
	policy := DefaultRetryPolicy()
	policy.MaxRetries = 2

	result, err := client.Do(t.Context(), Request{URL: server.URL}, policy, time.Second)
	require.Error(t, err)

	var callErr *Error
	require.ErrorAs(t, err, &callErr)
	assert.True(t, callErr.Retryable)
	assert.Len(t, callErr.Attempts, 3)
	assert.Equal(t, 3, calls)
	assert.False(t, result.Success)
}

func TestDoTerminalStatusStopsImmediately(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("bad payload"))
	}))
	defer server.Close()

	client, slept := testClient(t)

	result, err := client.Do(t.Context(), Request{URL: server.URL}, DefaultRetryPolicy(), time.Second)
	require.Error(t, err)

	var callErr *Error
	require.ErrorAs(t, err, &callErr)
	assert.False(t, callErr.Retryable)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
	assert.Equal(t, "bad payload", result.Attempts[0].ErrorMessage)
}

func TestDoRetriesConnectionError(t *testing.T) {
	// Reserve a port, then close it so every dial is refused.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client, slept := testClient(t)
	policy := DefaultRetryPolicy()
	policy.MaxRetries = 1

	_, err := client.Do(t.Context(), Request{URL: url}, policy, time.Second)
	require.Error(t, err)

	var callErr *Error
	require.ErrorAs(t, err, &callErr)
	assert.True(t, callErr.Retryable)
	assert.Len(t, callErr.Attempts, 2)
	assert.Len(t, *slept, 1)
}

func TestDoCustomHeaders(t *testing.T) {
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := testClient(t)

	result, err := client.Do(t.Context(), Request{
		URL:     server.URL,
		Method:  http.MethodGet,
		Headers: map[string]string{"Authorization": "Bearer token-1"},
	}, DefaultRetryPolicy(), time.Second)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "Bearer token-1", auth)
}

func TestDelayFor(t *testing.T) {
	policy := RetryPolicy{InitialDelayMs: 500, BackoffMultiplier: 3}

	assert.Equal(t, 500*time.Millisecond, policy.delayFor(1))
	assert.Equal(t, 1500*time.Millisecond, policy.delayFor(2))
	assert.Equal(t, 4500*time.Millisecond, policy.delayFor(3))
}
