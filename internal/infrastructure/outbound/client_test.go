package outbound

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	c := New("test", Config{MaxRetries: 3, InitialBackoff: time.Millisecond})
	body, err := c.Do(context.Background(), get(srv.URL), true)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.EqualValues(t, 3, hits.Load())
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("test", Config{MaxRetries: 3, InitialBackoff: time.Millisecond})
	_, err := c.Do(context.Background(), get(srv.URL), true)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.EqualValues(t, 1, hits.Load())
}

func TestDo_SingleAttemptWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("test", Config{MaxRetries: 3, InitialBackoff: time.Millisecond})
	_, err := c.Do(context.Background(), get(srv.URL), false)
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestDo_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("test", Config{FailureThreshold: 2, OpenFor: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), get(srv.URL), false)
		require.Error(t, err)
	}
	_, err := c.Do(context.Background(), get(srv.URL), false)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 2, hits.Load())
}
