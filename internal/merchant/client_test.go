package merchant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgerrors "github.com/unitpay/unitpay-gateway/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupReturnsEmail(t *testing.T) {
	var path string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"email":"m@x.com"}}`))
	})
	client, err := NewClient(srv.URL + "/api/")
	require.NoError(t, err)

	email, err := client.Lookup(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "m@x.com", email)
	assert.Equal(t, "/api/payment/paypal/merchant-info/pi_123", path)
}

func TestLookupNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	})
	client, err := NewClient(srv.URL, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "pi_missing")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	assert.Equal(t, map[string]any{"status": http.StatusNotFound, "message": "not found"}, typed.Details())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLookupRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"upstream down"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"email":"m@x.com"}}`))
	})
	client, err := NewClient(srv.URL, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	email, err := client.Lookup(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "m@x.com", email)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLookupGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client, err := NewClient(srv.URL, WithRetry(2, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "pi_1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLookupClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	})
	client, err := NewClient(srv.URL, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "pi_1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLookupMissingEmail(t *testing.T) {
	for _, body := range []string{`{"data":{}}`, `{}`, `{"data":{"email":"  "}}`, `{"data":{"email":"not-an-email"}}`} {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		client, err := NewClient(srv.URL, WithRetry(0, time.Millisecond))
		require.NoError(t, err)

		_, err = client.Lookup(context.Background(), "pi_1")
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), body)
	}
}

func TestLookupTransportErrorIsRetried(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	})
	client, err := NewClient("http://backend.test", WithHTTPClient(&http.Client{Transport: rt}), WithRetry(1, time.Millisecond))
	require.NoError(t, err)

	_, err = client.Lookup(context.Background(), "pi_1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, errBaseURLRequired)
	_, err = NewClient("not a url")
	assert.Error(t, err)
}

func TestLookupRequiresID(t *testing.T) {
	client, err := NewClient("http://backend.test")
	require.NoError(t, err)
	_, err = client.Lookup(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
