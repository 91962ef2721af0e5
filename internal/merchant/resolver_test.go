package merchant

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

type fakeUI struct {
	calls  []string
	errors []string
}

func (f *fakeUI) ShowSpinner(context.Context) { f.calls = append(f.calls, "show") }

func (f *fakeUI) HideSpinner(context.Context) { f.calls = append(f.calls, "hide") }

func (f *fakeUI) ShowError(_ context.Context, message string) {
	f.calls = append(f.calls, "error")
	f.errors = append(f.errors, message)
}

func newResolver(t *testing.T, status int, body string) (*Resolver, *fakeUI) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	ui := &fakeUI{}
	resolver, err := NewResolver(client, ui, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return resolver, ui
}

func TestFetchMerchantInfoSuccess(t *testing.T) {
	resolver, ui := newResolver(t, http.StatusOK, `{"data":{"email":"m@x.com"}}`)

	email, ok := resolver.FetchMerchantInfo(context.Background(), "pi_1")
	assert.True(t, ok)
	assert.Equal(t, "m@x.com", email)
	assert.Equal(t, []string{"show", "hide"}, ui.calls)
}

func TestFetchMerchantInfoNotFoundSignalsOnce(t *testing.T) {
	resolver, ui := newResolver(t, http.StatusNotFound, `{"message":"not found"}`)

	email, ok := resolver.FetchMerchantInfo(context.Background(), "pi_1")
	assert.False(t, ok)
	assert.Empty(t, email)
	require.Len(t, ui.errors, 1)
	assert.Equal(t, "merchant info not found: not found", ui.errors[0])
	assert.Equal(t, []string{"show", "error", "hide"}, ui.calls)
}

func TestFetchMerchantInfoFailuresNeverPanicOrError(t *testing.T) {
	cases := []struct {
		status int
		body   string
	}{
		{http.StatusInternalServerError, `{"message":"boom"}`},
		{http.StatusBadRequest, `oops`},
		{http.StatusOK, `{"data":{}}`},
		{http.StatusOK, `not json`},
	}
	for _, tc := range cases {
		resolver, ui := newResolver(t, tc.status, tc.body)
		email, ok := resolver.FetchMerchantInfo(context.Background(), "pi_1")
		assert.False(t, ok, tc.body)
		assert.Empty(t, email)
		assert.Len(t, ui.errors, 1, tc.body)
	}
}

func TestNewResolverRequiresDependencies(t *testing.T) {
	_, err := NewResolver(nil, &fakeUI{}, nil)
	assert.Error(t, err)
}

func TestResolverLookupReturnsTypedError(t *testing.T) {
	resolver, ui := newResolver(t, http.StatusNotFound, `{"message":"payment intent missing"}`)

	_, err := resolver.Lookup(context.Background(), "pi_1")
	require.Error(t, err)
	assert.Equal(t, []string{"show", "error", "hide"}, ui.calls)
}
