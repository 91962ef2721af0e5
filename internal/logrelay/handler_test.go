package logrelay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unitpay/unitpay-gateway/pkg/logger"
)

func TestHandlerStreamsBroadcasts(t *testing.T) {
	hub := startHub(t, 4)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	srv := httptest.NewServer(Handler(hub, logg, []string{"http://localhost:3000"}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://localhost:3000"}})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return hub.Listeners() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast([]byte(`{"type":"log"}`))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"log"}`, string(payload))

	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.Listeners() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	hub := startHub(t, 4)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	srv := httptest.NewServer(Handler(hub, logg, []string{"http://localhost:3000"}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandlerUnavailableWhenHubStopped(t *testing.T) {
	hub := NewHub(4)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	rec := httptest.NewRecorder()

	Handler(hub, logg, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/logs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
