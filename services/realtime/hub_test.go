package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestHub_Publish(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?user=u1", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish("u2", "notification.created", map[string]string{"id": "other"})
	hub.Publish("u1", "notification.created", map[string]string{"id": "n1"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Event string            `json:"event"`
		Seq   int64             `json:"seq"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "notification.created", ev.Event)
	assert.Equal(t, int64(2), ev.Seq)
	assert.Equal(t, "n1", ev.Data["id"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("u1") == 0 }, time.Second, 5*time.Millisecond)

	srv.Close()
	cancel()
	<-stopped
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(nopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, "u1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
	assert.Zero(t, hub.Connections("u1"))
}
