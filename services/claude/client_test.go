package claudesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/ai"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conf := &core.Config{Claude: core.ClaudeConfig{
		APIKey:        "sk-test",
		BaseURL:       srv.URL,
		BatchTimeout:  time.Second,
		StreamTimeout: time.Second,
	}}
	c := NewClient(conf, nopLogger{})
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

var testRequest = ai.CompletionRequest{
	Model:     ai.ModelHaiku,
	System:    "sys",
	Messages:  []ai.Message{{Role: "user", Content: "oi"}},
	MaxTokens: 100,
}

func TestClient_Complete(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))

		var body apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, ai.ModelHaiku, body.Model)
		assert.Equal(t, defaultTemperature, body.Temperature)
		assert.False(t, body.Stream)

		_, _ = fmt.Fprint(w, `{"content":[{"type":"text","text":"ola"}],"model":"claude-haiku-4-20250514",
			"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":3}}`)
	})

	resp, err := c.Complete(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, ai.Completion{
		Content:      "ola",
		InputTokens:  12,
		OutputTokens: 3,
		StopReason:   "end_turn",
		Model:        ai.ModelHaiku,
	}, resp)
}

func TestClient_CompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []int
		wantStatus int
		wantCalls  int32
		wantWaits  []time.Duration
	}{
		{"retries then succeeds", []int{529, 429, 200}, 0, 3, []time.Duration{time.Second, 2 * time.Second}},
		{"client error kept", []int{400}, http.StatusBadRequest, 1, nil},
		{"server errors exhausted", []int{500, 500, 500}, http.StatusBadGateway, 3, []time.Duration{time.Second, 2 * time.Second}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			c, waits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				status := tc.statuses[n-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = fmt.Fprint(w, `{"content":[{"text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
					return
				}
				_, _ = fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			})

			resp, err := c.Complete(context.Background(), testRequest)
			assert.Equal(t, tc.wantCalls, atomic.LoadInt32(&calls))
			assert.Equal(t, tc.wantWaits, *waits)
			if tc.wantStatus == 0 {
				require.NoError(t, err)
				assert.Equal(t, "ok", resp.Content)
				assert.Equal(t, ai.ModelHaiku, resp.Model)
				assert.Equal(t, "unknown", resp.StopReason)
				return
			}
			appErr, ok := core.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantStatus, appErr.Status)
			assert.Contains(t, appErr.Message, "Overloaded")
		})
	}
}

func TestClient_CompleteTimeout(t *testing.T) {
	c, waits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c.batchTimeout = 20 * time.Millisecond

	_, err := c.Complete(context.Background(), testRequest)
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusGatewayTimeout, appErr.Status)
	assert.Equal(t, "Claude API timeout apos 20ms", appErr.Message)
	assert.Len(t, *waits, maxRetries)
}

func TestClient_MissingKey(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	c.apiKey = ""

	_, err := c.Complete(context.Background(), testRequest)
	assert.Equal(t, errMissingKey, err)
	_, err = c.Stream(context.Background(), testRequest, func(ai.StreamEvent) error { return nil })
	assert.Equal(t, errMissingKey, err)
}

const anthropicStream = "event: message_start\n" +
	`data: {"type":"message_start","message":{"model":"claude-haiku-4-20250514","usage":{"input_tokens":25,"output_tokens":1}}}` + "\n\n" +
	"event: content_block_start\n" +
	`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
	"event: ping\n" +
	`data: {"type": "ping"}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Ola, "}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"tudo bem?"}}` + "\n\n" +
	"event: content_block_stop\n" +
	`data: {"type":"content_block_stop","index":0}` + "\n\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}` + "\n\n" +
	"event: message_stop\n" +
	`data: {"type":"message_stop"}` + "\n\n"

func TestClient_Stream(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, anthropicStream)
	})

	var events []ai.StreamEvent
	resp, err := c.Stream(context.Background(), testRequest, func(ev ai.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Ola, tudo bem?", resp.Content)
	assert.Equal(t, 25, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.Len(t, events, 4)
	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, ai.StreamEvent{Event: "delta", Data: map[string]string{"text": "Ola, "}}, events[1])
	assert.Equal(t, "delta", events[2].Event)
	assert.Equal(t, ai.StreamEvent{Event: "done", Data: map[string]interface{}{
		"tokens_used": ai.TokensUsed{Input: 25, Output: 7},
	}}, events[3])
}

func TestClient_StreamErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := c.Stream(context.Background(), testRequest, func(ai.StreamEvent) error { return nil })
		appErr, ok := core.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadGateway, appErr.Status)
	})

	t.Run("cut short", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, "event: message_start\n"+`data: {"type":"message_start","message":{"usage":{"input_tokens":3}}}`+"\n\n")
		})
		resp, err := c.Stream(context.Background(), testRequest, func(ai.StreamEvent) error { return nil })
		assert.Error(t, err)
		assert.Equal(t, 3, resp.InputTokens)
	})

	t.Run("emit fails", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, anthropicStream)
		})
		gone := fmt.Errorf("client gone")
		_, err := c.Stream(context.Background(), testRequest, func(ai.StreamEvent) error { return gone })
		assert.ErrorIs(t, err, gone)
	})
}
