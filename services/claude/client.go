// Package claudesvc talks to the Anthropic Messages API.
package claudesvc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/ai"
)

const (
	anthropicVersion   = "2023-06-01"
	maxRetries         = 2
	baseBackoff        = time.Second
	defaultTemperature = 0.3
	maxErrorBody       = 64 << 10
)

var errMissingKey = core.NewAppError(
	core.CodeInternal,
	"Chave da API Claude nao configurada. Configure em Settings > Integracoes > IA.",
	http.StatusInternalServerError,
)

type Client struct {
	apiKey        string
	url           string
	http          *http.Client
	batchTimeout  time.Duration
	streamTimeout time.Duration
	logger        core.Logger
	sleep         func(ctx context.Context, d time.Duration) error // mockable
}

var _ ai.Client = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		apiKey:        conf.Claude.APIKey,
		url:           conf.Claude.BaseURL,
		http:          &http.Client{},
		batchTimeout:  conf.Claude.BatchTimeout,
		streamTimeout: conf.Claude.StreamTimeout,
		logger:        logger,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type (
	apiRequest struct {
		Model       string       `json:"model"`
		System      string       `json:"system"`
		Messages    []ai.Message `json:"messages"`
		MaxTokens   int          `json:"max_tokens"`
		Temperature float64      `json:"temperature"`
		Stream      bool         `json:"stream,omitempty"`
	}

	apiUsage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	}

	apiResponse struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model      string   `json:"model"`
		StopReason string   `json:"stop_reason"`
		Usage      apiUsage `json:"usage"`
	}

	// streamPayload covers the fields read from every streamed event.
	streamPayload struct {
		Type    string `json:"type"`
		Message struct {
			Model string   `json:"model"`
			Usage apiUsage `json:"usage"`
		} `json:"message"`
		Delta struct {
			Text       string `json:"text"`
			StopReason string `json:"stop_reason"`
		} `json:"delta"`
		Usage apiUsage `json:"usage"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

func (c *Client) newRequest(ctx context.Context, req ai.CompletionRequest, stream bool) (*http.Request, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	body, err := json.Marshal(apiRequest{
		Model:       req.Model,
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding claude request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building claude request")
	}
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("content-type", "application/json")
	if stream {
		httpReq.Header.Set("accept", "text/event-stream")
	}
	return httpReq, nil
}

// Complete sends a batch request. 429 and 5xx answers, timeouts and network errors are retried
// twice with exponential backoff; other 4xx answers are returned at once.
func (c *Client) Complete(ctx context.Context, req ai.CompletionRequest) (ai.Completion, error) {
	if c.apiKey == "" {
		return ai.Completion{}, errMissingKey
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Warn(fmt.Sprintf("claude retry %d/%d after %s", attempt, maxRetries, backoff), lastErr)
			if err := c.sleep(ctx, backoff); err != nil {
				return ai.Completion{}, errors.Wrap(err, "waiting claude retry")
			}
		}

		resp, retry, err := c.attempt(ctx, req)
		if err == nil {
			c.logger.Debug("claude completion", map[string]interface{}{
				"model":       resp.Model,
				"input":       resp.InputTokens,
				"output":      resp.OutputTokens,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return resp, nil
		}
		if !retry || ctx.Err() != nil {
			return ai.Completion{}, err
		}
		lastErr = err
	}
	return ai.Completion{}, lastErr
}

func (c *Client) attempt(ctx context.Context, req ai.CompletionRequest) (resp ai.Completion, retry bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, req, false)
	if err != nil {
		return ai.Completion{}, false, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ai.Completion{}, true, core.NewAppError(core.CodeInternal,
				fmt.Sprintf("Claude API timeout apos %dms", c.batchTimeout.Milliseconds()), http.StatusGatewayTimeout)
		}
		return ai.Completion{}, true, core.NewAppError(core.CodeInternal,
			"Erro de rede ao chamar Claude API: "+err.Error(), http.StatusBadGateway)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return ai.Completion{}, retryable(httpResp.StatusCode), apiError(httpResp)
	}

	var body apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ai.Completion{}, true, core.NewAppError(core.CodeInternal,
				fmt.Sprintf("Claude API timeout apos %dms", c.batchTimeout.Milliseconds()), http.StatusGatewayTimeout)
		}
		return ai.Completion{}, false, errors.Wrap(err, "decoding claude response")
	}

	resp = ai.Completion{
		InputTokens:  body.Usage.InputTokens,
		OutputTokens: body.Usage.OutputTokens,
		StopReason:   body.StopReason,
		Model:        body.Model,
	}
	if len(body.Content) > 0 {
		resp.Content = body.Content[0].Text
	}
	if resp.StopReason == "" {
		resp.StopReason = "unknown"
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return resp, false, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// apiError keeps client errors (4xx) and reports anything else as a bad gateway.
func apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body interface{}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil {
		msg = errorMessage(body)
	}

	status := http.StatusBadGateway
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		status = resp.StatusCode
	}
	return core.NewAppError(core.CodeInternal,
		fmt.Sprintf("Claude API retornou %d: %s", resp.StatusCode, msg), status,
		map[string]interface{}{"anthropic_error": body})
}

func errorMessage(body interface{}) string {
	if obj, ok := body.(map[string]interface{}); ok {
		if e, ok := obj["error"].(map[string]interface{}); ok {
			if m, ok := e["message"].(string); ok && m != "" {
				return m
			}
			b, _ := json.Marshal(e)
			return string(b)
		}
	}
	b, _ := json.Marshal(body)
	return string(b)
}

// Stream sends a streaming request and translates the Anthropic events: message_start becomes
// `start`, text deltas become `delta` and message_stop becomes `done` with the tokens used.
// Streams are never retried.
func (c *Client) Stream(ctx context.Context, req ai.CompletionRequest, emit func(ai.StreamEvent) error) (ai.Completion, error) {
	if c.apiKey == "" {
		return ai.Completion{}, errMissingKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.streamTimeout)
	defer cancel()

	timeoutErr := core.NewAppError(core.CodeInternal,
		fmt.Sprintf("Claude API streaming timeout apos %dms", c.streamTimeout.Milliseconds()), http.StatusGatewayTimeout)

	httpReq, err := c.newRequest(ctx, req, true)
	if err != nil {
		return ai.Completion{}, err
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ai.Completion{}, timeoutErr
		}
		return ai.Completion{}, core.NewAppError(core.CodeInternal,
			"Erro de rede ao iniciar stream Claude API: "+err.Error(), http.StatusBadGateway)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return ai.Completion{}, apiError(httpResp)
	}

	resp := ai.Completion{Model: req.Model}
	var content strings.Builder
	var eventType string

	r := bufio.NewReader(httpResp.Body)
	for {
		line, readErr := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			var p streamPayload
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &p); err != nil {
				// partial or keep-alive payloads are skipped
				break
			}
			typ := p.Type
			if typ == "" {
				typ = eventType
			}

			switch typ {
			case "message_start":
				resp.InputTokens = p.Message.Usage.InputTokens
				if p.Message.Model != "" {
					resp.Model = p.Message.Model
				}
				if err := emit(ai.StreamEvent{Event: "start", Data: map[string]interface{}{}}); err != nil {
					return resp, errors.Wrap(err, "emitting start")
				}
			case "content_block_delta":
				if p.Delta.Text == "" {
					break
				}
				content.WriteString(p.Delta.Text)
				if err := emit(ai.StreamEvent{Event: "delta", Data: map[string]string{"text": p.Delta.Text}}); err != nil {
					return resp, errors.Wrap(err, "emitting delta")
				}
			case "message_delta":
				resp.OutputTokens = p.Usage.OutputTokens
				if p.Delta.StopReason != "" {
					resp.StopReason = p.Delta.StopReason
				}
			case "message_stop":
				resp.Content = content.String()
				done := map[string]interface{}{
					"tokens_used": ai.TokensUsed{Input: resp.InputTokens, Output: resp.OutputTokens},
				}
				if err := emit(ai.StreamEvent{Event: "done", Data: done}); err != nil {
					return resp, errors.Wrap(err, "emitting done")
				}
				return resp, nil
			case "error":
				resp.Content = content.String()
				return resp, core.NewAppError(core.CodeInternal,
					"Claude API retornou erro no stream: "+p.Error.Message, http.StatusBadGateway)
			}
		}

		if readErr != nil {
			resp.Content = content.String()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return resp, timeoutErr
			}
			if readErr == io.EOF {
				return resp, core.NewAppError(core.CodeInternal,
					"Claude API encerrou o stream antes de message_stop", http.StatusBadGateway)
			}
			return resp, errors.Wrap(readErr, "reading claude stream")
		}
	}
}
