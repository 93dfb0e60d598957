// Package webhooksvc posts JSON payloads to tenant configured webhooks (n8n workflows).
package webhooksvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core/integration"
	"github.com/ellahos/ellahos/core/tenant"
)

const (
	postTimeout = 30 * time.Second
	pingTimeout = 10 * time.Second
	maxBody     = 4 << 10
)

type Poster struct {
	http *http.Client
}

var (
	_ integration.WebhookPoster = (*Poster)(nil)
	_ tenant.WebhookProbe       = (*Poster)(nil)
)

func NewPoster() *Poster {
	return &Poster{http: &http.Client{}}
}

// PostJSON returns the status code and up to 4KiB of the response body. Non 2xx answers are not errors.
func (p *Poster) PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()
	return p.post(ctx, url, headers, payload)
}

// Ping posts a test payload.
func (p *Poster) Ping(ctx context.Context, url string, payload map[string]interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	status, _, err := p.post(ctx, url, nil, payload)
	return status, err
}

func (p *Poster) post(ctx context.Context, url string, headers map[string]string, payload interface{}) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", errors.Wrap(err, "encoding webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", errors.Wrap(err, "building webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, "posting webhook")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return resp.StatusCode, string(raw), nil
}
