// Package whatsappsvc is a client of the Evolution API (self-hosted WhatsApp gateway).
package whatsappsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/integration"
	"github.com/ellahos/ellahos/core/tenant"
)

const (
	sendTimeout  = 15 * time.Second
	probeTimeout = 10 * time.Second
	maxErrorText = 300
)

type EvolutionClient struct {
	http *http.Client
}

var (
	_ integration.WhatsAppSender = (*EvolutionClient)(nil)
	_ tenant.WhatsAppProbe       = (*EvolutionClient)(nil)
)

func NewEvolutionClient() *EvolutionClient {
	return &EvolutionClient{http: &http.Client{}}
}

func endpoint(instanceURL, path, instanceName string) string {
	return strings.TrimRight(instanceURL, "/") + path + instanceName
}

// SendText posts a text message and returns the message id assigned by the gateway, if any.
func (c *EvolutionClient) SendText(ctx context.Context, instanceURL, instanceName, apiKey, phone, text string) (*string, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"number": integration.SanitizePhone(phone),
		"text":   text,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding evolution message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(instanceURL, "/message/sendText/", instanceName), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building evolution request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "Evolution API network error")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, errors.Errorf("Evolution API HTTP %d: %s", resp.StatusCode, core.Truncate(string(raw), maxErrorText))
	}

	var out struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		ID string `json:"id"`
	}
	// the body is informative only
	_ = json.NewDecoder(resp.Body).Decode(&out)
	switch {
	case out.Key.ID != "":
		return &out.Key.ID, nil
	case out.ID != "":
		return &out.ID, nil
	}
	return nil, nil
}

// ConnectionState returns the state of an instance ("open" when connected).
func (c *EvolutionClient) ConnectionState(ctx context.Context, instanceURL, instanceName, apiKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(instanceURL, "/instance/connectionState/", instanceName), nil)
	if err != nil {
		return "", errors.Wrap(err, "building evolution request")
	}
	req.Header.Set("apikey", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "Evolution API network error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", errors.Errorf("Evolution API HTTP %d: %s", resp.StatusCode, core.Truncate(string(raw), 200))
	}

	var out struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decoding connection state")
	}
	switch {
	case out.Instance.State != "":
		return out.Instance.State, nil
	case out.State != "":
		return out.State, nil
	}
	return "unknown", nil
}
