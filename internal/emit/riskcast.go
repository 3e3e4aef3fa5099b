// Package emit implements the dual-path signal emitter: a durable
// ledger-first write, then a best-effort hot push to the downstream
// consumer behind a circuit breaker with backpressure.
package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/omen-systems/omen/internal/domain"
	"github.com/omen-systems/omen/internal/resilience"
)

// Pusher delivers one signal to the hot-path consumer
type Pusher interface {
	Push(ctx context.Context, event domain.SignalEvent) (ackID string, err error)
}

// DuplicateError reports that the downstream already holds the signal id.
// Treated as delivery success.
type DuplicateError struct {
	AckID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("downstream already has signal (ack %s)", e.AckID)
}

// StatusError is a non-2xx push response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream returned %d: %s", e.Code, e.Body)
}

// RiskcastConfig configures the downstream push client
type RiskcastConfig struct {
	BaseURL string                 `yaml:"base_url"`
	APIKey  string                 `yaml:"api_key"`
	Timeout time.Duration          `yaml:"timeout"`
	Retry   resilience.RetryConfig `yaml:"retry"`
}

// RiskcastClient pushes signals to the RISKCAST ingest endpoint. Pushes
// are idempotent POSTs keyed by signal id; 408/429/5xx and network errors
// retry with backoff up to the configured attempts.
type RiskcastClient struct {
	config RiskcastConfig
	http   *http.Client
}

// NewRiskcastClient builds the push client
func NewRiskcastClient(config RiskcastConfig) *RiskcastClient {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = resilience.DefaultRetryConfig()
	}
	return &RiskcastClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

type pushAck struct {
	AckID string `json:"ack_id"`
}

// Push sends one signal, retrying retryable failures. A 409 becomes a
// DuplicateError carrying the downstream ack id.
func (c *RiskcastClient) Push(ctx context.Context, event domain.SignalEvent) (string, error) {
	body, err := domain.CanonicalJSON(event)
	if err != nil {
		return "", fmt.Errorf("encode signal: %w", err)
	}

	var ackID string
	err = resilience.Retry(ctx, c.config.Retry, func() error {
		ack, err := c.pushOnce(ctx, event.SignalID, body)
		if err != nil {
			return err
		}
		ackID = ack
		return nil
	})
	return ackID, err
}

func (c *RiskcastClient) pushOnce(ctx context.Context, signalID string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v1/signals/ingest", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", signalID)
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", resilience.Retryable(fmt.Errorf("push signal: %w", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ack pushAck
		if err := json.Unmarshal(raw, &ack); err != nil || ack.AckID == "" {
			// Downstream acked without a body; synthesize from the id
			return signalID, nil
		}
		return ack.AckID, nil

	case resp.StatusCode == http.StatusConflict:
		var ack pushAck
		_ = json.Unmarshal(raw, &ack)
		return "", &DuplicateError{AckID: ack.AckID}

	default:
		serr := &StatusError{Code: resp.StatusCode, Body: string(raw)}
		if resilience.RetryableStatus(resp.StatusCode) {
			return "", resilience.Retryable(serr)
		}
		return "", serr
	}
}
