// Package sms provides the outbound half of the text-message transport. The
// channel is fire-and-forget: a lost message never produces a response and
// no retries happen at this level.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport sends one text message to a phone number
type Transport interface {
	Send(ctx context.Context, phoneNumber, body string) error
}

// InboundMessage is what the gateway delivers for each received message
type InboundMessage struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
}

// GatewayTransport sends messages through an HTTP SMS gateway
type GatewayTransport struct {
	url    string
	token  string
	client *http.Client
	logger *logrus.Logger
}

// NewGatewayTransport creates a transport that POSTs outbound messages to
// the configured gateway URL.
func NewGatewayTransport(url, token string, logger *logrus.Logger) *GatewayTransport {
	return &GatewayTransport{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send delivers a single message. An unconfigured gateway or a non-2xx
// status is reported to the caller; nothing is retried.
func (t *GatewayTransport) Send(ctx context.Context, phoneNumber, body string) error {
	if t.url == "" {
		return fmt.Errorf("sms gateway is not configured")
	}

	payload, err := json.Marshal(sendRequest{To: phoneNumber, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	t.logger.WithField("to", phoneNumber).Debug("SMS handed to gateway")
	return nil
}
