package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fleetwatch/internal/models"
)

// SMSProvider delivers notifications through a carrier HTTP API
type SMSProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSMSProvider creates a provider posting to the carrier endpoint
func NewSMSProvider(endpoint, apiKey string) *SMSProvider {
	return &SMSProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send posts one alert notification to the carrier API
func (p *SMSProvider) Send(ctx context.Context, job *models.NotificationJob) error {
	payload, err := json.Marshal(smsRequest{
		To:   job.Config.Recipient,
		Body: job.Alert.Message,
	})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms carrier returned status %d", resp.StatusCode)
	}
	return nil
}
