package services

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/go-resty/resty/v2"
)

const smsGatewaySendPath = "/api/v3.0.1/send"

// SMSRequest represents the request payload for SMS API
type SMSRequest struct {
	SrcNum         string `json:"srcNum"`
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	RetryCount     int    `json:"retryCount"`
	Type           int    `json:"type"` // Always 1
	ValidityPeriod int    `json:"validityPeriod"`
}

// SMSResponse represents individual message result from SMS API
type SMSResponse struct {
	MessageID  int64  `json:"messageId"`
	SrcNum     string `json:"srcNum"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

// SMSGatewayChannel sends through the primary SMS gateway
type SMSGatewayChannel struct {
	name   string
	cfg    config.ChannelConfig
	client *resty.Client
}

// NewSMSGatewayChannel creates the gateway channel from its config entry
func NewSMSGatewayChannel(cfg config.ChannelConfig) *SMSGatewayChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-api-key", cfg.APIKey)

	return &SMSGatewayChannel{name: cfg.Name, cfg: cfg, client: client}
}

func (s *SMSGatewayChannel) Name() string { return s.name }

// Send posts a single-item batch; every returned item must be ACCEPTED with status code 200
func (s *SMSGatewayChannel) Send(ctx context.Context, phone, message string) (*ChannelResponse, error) {
	requests := []SMSRequest{{
		SrcNum:         s.cfg.SourceNumber,
		Recipient:      phone,
		Body:           message,
		RetryCount:     s.cfg.RetryCount,
		Type:           1,
		ValidityPeriod: s.cfg.ValidityPeriod,
	}}

	var results []SMSResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(requests).
		SetResult(&results).
		Post(smsGatewaySendPath)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMS request: %w", err)
	}

	out := &ChannelResponse{Raw: rawJSON(resp.Body())}
	if resp.IsError() {
		return out, fmt.Errorf("SMS gateway returned HTTP %d", resp.StatusCode())
	}
	if len(results) == 0 {
		out.Failed = true
		out.Reason = "empty SMS gateway response"
		return out, nil
	}
	for _, r := range results {
		if r.StatusCode != 200 || r.Status != "ACCEPTED" {
			out.Failed = true
			out.Reason = fmt.Sprintf("SMS delivery failed for %s: %s (%d)", r.Recipient, r.Status, r.StatusCode)
			return out, nil
		}
	}
	return out, nil
}
