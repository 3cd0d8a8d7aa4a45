package services

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/go-resty/resty/v2"
)

// FunctionChannel posts {phone, message} to a hosted function endpoint (WhatsApp or SMS relays).
// The endpoint may answer 200 with a failure in its payload, so the body is always inspected.
type FunctionChannel struct {
	name   string
	url    string
	client *resty.Client
}

type functionRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewFunctionChannel creates the channel from its config entry
func NewFunctionChannel(cfg config.ChannelConfig) *FunctionChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey).SetHeader("apikey", cfg.APIKey)
	}

	return &FunctionChannel{name: cfg.Name, url: cfg.URL, client: client}
}

func (f *FunctionChannel) Name() string { return f.name }

func (f *FunctionChannel) Send(ctx context.Context, phone, message string) (*ChannelResponse, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(functionRequest{Phone: phone, Message: message}).
		Post(f.url)
	if err != nil {
		return nil, fmt.Errorf("function %s request failed: %w", f.name, err)
	}

	out := &ChannelResponse{Raw: rawJSON(resp.Body())}
	if resp.IsError() {
		return out, fmt.Errorf("function %s returned HTTP %d", f.name, resp.StatusCode())
	}
	out.Failed, out.Reason = PayloadSignalsFailure(resp.Body())
	return out, nil
}
