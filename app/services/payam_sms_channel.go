package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	payamTokenPath = "/auth/oauth/token"
	payamSendPath  = "/panel/webservice/sendMultipleWithSrc"
)

// PayamSMSResponseItem is one entry of the provider's send answer
type PayamSMSResponseItem struct {
	TrackingID string  `json:"customerId"`
	Mobile     string  `json:"mobile"`
	ServerID   *string `json:"serverId"`
	ErrorCode  *string `json:"errorCode"`
	Desc       *string `json:"description"`
}

type payamTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// PayamSMSChannel is the token-authenticated secondary SMS provider
type PayamSMSChannel struct {
	name   string
	cfg    config.ChannelConfig
	client *resty.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayamSMSChannel creates the channel from its config entry
func NewPayamSMSChannel(cfg config.ChannelConfig) *PayamSMSChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &PayamSMSChannel{name: cfg.Name, cfg: cfg, client: client}
}

func (c *PayamSMSChannel) Name() string { return c.name }

func (c *PayamSMSChannel) Send(ctx context.Context, phone, message string) (*ChannelResponse, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"sender": c.cfg.SourceNumber,
		"smsItems": []map[string]any{{
			"recipient":  phone,
			"body":       message,
			"customerId": uuid.NewString(),
		}},
	}

	var items []PayamSMSResponseItem
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(payload).
		SetResult(&items).
		Post(payamSendPath)
	if err != nil {
		return nil, fmt.Errorf("payamsms send request failed: %w", err)
	}

	out := &ChannelResponse{Raw: rawJSON(resp.Body())}
	if resp.IsError() {
		if resp.StatusCode() == 401 {
			c.invalidateToken()
		}
		return out, fmt.Errorf("payamsms sendMultiple http status: %d", resp.StatusCode())
	}
	if len(items) == 0 {
		out.Failed = true
		out.Reason = "empty payamsms response"
		return out, nil
	}
	for _, it := range items {
		if it.ErrorCode != nil && *it.ErrorCode != "" {
			out.Failed = true
			out.Reason = "payamsms error " + *it.ErrorCode
			if it.Desc != nil {
				out.Reason += ": " + *it.Desc
			}
			return out, nil
		}
	}
	return out, nil
}

// getToken returns the cached access token, fetching a new one when it expired
func (c *PayamSMSChannel) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var out payamTokenResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"systemName": c.cfg.SystemName,
			"username":   c.cfg.Username,
			"password":   c.cfg.Password,
			"scope":      "webservice",
			"grant_type": "password",
		}).
		SetResult(&out).
		Post(payamTokenPath)
	if err != nil {
		return "", fmt.Errorf("payamsms token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("payamsms token http status: %d", resp.StatusCode())
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("payamsms returned an empty access_token")
	}

	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	// refresh a little early
	c.token = out.AccessToken
	c.tokenExpiry = time.Now().Add(ttl - ttl/10)
	return c.token, nil
}

func (c *PayamSMSChannel) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
