// Package services provides external service integrations and technical concerns like delivery channels, lookups and tokens
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNoChannels      = errors.New("no delivery channels configured")
	ErrChannelRejected = errors.New("channel rejected the message")
)

// Channel delivers a message to a phone number. Implementations return an error
// for transport failures and a response with Failed set when the provider
// accepted the call but its payload reports a failure.
type Channel interface {
	Name() string
	Send(ctx context.Context, phone, message string) (*ChannelResponse, error)
}

// ChannelResponse is the raw provider answer
type ChannelResponse struct {
	Raw    json.RawMessage
	Failed bool
	Reason string
}

// ChannelAttempt is one try inside a dispatch sequence
type ChannelAttempt struct {
	Channel    string          `json:"channel"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// DeliveryOutcome summarises a first-success-wins run over a channel list
type DeliveryOutcome struct {
	Success     bool
	UsedChannel string // winner, or the last channel tried
	Response    json.RawMessage
	Err         error // error of the last attempted channel
	Attempts    []ChannelAttempt
}

// SendFirstSuccess tries channels in order and stops at the first one that neither
// errors nor signals failure in its payload.
func SendFirstSuccess(ctx context.Context, channels []Channel, phone, message string) DeliveryOutcome {
	var outcome DeliveryOutcome
	if len(channels) == 0 {
		outcome.Err = ErrNoChannels
		return outcome
	}

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			outcome.Err = fmt.Errorf("dispatch aborted before %s: %w", ch.Name(), err)
			break
		}

		started := time.Now()
		resp, err := ch.Send(ctx, phone, message)
		if err == nil && resp != nil && resp.Failed {
			reason := resp.Reason
			if reason == "" {
				reason = "failure reported in response payload"
			}
			err = fmt.Errorf("%w: %s", ErrChannelRejected, reason)
		}

		attempt := ChannelAttempt{
			Channel:    ch.Name(),
			Success:    err == nil,
			DurationMs: time.Since(started).Milliseconds(),
		}
		if resp != nil {
			attempt.Response = resp.Raw
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		outcome.Attempts = append(outcome.Attempts, attempt)
		outcome.UsedChannel = attempt.Channel
		outcome.Response = attempt.Response
		outcome.Err = err

		if err == nil {
			outcome.Success = true
			return outcome
		}
	}

	return outcome
}

// PayloadSignalsFailure inspects a JSON object response for the usual failure
// markers: success/ok false, a non-empty error, or an error-like status.
func PayloadSignalsFailure(raw []byte) (bool, string) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return false, ""
	}

	reason := firstString(body, "error", "message", "description", "msg")

	for _, key := range []string{"success", "ok"} {
		if v, ok := body[key].(bool); ok && !v {
			return true, orDefault(reason, key+"=false")
		}
	}

	switch v := body["error"].(type) {
	case nil:
	case bool:
		if v {
			return true, orDefault(reason, "error=true")
		}
	case string:
		if strings.TrimSpace(v) != "" {
			return true, v
		}
	default:
		encoded, _ := json.Marshal(v)
		return true, string(encoded)
	}

	if status, ok := body["status"].(string); ok {
		switch strings.ToLower(status) {
		case "error", "failed", "failure", "rejected":
			return true, orDefault(reason, "status="+status)
		}
	}

	return false, ""
}

// rawJSON keeps valid JSON as is and wraps anything else as a JSON string so it
// can be stored in a jsonb column
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	encoded, _ := json.Marshal(string(b))
	return encoded
}

func firstString(body map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
