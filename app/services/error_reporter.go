package services

import (
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/getsentry/sentry-go"
)

// ErrorReporter forwards failures that need human attention
type ErrorReporter interface {
	CaptureError(err error, extras map[string]any)
	Flush(timeout time.Duration) bool
}

// SentryReporter reports through a Sentry hub
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter(hub *sentry.Hub) *SentryReporter {
	return &SentryReporter{hub: hub}
}

// InitSentry configures the global Sentry client. An empty DSN yields a no-op reporter.
func InitSentry(cfg config.SentryConfig, environment, release string) (ErrorReporter, error) {
	if cfg.DSN == "" {
		return NopReporter{}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      environment,
		Release:          "specialist-referral@" + release,
		TracesSampleRate: cfg.TracesSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}
	return NewSentryReporter(sentry.CurrentHub()), nil
}

func (r *SentryReporter) CaptureError(err error, extras map[string]any) {
	if err == nil || r.hub == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		r.hub.CaptureException(err)
	})
}

func (r *SentryReporter) Flush(timeout time.Duration) bool {
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}

// NopReporter drops everything
type NopReporter struct{}

func (NopReporter) CaptureError(error, map[string]any) {}
func (NopReporter) Flush(time.Duration) bool           { return true }
