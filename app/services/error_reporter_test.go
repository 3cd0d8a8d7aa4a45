package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/amirphl/specialist-referral/config"
	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSentry_EmptyDSN(t *testing.T) {
	reporter, err := InitSentry(config.SentryConfig{}, "test", "dev")
	require.NoError(t, err)
	assert.IsType(t, NopReporter{}, reporter)
	reporter.CaptureError(errors.New("ignored"), nil)
}

func TestSentryReporter_CaptureError(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	reporter := NewSentryReporter(sentry.NewHub(client, sentry.NewScope()))
	reporter.CaptureError(errors.New("all channels failed"), map[string]any{"phone": "905321112233"})
	reporter.CaptureError(nil, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "905321112233", events[0].Extra["phone"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "all channels failed", events[0].Exception[0].Value)
}
