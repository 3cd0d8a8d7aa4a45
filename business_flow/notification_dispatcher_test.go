package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/specialist-referral/app/services"
	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// memoryLogRepo keeps notification logs in memory
type memoryLogRepo struct {
	repository.NotificationLogRepository

	mu      sync.Mutex
	entries []*models.NotificationLog
	saveErr error
}

func (r *memoryLogRepo) Save(_ context.Context, entry *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	entry.ID = uint(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryLogRepo) all() []*models.NotificationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.NotificationLog(nil), r.entries...)
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) CaptureError(err error, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Flush(_ time.Duration) bool { return true }

func TestNotificationDispatcher_FallsBackInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	primary := services.NewMockChannel("sms_gateway")
	primary.FailWith = "connection reset"
	secondary := services.NewMockChannel("payam_sms")
	secondary.RejectWith = "invalid sender"
	tertiary := services.NewMockChannel("function")

	logs := &memoryLogRepo{}
	dispatcher := NewNotificationDispatcher([]services.Channel{primary, secondary, tertiary}, logs, nil, "referral_confirm", zap.NewNop())

	result := dispatcher.Dispatch(context.Background(), NotificationRequest{
		Phone:          "905551112233",
		Message:        "hello",
		ContactSource:  ContactSourceOrderHistory,
		SpecialistID:   7,
		SpecialistName: "Dr. X",
		TriggeredBy:    "operator:1",
	})

	assert.Equal(t, DispatchStatusSuccess, result.Status)
	assert.Equal(t, "function", result.UsedChannel)
	require.Len(t, result.Attempts, 3)
	assert.False(t, result.Attempts[0].Success)
	assert.False(t, result.Attempts[1].Success)
	assert.True(t, result.Attempts[2].Success)
	assert.Len(t, tertiary.GetSentMessages(), 1)

	entries := logs.all()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, result.LogID, entry.ID)
	assert.Equal(t, models.NotificationStatusSuccess, entry.Status)
	assert.Equal(t, "function", entry.UsedChannel)
	assert.Nil(t, entry.Error)
	assert.Equal(t, "referral_confirm", entry.Source)
	assert.Equal(t, string(ContactSourceOrderHistory), entry.ContactSource)

	var attempts []services.ChannelAttempt
	require.NoError(t, json.Unmarshal(entry.Attempts, &attempts))
	assert.Len(t, attempts, 3)
}

func TestNotificationDispatcher_AllChannelsFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	first := services.NewMockChannel("sms_gateway")
	first.FailWith = "timeout"
	last := services.NewMockChannel("function")
	last.RejectWith = "quota exceeded"

	logs := &memoryLogRepo{}
	reporter := &recordingReporter{}
	dispatcher := NewNotificationDispatcher([]services.Channel{first, last}, logs, reporter, "referral_confirm", zap.NewNop())

	result := dispatcher.Dispatch(context.Background(), NotificationRequest{Phone: "905551112233", Message: "hello"})

	assert.Equal(t, DispatchStatusError, result.Status)
	assert.Equal(t, "function", result.UsedChannel)
	assert.Contains(t, result.Error, "quota exceeded")

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.NotificationStatusError, entries[0].Status)
	require.NotNil(t, entries[0].Error)
	assert.Contains(t, *entries[0].Error, "quota exceeded")
	assert.Len(t, reporter.errs, 1)
}

func TestNotificationDispatcher_NoContact(t *testing.T) {
	channel := services.NewMockChannel("sms_gateway")
	logs := &memoryLogRepo{}
	dispatcher := NewNotificationDispatcher([]services.Channel{channel}, logs, nil, "referral_confirm", zap.NewNop())

	result := dispatcher.Dispatch(context.Background(), NotificationRequest{Message: "hello"})

	assert.Equal(t, DispatchStatusNoContact, result.Status)
	assert.Empty(t, channel.GetSentMessages())
	assert.Empty(t, logs.all())
}

func TestNotificationDispatcher_LogWriteFailureDoesNotFailDispatch(t *testing.T) {
	channel := services.NewMockChannel("sms_gateway")
	logs := &memoryLogRepo{saveErr: errors.New("db down")}
	reporter := &recordingReporter{}
	dispatcher := NewNotificationDispatcher([]services.Channel{channel}, logs, reporter, "referral_confirm", zap.NewNop())

	result := dispatcher.Dispatch(context.Background(), NotificationRequest{Phone: "905551112233", Message: "hello"})

	assert.Equal(t, DispatchStatusSuccess, result.Status)
	assert.Zero(t, result.LogID)
	assert.Len(t, reporter.errs, 1)
}

func TestNotificationDispatcher_CancelledContextStillLogs(t *testing.T) {
	channel := services.NewMockChannel("sms_gateway")
	logs := &memoryLogRepo{}
	dispatcher := NewNotificationDispatcher([]services.Channel{channel}, logs, nil, "referral_confirm", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := dispatcher.Dispatch(ctx, NotificationRequest{Phone: "905551112233", Message: "hello"})

	assert.Equal(t, DispatchStatusError, result.Status)
	assert.Len(t, logs.all(), 1)
}
