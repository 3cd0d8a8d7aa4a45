package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirphl/specialist-referral/app/services"
	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"go.uber.org/zap"
)

// DispatchStatus is the outcome of one dispatch sequence
type DispatchStatus string

const (
	DispatchStatusSuccess   DispatchStatus = "success"
	DispatchStatusError     DispatchStatus = "error"
	DispatchStatusNoContact DispatchStatus = "no_contact"
)

const notificationLogWriteTimeout = 5 * time.Second

// NotificationRequest carries the message plus the references stored in the audit log
type NotificationRequest struct {
	Phone          string
	Message        string
	ContactSource  ContactSource
	SpecialistID   uint
	SpecialistName string
	ClientName     string
	ClientContact  string
	TriggeredBy    string
	RequestID      string
}

// DispatchResult describes what happened to a notification
type DispatchResult struct {
	Status      DispatchStatus            `json:"status"`
	Phone       string                    `json:"phone,omitempty"`
	UsedChannel string                    `json:"used_channel,omitempty"`
	Error       string                    `json:"error,omitempty"`
	Attempts    []services.ChannelAttempt `json:"attempts,omitempty"`
	LogID       uint                      `json:"log_id,omitempty"`
}

// NotificationDispatcher delivers a message through the first working channel and
// records exactly one log entry per dispatch. It never returns an error: delivery
// is a side effect of a committed referral.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, req NotificationRequest) DispatchResult
}

// NotificationDispatcherImpl implements NotificationDispatcher
type NotificationDispatcherImpl struct {
	channels []services.Channel
	logRepo  repository.NotificationLogRepository
	reporter services.ErrorReporter
	source   string
	logger   *zap.Logger
}

// NewNotificationDispatcher creates a dispatcher over an ordered channel list (primary first)
func NewNotificationDispatcher(
	channels []services.Channel,
	logRepo repository.NotificationLogRepository,
	reporter services.ErrorReporter,
	source string,
	logger *zap.Logger,
) NotificationDispatcher {
	if reporter == nil {
		reporter = services.NopReporter{}
	}
	return &NotificationDispatcherImpl{
		channels: channels,
		logRepo:  logRepo,
		reporter: reporter,
		source:   source,
		logger:   logger,
	}
}

func (d *NotificationDispatcherImpl) Dispatch(ctx context.Context, req NotificationRequest) DispatchResult {
	if req.Phone == "" {
		services.NotificationDispatchTotal.WithLabelValues(string(DispatchStatusNoContact)).Inc()
		d.logger.Info("No deliverable contact; notification skipped",
			zap.Uint("specialist_id", req.SpecialistID),
			zap.String("specialist_name", req.SpecialistName),
		)
		return DispatchResult{Status: DispatchStatusNoContact}
	}

	outcome := services.SendFirstSuccess(ctx, d.channels, req.Phone, req.Message)
	services.ObserveAttempts(outcome.Attempts)

	result := DispatchResult{
		Status:      DispatchStatusSuccess,
		Phone:       req.Phone,
		UsedChannel: outcome.UsedChannel,
		Attempts:    outcome.Attempts,
	}
	if !outcome.Success {
		result.Status = DispatchStatusError
		if outcome.Err != nil {
			result.Error = outcome.Err.Error()
		}
		d.reportExhausted(req, outcome)
	}
	services.NotificationDispatchTotal.WithLabelValues(string(result.Status)).Inc()

	result.LogID = d.writeLog(ctx, req, result, outcome)
	return result
}

func (d *NotificationDispatcherImpl) reportExhausted(req NotificationRequest, outcome services.DeliveryOutcome) {
	services.NotificationExhaustedTotal.Inc()

	d.logger.Warn("All delivery channels failed",
		zap.String("phone", req.Phone),
		zap.Uint("specialist_id", req.SpecialistID),
		zap.String("last_channel", outcome.UsedChannel),
		zap.Int("attempts", len(outcome.Attempts)),
		zap.Error(outcome.Err),
	)

	if outcome.Err != nil {
		d.reporter.CaptureError(outcome.Err, map[string]any{
			"phone":         req.Phone,
			"specialist_id": req.SpecialistID,
			"last_channel":  outcome.UsedChannel,
			"request_id":    req.RequestID,
		})
	}
}

// writeLog persists the audit entry on a context detached from the dispatch deadline
func (d *NotificationDispatcherImpl) writeLog(ctx context.Context, req NotificationRequest, result DispatchResult, outcome services.DeliveryOutcome) uint {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationLogWriteTimeout)
	defer cancel()

	attempts, _ := json.Marshal(outcome.Attempts)
	entry := &models.NotificationLog{
		Phone:          req.Phone,
		Message:        req.Message,
		Status:         models.NotificationStatusSuccess,
		UsedChannel:    result.UsedChannel,
		Response:       outcome.Response,
		Attempts:       attempts,
		TriggeredBy:    req.TriggeredBy,
		Source:         d.source,
		ContactSource:  string(req.ContactSource),
		SpecialistName: req.SpecialistName,
		ClientName:     req.ClientName,
		ClientContact:  req.ClientContact,
		RequestID:      utils.NonEmptyPtr(req.RequestID),
		CreatedAt:      utils.UTCNow(),
	}
	if req.SpecialistID != 0 {
		entry.SpecialistID = utils.ToPtr(req.SpecialistID)
	}
	if result.Status == DispatchStatusError {
		entry.Status = models.NotificationStatusError
		entry.Error = utils.ToPtr(result.Error)
	}

	if err := d.logRepo.Save(logCtx, entry); err != nil {
		d.logger.Error("Failed to write notification log",
			zap.String("phone", req.Phone),
			zap.String("status", string(result.Status)),
			zap.Error(err),
		)
		d.reporter.CaptureError(err, map[string]any{"phone": req.Phone, "request_id": req.RequestID})
		return 0
	}
	return entry.ID
}
