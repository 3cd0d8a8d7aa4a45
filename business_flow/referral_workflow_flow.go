package businessflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowState is a state of the referral workflow
type WorkflowState string

const (
	StateIdle       WorkflowState = "idle"
	StateStaged     WorkflowState = "staged"
	StateValidating WorkflowState = "validating"
	StateCommitting WorkflowState = "committing"
	StateNotifying  WorkflowState = "notifying"
)

// legal transitions; anything else is ErrInvalidStateTransition
var workflowTransitions = map[WorkflowState][]WorkflowState{
	StateIdle:       {StateStaged, StateCommitting},
	StateStaged:     {StateValidating, StateIdle},
	StateValidating: {StateStaged, StateCommitting},
	StateCommitting: {StateNotifying, StateStaged, StateIdle},
	StateNotifying:  {StateIdle},
}

type workflowMachine struct {
	state WorkflowState
}

func (m *workflowMachine) transition(to WorkflowState) error {
	for _, allowed := range workflowTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, m.state, to)
}

// AckOutcome names the terminal state an operator action ended in
type AckOutcome string

const (
	AckCommitted         AckOutcome = "committed"
	AckValidationFailed  AckOutcome = "validation_failed"
	AckPersistenceFailed AckOutcome = "persistence_failed"
	AckCancelled         AckOutcome = "cancelled"
	AckDecremented       AckOutcome = "decremented"
)

// Notice is the secondary, non-blocking message about notification delivery
type Notice struct {
	Level   string `json:"level"` // info, warning
	Message string `json:"message"`
}

// Acknowledgment is the single user-facing message of a terminal state
type Acknowledgment struct {
	Outcome AckOutcome `json:"outcome"`
	Message string     `json:"message"`
	Notice  *Notice    `json:"notice,omitempty"`
}

// StageRequest asks for a provisional increment
type StageRequest struct {
	SpecialistID uint
	Year         int
	Month        int
}

// StageResult is what the confirmation form shows
type StageResult struct {
	StagingID        string
	SpecialistName   string
	Period           repository.Period
	CurrentTotal     int64
	ProvisionalTotal int64
	ExpiresAt        time.Time
}

// ConfirmResult describes a confirmed referral. On failure it still carries the acknowledgment.
type ConfirmResult struct {
	Period           repository.Period
	PreviousTotal    int64
	NewTotal         int64
	ProvisionalTotal int64
	Contact          ResolvedContact
	Notification     DispatchResult
	Acknowledgment   Acknowledgment
}

// DecrementResult describes a removed referral
type DecrementResult struct {
	Period         repository.Period
	PreviousTotal  int64
	NewTotal       int64
	Acknowledgment Acknowledgment
}

// CancelResult describes a discarded staging
type CancelResult struct {
	StagingID      string
	Acknowledgment Acknowledgment
}

// ReferralWorkflowFlow orchestrates staging, confirmation, commit and notification
type ReferralWorkflowFlow interface {
	Stage(ctx context.Context, req StageRequest, meta *ClientMetadata) (*StageResult, error)
	Confirm(ctx context.Context, stagingID string, client ClientIdentity, meta *ClientMetadata) (*ConfirmResult, error)
	Cancel(ctx context.Context, stagingID string, meta *ClientMetadata) (*CancelResult, error)
	Decrement(ctx context.Context, period repository.Period, meta *ClientMetadata) (*DecrementResult, error)
	SetNotes(ctx context.Context, period repository.Period, text string, meta *ClientMetadata) (*NotesWriteReport, error)
	Count(ctx context.Context, period repository.Period) (int64, error)
	Snapshot(ctx context.Context, period repository.Period) (*PeriodSnapshot, error)
}

// WorkflowOptions tunes the workflow
type WorkflowOptions struct {
	StagingTTL      time.Duration
	DispatchTimeout time.Duration
	MessageTemplate string
}

// ReferralWorkflowFlowImpl implements ReferralWorkflowFlow
type ReferralWorkflowFlowImpl struct {
	store          ReferralStore
	stagings       StagingStore
	resolver       ContactResolver
	dispatcher     NotificationDispatcher
	specialistRepo repository.SpecialistRepository
	auditRepo      repository.AuditLogRepository
	message        *template.Template
	opts           WorkflowOptions
	logger         *zap.Logger
}

// messageData is the data the notification template renders
type messageData struct {
	SpecialistName string
	ClientName     string
	ClientSurname  string
	ClientContact  string
	Year           int
	Month          int
	Total          int64
}

// NewReferralWorkflowFlow creates the workflow; it fails only on an unparsable message template
func NewReferralWorkflowFlow(
	store ReferralStore,
	stagings StagingStore,
	resolver ContactResolver,
	dispatcher NotificationDispatcher,
	specialistRepo repository.SpecialistRepository,
	auditRepo repository.AuditLogRepository,
	opts WorkflowOptions,
	logger *zap.Logger,
) (ReferralWorkflowFlow, error) {
	if opts.StagingTTL <= 0 {
		opts.StagingTTL = utils.DefaultStagingTTL
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	if opts.MessageTemplate == "" {
		return nil, fmt.Errorf("message template is required")
	}

	tmpl, err := template.New("referral_notification").Option("missingkey=zero").Parse(opts.MessageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}

	return &ReferralWorkflowFlowImpl{
		store:          store,
		stagings:       stagings,
		resolver:       resolver,
		dispatcher:     dispatcher,
		specialistRepo: specialistRepo,
		auditRepo:      auditRepo,
		message:        tmpl,
		opts:           opts,
		logger:         logger,
	}, nil
}

// Stage captures the period and a display-only provisional total. Nothing is written
// to the event store.
func (f *ReferralWorkflowFlowImpl) Stage(ctx context.Context, req StageRequest, meta *ClientMetadata) (*StageResult, error) {
	period := repository.Period{SpecialistID: req.SpecialistID, Year: req.Year, Month: req.Month}
	if err := validatePeriod(period); err != nil {
		return nil, NewBusinessError("INVALID_PERIOD", "Specialist, year or month is invalid", err)
	}

	specialist, err := f.loadSpecialist(ctx, req.SpecialistID)
	if err != nil {
		return nil, err
	}

	machine := workflowMachine{state: StateIdle}
	if err := machine.transition(StateStaged); err != nil {
		return nil, err
	}

	current, err := f.store.Aggregate(ctx, period)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	staging := &Staging{
		ID:               uuid.NewString(),
		Period:           period,
		SpecialistName:   specialist.Name,
		CurrentTotal:     current,
		ProvisionalTotal: current + 1,
		State:            machine.state,
		OperatorID:       operatorID(meta),
		CreatedAt:        now,
		ExpiresAt:        now.Add(f.opts.StagingTTL),
	}
	if err := f.stagings.Put(ctx, staging, f.opts.StagingTTL); err != nil {
		return nil, NewBusinessError("STAGING_FAILED", "Failed to stage referral", err)
	}

	f.audit(ctx, meta, period.SpecialistID, models.AuditActionReferralStaged,
		fmt.Sprintf("Staged referral for %s %d-%02d", specialist.Name, period.Year, period.Month),
		nil, map[string]any{"staging_id": staging.ID, "current_total": current})

	return &StageResult{
		StagingID:        staging.ID,
		SpecialistName:   specialist.Name,
		Period:           period,
		CurrentTotal:     current,
		ProvisionalTotal: staging.ProvisionalTotal,
		ExpiresAt:        staging.ExpiresAt,
	}, nil
}

// Confirm validates the client, re-reads the total, commits and then notifies.
// Notification problems never fail the call.
func (f *ReferralWorkflowFlowImpl) Confirm(ctx context.Context, stagingID string, client ClientIdentity, meta *ClientMetadata) (*ConfirmResult, error) {
	staging, err := f.stagings.Get(ctx, stagingID)
	if err != nil {
		return nil, f.stagingError(err)
	}

	machine := workflowMachine{state: staging.State}
	result := &ConfirmResult{Period: staging.Period, ProvisionalTotal: staging.ProvisionalTotal}

	// staged -> validating
	if err := machine.transition(StateValidating); err != nil {
		return nil, err
	}
	client = client.Trimmed()
	if !client.Complete() {
		_ = machine.transition(StateStaged)
		result.Acknowledgment = Acknowledgment{
			Outcome: AckValidationFailed,
			Message: "Client name, surname and contact are required",
		}
		return result, NewBusinessError("CLIENT_FIELDS_REQUIRED", result.Acknowledgment.Message, ErrClientFieldsRequired)
	}

	// validating -> committing: the total is re-read now, not taken from staging
	if err := machine.transition(StateCommitting); err != nil {
		return nil, err
	}
	// a concurrent confirm of the same staging loses here and never commits
	taken, err := f.stagings.Take(ctx, stagingID)
	if err != nil {
		return nil, f.stagingError(err)
	}
	staging = taken

	previous, err := f.store.Aggregate(ctx, staging.Period)
	if err == nil {
		result.PreviousTotal = previous
		result.NewTotal, err = f.store.Increment(ctx, staging.Period, client)
	}
	if err != nil {
		return result, f.failCommit(ctx, staging, &machine, result, err, meta)
	}

	if staging.CurrentTotal != previous {
		f.logger.Info("Referral total changed between staging and commit",
			zap.String("staging_id", stagingID),
			zap.Int64("staged_total", staging.CurrentTotal),
			zap.Int64("committed_from", previous),
		)
	}

	f.audit(ctx, meta, staging.Period.SpecialistID, models.AuditActionReferralConfirmed,
		fmt.Sprintf("Referral of %s %s confirmed", client.Name, client.Surname),
		nil, map[string]any{"staging_id": stagingID, "previous_total": previous, "new_total": result.NewTotal})

	// committing -> notifying
	if err := machine.transition(StateNotifying); err != nil {
		return nil, err
	}
	result.Contact, result.Notification = f.notify(ctx, staging, client, result.NewTotal, meta)

	// notifying -> idle, whatever the dispatch outcome
	if err := machine.transition(StateIdle); err != nil {
		return nil, err
	}

	result.Acknowledgment = Acknowledgment{
		Outcome: AckCommitted,
		Message: fmt.Sprintf("Referral recorded for %s. Total for %s %d: %d",
			staging.SpecialistName, utils.MonthName(staging.Period.Month), staging.Period.Year, result.NewTotal),
		Notice: dispatchNotice(result.Notification, staging.SpecialistName),
	}
	return result, nil
}

// failCommit puts the staging back so the operator can retry
func (f *ReferralWorkflowFlowImpl) failCommit(ctx context.Context, staging *Staging, machine *workflowMachine, result *ConfirmResult, cause error, meta *ClientMetadata) error {
	_ = machine.transition(StateStaged)
	staging.State = machine.state
	if err := f.stagings.Put(ctx, staging, time.Until(staging.ExpiresAt)); err != nil {
		f.logger.Error("Failed to restore staging after commit failure", zap.String("staging_id", staging.ID), zap.Error(err))
	}

	f.logger.Error("Referral commit failed",
		zap.String("staging_id", staging.ID),
		zap.Uint("specialist_id", staging.Period.SpecialistID),
		zap.Error(cause),
	)
	f.audit(ctx, meta, staging.Period.SpecialistID, models.AuditActionReferralCommitFailed,
		"Referral commit failed", cause, map[string]any{"staging_id": staging.ID})

	result.Acknowledgment = Acknowledgment{
		Outcome: AckPersistenceFailed,
		Message: "Referral could not be saved; nothing was changed",
	}

	var be *BusinessError
	if errors.As(cause, &be) {
		return be
	}
	return NewBusinessError("COMMIT_FAILED", result.Acknowledgment.Message, cause)
}

// notify resolves the contact and dispatches on a context that outlives the request
func (f *ReferralWorkflowFlowImpl) notify(ctx context.Context, staging *Staging, client ClientIdentity, total int64, meta *ClientMetadata) (ResolvedContact, DispatchResult) {
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.opts.DispatchTimeout)
	defer cancel()

	identity := SpecialistIdentity{Name: staging.SpecialistName}
	if specialist, err := f.specialistRepo.ByID(dispatchCtx, staging.Period.SpecialistID); err != nil {
		f.logger.Warn("Failed to reload specialist for contact resolution", zap.Error(err))
	} else if specialist != nil {
		identity = SpecialistIdentity{
			Name:           specialist.Name,
			Email:          utils.DerefString(specialist.Email),
			DirectoryPhone: utils.DerefString(specialist.Phone),
		}
	}

	contact := f.resolver.Resolve(dispatchCtx, identity)
	message := f.renderMessage(messageData{
		SpecialistName: identity.Name,
		ClientName:     client.Name,
		ClientSurname:  client.Surname,
		ClientContact:  client.Contact,
		Year:           staging.Period.Year,
		Month:          staging.Period.Month,
		Total:          total,
	})

	dispatch := f.dispatcher.Dispatch(dispatchCtx, NotificationRequest{
		Phone:          contact.Phone,
		Message:        message,
		ContactSource:  contact.Source,
		SpecialistID:   staging.Period.SpecialistID,
		SpecialistName: identity.Name,
		ClientName:     client.Name + " " + client.Surname,
		ClientContact:  client.Contact,
		TriggeredBy:    triggeredBy(meta),
		RequestID:      requestID(meta),
	})
	return contact, dispatch
}

func (f *ReferralWorkflowFlowImpl) renderMessage(data messageData) string {
	var buf bytes.Buffer
	if err := f.message.Execute(&buf, data); err != nil {
		f.logger.Error("Failed to render notification template", zap.Error(err))
		return fmt.Sprintf("%s: %s %s - %s", data.SpecialistName, data.ClientName, data.ClientSurname, data.ClientContact)
	}
	return buf.String()
}

// Cancel discards a staging; nothing else changes
func (f *ReferralWorkflowFlowImpl) Cancel(ctx context.Context, stagingID string, meta *ClientMetadata) (*CancelResult, error) {
	staging, err := f.stagings.Take(ctx, stagingID)
	if err != nil {
		return nil, f.stagingError(err)
	}

	machine := workflowMachine{state: staging.State}
	if err := machine.transition(StateIdle); err != nil {
		return nil, err
	}

	f.audit(ctx, meta, staging.Period.SpecialistID, models.AuditActionReferralCancelled,
		"Staged referral cancelled", nil, map[string]any{"staging_id": stagingID})

	return &CancelResult{
		StagingID: stagingID,
		Acknowledgment: Acknowledgment{
			Outcome: AckCancelled,
			Message: "Staged referral discarded",
		},
	}, nil
}

// Decrement removes the latest referral of the period without staging or notification
func (f *ReferralWorkflowFlowImpl) Decrement(ctx context.Context, period repository.Period, meta *ClientMetadata) (*DecrementResult, error) {
	if err := validatePeriod(period); err != nil {
		return nil, NewBusinessError("INVALID_PERIOD", "Specialist, year or month is invalid", err)
	}
	if _, err := f.loadSpecialist(ctx, period.SpecialistID); err != nil {
		return nil, err
	}

	machine := workflowMachine{state: StateIdle}
	if err := machine.transition(StateCommitting); err != nil {
		return nil, err
	}

	result := &DecrementResult{Period: period}
	previous, err := f.store.Aggregate(ctx, period)
	if err == nil {
		result.PreviousTotal = previous
		result.NewTotal, err = f.store.Decrement(ctx, period)
	}
	if err != nil {
		f.logger.Error("Referral decrement failed", zap.Uint("specialist_id", period.SpecialistID), zap.Error(err))
		f.audit(ctx, meta, period.SpecialistID, models.AuditActionReferralCommitFailed,
			"Referral decrement failed", err, nil)
		result.Acknowledgment = Acknowledgment{
			Outcome: AckPersistenceFailed,
			Message: "Referral could not be removed; nothing was changed",
		}
		return result, err
	}

	if err := machine.transition(StateIdle); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Latest referral removed. Total for %s %d: %d", utils.MonthName(period.Month), period.Year, result.NewTotal)
	if previous == 0 {
		message = fmt.Sprintf("No referrals to remove for %s %d", utils.MonthName(period.Month), period.Year)
	}
	result.Acknowledgment = Acknowledgment{Outcome: AckDecremented, Message: message}

	f.audit(ctx, meta, period.SpecialistID, models.AuditActionReferralDecremented, message, nil,
		map[string]any{"previous_total": previous, "new_total": result.NewTotal})
	return result, nil
}

// SetNotes stores notes on every row of the period
func (f *ReferralWorkflowFlowImpl) SetNotes(ctx context.Context, period repository.Period, text string, meta *ClientMetadata) (*NotesWriteReport, error) {
	report, err := f.store.SetNotes(ctx, period, text)
	if report != nil {
		f.audit(ctx, meta, period.SpecialistID, models.AuditActionReferralNotesUpdated,
			fmt.Sprintf("Notes updated on %d of %d rows", report.Updated, report.Total), err,
			map[string]any{"report": report})
	}
	return report, err
}

// Count returns the authoritative total
func (f *ReferralWorkflowFlowImpl) Count(ctx context.Context, period repository.Period) (int64, error) {
	return f.store.Aggregate(ctx, period)
}

// Snapshot returns the period state for display
func (f *ReferralWorkflowFlowImpl) Snapshot(ctx context.Context, period repository.Period) (*PeriodSnapshot, error) {
	return f.store.Snapshot(ctx, period)
}

func (f *ReferralWorkflowFlowImpl) loadSpecialist(ctx context.Context, id uint) (*models.Specialist, error) {
	specialist, err := f.specialistRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("SPECIALIST_LOOKUP_FAILED", "Failed to load specialist", err)
	}
	if specialist == nil {
		return nil, NewBusinessError("SPECIALIST_NOT_FOUND", "Specialist not found", ErrSpecialistNotFound)
	}
	if !specialist.IsActive {
		return nil, NewBusinessError("SPECIALIST_INACTIVE", "Specialist is inactive", ErrSpecialistInactive)
	}
	return specialist, nil
}

func (f *ReferralWorkflowFlowImpl) stagingError(err error) error {
	if errors.Is(err, ErrStagingNotFound) {
		return NewBusinessError("STAGING_NOT_FOUND", "Staged referral not found or expired", err)
	}
	return NewBusinessError("STAGING_FAILED", "Failed to read staged referral", err)
}

// audit writes an audit row; failures are logged and ignored
func (f *ReferralWorkflowFlowImpl) audit(ctx context.Context, meta *ClientMetadata, specialistID uint, action, description string, cause error, metadata map[string]any) {
	recordAudit(ctx, f.auditRepo, f.logger, meta, specialistID, action, description, cause, metadata)
}

func dispatchNotice(result DispatchResult, specialistName string) *Notice {
	switch result.Status {
	case DispatchStatusSuccess:
		return &Notice{Level: "info", Message: fmt.Sprintf("Notification sent to %s via %s", result.Phone, result.UsedChannel)}
	case DispatchStatusError:
		return &Notice{Level: "warning", Message: fmt.Sprintf("Notification to %s failed: %s", result.Phone, result.Error)}
	default:
		return &Notice{Level: "warning", Message: fmt.Sprintf("No deliverable contact found for %s; notification skipped", specialistName)}
	}
}

func operatorID(meta *ClientMetadata) uint {
	if meta == nil {
		return 0
	}
	return meta.OperatorID
}

func requestID(meta *ClientMetadata) string {
	if meta == nil {
		return ""
	}
	return meta.RequestID
}

func triggeredBy(meta *ClientMetadata) string {
	if meta == nil || meta.OperatorID == 0 {
		return "operator"
	}
	return fmt.Sprintf("operator:%d", meta.OperatorID)
}
