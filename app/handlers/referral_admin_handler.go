package handlers

import (
	"strconv"
	"time"

	"github.com/amirphl/specialist-referral/app/dto"
	businessflow "github.com/amirphl/specialist-referral/business_flow"
	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// ReferralAdminHandlerInterface defines the operator endpoints of the referral workflow
type ReferralAdminHandlerInterface interface {
	GetPeriod(c fiber.Ctx) error
	Stage(c fiber.Ctx) error
	Confirm(c fiber.Ctx) error
	Cancel(c fiber.Ctx) error
	Decrement(c fiber.Ctx) error
	SetNotes(c fiber.Ctx) error
	Report(c fiber.Ctx) error
	ExportReport(c fiber.Ctx) error
	ListNotifications(c fiber.Ctx) error
	ListAudit(c fiber.Ctx) error
	ContactPreview(c fiber.Ctx) error
}

// ReferralAdminHandler serves the referral workflow to operators
type ReferralAdminHandler struct {
	workflow       businessflow.ReferralWorkflowFlow
	report         businessflow.ReferralReportFlow
	validator      *validator.Validate
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewReferralAdminHandler creates a new referral admin handler
func NewReferralAdminHandler(workflow businessflow.ReferralWorkflowFlow, report businessflow.ReferralReportFlow, requestTimeout time.Duration, logger *zap.Logger) *ReferralAdminHandler {
	return &ReferralAdminHandler{
		workflow:       workflow,
		report:         report,
		validator:      validator.New(),
		requestTimeout: requestTimeout,
		logger:         logger,
	}
}

// GetPeriod returns the total, rows and notes of a specialist month
// @Summary Get referral period
// @Tags Admin Referrals
// @Produce json
// @Security BearerAuth
// @Param specialist_id path int true "Specialist ID"
// @Param year path int true "Year"
// @Param month path int true "Month (1-12)"
// @Success 200 {object} dto.APIResponse{data=dto.PeriodSnapshotResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/{specialist_id}/{year}/{month} [get]
func (h *ReferralAdminHandler) GetPeriod(c fiber.Ctx) error {
	period, ok := periodFromParams(c)
	if !ok {
		return ErrorResponse(c, fiber.StatusBadRequest, "specialist_id, year and month must be numbers", "INVALID_REQUEST", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/:specialist_id/:year/:month", h.requestTimeout)
	defer cancel()

	snapshot, err := h.workflow.Snapshot(ctx, period)
	if err != nil {
		return h.flowError(c, err, "Failed to load referral period")
	}

	resp := dto.PeriodSnapshotResponse{
		SpecialistID: period.SpecialistID,
		Year:         period.Year,
		Month:        period.Month,
		Total:        snapshot.Total,
		Notes:        snapshot.Notes,
		Rows:         make([]dto.ReferralRowDTO, 0, len(snapshot.Rows)),
	}
	for _, row := range snapshot.Rows {
		resp.Rows = append(resp.Rows, toReferralRowDTO(row))
	}
	return SuccessResponse(c, fiber.StatusOK, "Referral period retrieved", resp)
}

// Stage opens a provisional increment and returns the confirmation form data
// @Summary Stage referral
// @Tags Admin Referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.StageReferralRequest true "Specialist month"
// @Success 201 {object} dto.APIResponse{data=dto.StageReferralResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/stage [post]
func (h *ReferralAdminHandler) Stage(c fiber.Ctx) error {
	var req dto.StageReferralRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/stage", h.requestTimeout)
	defer cancel()

	staged, err := h.workflow.Stage(ctx, businessflow.StageRequest{
		SpecialistID: req.SpecialistID,
		Year:         req.Year,
		Month:        req.Month,
	}, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to stage referral")
	}

	return SuccessResponse(c, fiber.StatusCreated, "Referral staged; confirm with the client details", dto.StageReferralResponse{
		StagingID:        staged.StagingID,
		SpecialistID:     staged.Period.SpecialistID,
		SpecialistName:   staged.SpecialistName,
		Year:             staged.Period.Year,
		Month:            staged.Period.Month,
		CurrentTotal:     staged.CurrentTotal,
		ProvisionalTotal: staged.ProvisionalTotal,
		ExpiresAt:        staged.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Confirm commits a staged referral and notifies the specialist
// @Summary Confirm staged referral
// @Tags Admin Referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param staging_id path string true "Staging ID"
// @Param request body dto.ConfirmReferralRequest true "Client identity"
// @Success 200 {object} dto.APIResponse{data=dto.ConfirmReferralResponse}
// @Failure 404 {object} dto.APIResponse
// @Failure 422 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/stage/{staging_id}/confirm [post]
func (h *ReferralAdminHandler) Confirm(c fiber.Ctx) error {
	stagingID := c.Params("staging_id")

	var req dto.ConfirmReferralRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/stage/:staging_id/confirm", h.requestTimeout)
	defer cancel()

	result, err := h.workflow.Confirm(ctx, stagingID, businessflow.ClientIdentity{
		Name:    req.ClientName,
		Surname: req.ClientSurname,
		Contact: req.ClientContact,
	}, clientMetadata(c))
	if err != nil {
		if result != nil {
			status, code := businessErrorStatus(err)
			if status >= fiber.StatusInternalServerError {
				h.logger.Error("Referral confirm failed", zap.String("staging_id", stagingID), zap.Error(err))
			}
			return ErrorResponse(c, status, result.Acknowledgment.Message, code, toAcknowledgmentDTO(result.Acknowledgment))
		}
		return h.flowError(c, err, "Failed to confirm referral")
	}

	return SuccessResponse(c, fiber.StatusOK, result.Acknowledgment.Message, dto.ConfirmReferralResponse{
		SpecialistID:     result.Period.SpecialistID,
		Year:             result.Period.Year,
		Month:            result.Period.Month,
		PreviousTotal:    result.PreviousTotal,
		NewTotal:         result.NewTotal,
		ProvisionalTotal: result.ProvisionalTotal,
		Notification: dto.NotificationResultDTO{
			Status:        string(result.Notification.Status),
			Phone:         result.Notification.Phone,
			ContactSource: string(result.Contact.Source),
			UsedChannel:   result.Notification.UsedChannel,
			Error:         result.Notification.Error,
			Attempts:      len(result.Notification.Attempts),
			LogID:         result.Notification.LogID,
		},
		Acknowledgment: toAcknowledgmentDTO(result.Acknowledgment),
	})
}

// Cancel discards a staged referral
// @Summary Cancel staged referral
// @Tags Admin Referrals
// @Produce json
// @Security BearerAuth
// @Param staging_id path string true "Staging ID"
// @Success 200 {object} dto.APIResponse{data=dto.CancelReferralResponse}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/stage/{staging_id} [delete]
func (h *ReferralAdminHandler) Cancel(c fiber.Ctx) error {
	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/stage/:staging_id", h.requestTimeout)
	defer cancel()

	result, err := h.workflow.Cancel(ctx, c.Params("staging_id"), clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to cancel staged referral")
	}

	return SuccessResponse(c, fiber.StatusOK, result.Acknowledgment.Message, dto.CancelReferralResponse{
		StagingID:      result.StagingID,
		Acknowledgment: toAcknowledgmentDTO(result.Acknowledgment),
	})
}

// Decrement removes the latest referral of a specialist month
// @Summary Decrement referral count
// @Tags Admin Referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.PeriodRequest true "Specialist month"
// @Success 200 {object} dto.APIResponse{data=dto.DecrementReferralResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/decrement [post]
func (h *ReferralAdminHandler) Decrement(c fiber.Ctx) error {
	var req dto.PeriodRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/decrement", h.requestTimeout)
	defer cancel()

	period := repository.Period{SpecialistID: req.SpecialistID, Year: req.Year, Month: req.Month}
	result, err := h.workflow.Decrement(ctx, period, clientMetadata(c))
	if err != nil {
		if result != nil {
			status, code := businessErrorStatus(err)
			h.logger.Error("Referral decrement failed", zap.Uint("specialist_id", req.SpecialistID), zap.Error(err))
			return ErrorResponse(c, status, result.Acknowledgment.Message, code, toAcknowledgmentDTO(result.Acknowledgment))
		}
		return h.flowError(c, err, "Failed to decrement referral count")
	}

	return SuccessResponse(c, fiber.StatusOK, result.Acknowledgment.Message, dto.DecrementReferralResponse{
		SpecialistID:   period.SpecialistID,
		Year:           period.Year,
		Month:          period.Month,
		PreviousTotal:  result.PreviousTotal,
		NewTotal:       result.NewTotal,
		Acknowledgment: toAcknowledgmentDTO(result.Acknowledgment),
	})
}

// SetNotes replaces the notes of a specialist month
// @Summary Set referral notes
// @Tags Admin Referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.SetNotesRequest true "Notes"
// @Success 200 {object} dto.APIResponse{data=dto.NotesWriteResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/notes [put]
func (h *ReferralAdminHandler) SetNotes(c fiber.Ctx) error {
	var req dto.SetNotesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/notes", h.requestTimeout)
	defer cancel()

	period := repository.Period{SpecialistID: req.SpecialistID, Year: req.Year, Month: req.Month}
	report, err := h.workflow.SetNotes(ctx, period, req.Notes, clientMetadata(c))
	if err != nil {
		if businessflow.IsPartialWrite(err) && report != nil {
			h.logger.Error("Notes partially written", zap.Uint("specialist_id", req.SpecialistID), zap.Error(err))
			return ErrorResponse(c, fiber.StatusInternalServerError, "Notes were saved on some rows only", "NOTES_PARTIALLY_WRITTEN", toNotesWriteResponse(report))
		}
		return h.flowError(c, err, "Failed to save notes")
	}

	return SuccessResponse(c, fiber.StatusOK, "Notes saved", toNotesWriteResponse(report))
}

// Report returns monthly totals per specialist for a year
// @Summary Referral year report
// @Tags Admin Referrals
// @Produce json
// @Security BearerAuth
// @Param year query int true "Year"
// @Param specialist_id query int false "Specialist ID"
// @Success 200 {object} dto.APIResponse{data=businessflow.YearReport}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/report [get]
func (h *ReferralAdminHandler) Report(c fiber.Ctx) error {
	var q dto.ReportQuery
	if err := c.Bind().Query(&q); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&q); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/report", h.requestTimeout)
	defer cancel()

	var specialistID *uint
	if q.SpecialistID != 0 {
		specialistID = utils.ToPtr(q.SpecialistID)
	}
	report, err := h.report.MonthlyTotals(ctx, specialistID, q.Year)
	if err != nil {
		return h.flowError(c, err, "Failed to build referral report")
	}
	return SuccessResponse(c, fiber.StatusOK, "Referral report generated", report)
}

// ExportReport downloads the year report as an Excel workbook
// @Summary Export referral year report (Excel)
// @Tags Admin Referrals
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param year query int true "Year"
// @Success 200 {string} string "Excel file"
// @Failure 400 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/report/export [get]
func (h *ReferralAdminHandler) ExportReport(c fiber.Ctx) error {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "year must be a number", "VALIDATION_ERROR", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/report/export", h.requestTimeout)
	defer cancel()

	filename, data, err := h.report.ExportYear(ctx, year, clientMetadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to generate Excel")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// ListNotifications pages through the notification audit log
// @Summary List notification log
// @Tags Admin Referrals
// @Produce json
// @Security BearerAuth
// @Param specialist_id query int false "Specialist ID"
// @Param status query string false "success or error"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} dto.APIResponse{data=dto.NotificationListResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/notifications [get]
func (h *ReferralAdminHandler) ListNotifications(c fiber.Ctx) error {
	var q dto.NotificationListQuery
	if err := c.Bind().Query(&q); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&q); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/notifications", h.requestTimeout)
	defer cancel()

	query := businessflow.NotificationQuery{Status: q.Status, Page: q.Page, PageSize: q.PageSize}
	if q.SpecialistID != 0 {
		query.SpecialistID = utils.ToPtr(q.SpecialistID)
	}
	page, err := h.report.ListNotifications(ctx, query)
	if err != nil {
		return h.flowError(c, err, "Failed to list notifications")
	}

	resp := dto.NotificationListResponse{
		Items:      make([]dto.NotificationLogDTO, 0, len(page.Items)),
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	}
	for _, item := range page.Items {
		resp.Items = append(resp.Items, toNotificationLogDTO(item))
	}
	return SuccessResponse(c, fiber.StatusOK, "Notification log retrieved", resp)
}

// ListAudit pages through operator audit entries of one specialist, or the
// failed entries of all specialists
// @Summary List audit entries
// @Tags Admin Referrals
// @Produce json
// @Security BearerAuth
// @Param specialist_id query int false "Specialist ID"
// @Param failed_only query bool false "Only failed actions"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} dto.APIResponse{data=businessflow.AuditPage}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/audit [get]
func (h *ReferralAdminHandler) ListAudit(c fiber.Ctx) error {
	var q dto.AuditListQuery
	if err := c.Bind().Query(&q); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&q); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/audit", h.requestTimeout)
	defer cancel()

	query := businessflow.AuditQuery{FailedOnly: q.FailedOnly, Page: q.Page, PageSize: q.PageSize}
	if q.SpecialistID != 0 {
		query.SpecialistID = utils.ToPtr(q.SpecialistID)
	}
	page, err := h.report.ListAudit(ctx, query)
	if err != nil {
		return h.flowError(c, err, "Failed to list audit entries")
	}
	return SuccessResponse(c, fiber.StatusOK, "Audit entries retrieved", page)
}

// ContactPreview shows which phone a notification would be sent to
// @Summary Preview specialist contact
// @Tags Admin Referrals
// @Produce json
// @Security BearerAuth
// @Param id path int true "Specialist ID"
// @Success 200 {object} dto.APIResponse{data=businessflow.ContactPreview}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/admin/referrals/specialists/{id}/contact [get]
func (h *ReferralAdminHandler) ContactPreview(c fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "id must be a positive number", "INVALID_REQUEST", nil)
	}

	ctx, cancel := createRequestContext(c, "/api/v1/admin/referrals/specialists/:id/contact", h.requestTimeout)
	defer cancel()

	preview, err := h.report.ContactPreview(ctx, uint(id))
	if err != nil {
		return h.flowError(c, err, "Failed to resolve contact")
	}
	return SuccessResponse(c, fiber.StatusOK, "Contact resolved", preview)
}

func (h *ReferralAdminHandler) flowError(c fiber.Ctx, err error, fallback string) error {
	status, code := businessErrorStatus(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Error(fallback, zap.String("path", c.Path()), zap.Error(err))
		return ErrorResponse(c, status, fallback, code, nil)
	}
	return ErrorResponse(c, status, errorMessage(err, fallback), code, nil)
}

func periodFromParams(c fiber.Ctx) (repository.Period, bool) {
	specialistID, err1 := strconv.ParseUint(c.Params("specialist_id"), 10, 64)
	year, err2 := strconv.Atoi(c.Params("year"))
	month, err3 := strconv.Atoi(c.Params("month"))
	if err1 != nil || err2 != nil || err3 != nil {
		return repository.Period{}, false
	}
	return repository.Period{SpecialistID: uint(specialistID), Year: year, Month: month}, true
}

func toAcknowledgmentDTO(ack businessflow.Acknowledgment) dto.AcknowledgmentDTO {
	out := dto.AcknowledgmentDTO{Outcome: string(ack.Outcome), Message: ack.Message}
	if ack.Notice != nil {
		out.Notice = &dto.NoticeDTO{Level: ack.Notice.Level, Message: ack.Notice.Message}
	}
	return out
}

func toNotesWriteResponse(r *businessflow.NotesWriteReport) dto.NotesWriteResponse {
	return dto.NotesWriteResponse{
		Total:              r.Total,
		Updated:            r.Updated,
		Failed:             r.Failed,
		PlaceholderCreated: r.PlaceholderCreated,
	}
}

func toReferralRowDTO(e *models.ReferralEvent) dto.ReferralRowDTO {
	row := dto.ReferralRowDTO{
		ID:            e.ID,
		UUID:          e.UUID.String(),
		ClientName:    e.ClientName,
		ClientSurname: e.ClientSurname,
		ClientContact: e.ClientContact,
		ReferralCount: e.ReferralCount,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.ReferredAt != nil {
		row.ReferredAt = utils.ToPtr(e.ReferredAt.UTC().Format(time.RFC3339))
	}
	return row
}

func toNotificationLogDTO(l *models.NotificationLog) dto.NotificationLogDTO {
	return dto.NotificationLogDTO{
		ID:             l.ID,
		Phone:          l.Phone,
		Message:        l.Message,
		Status:         string(l.Status),
		UsedChannel:    l.UsedChannel,
		Error:          utils.DerefString(l.Error),
		ContactSource:  l.ContactSource,
		SpecialistID:   l.SpecialistID,
		SpecialistName: l.SpecialistName,
		ClientName:     l.ClientName,
		TriggeredBy:    l.TriggeredBy,
		CreatedAt:      l.CreatedAt.UTC().Format(time.RFC3339),
	}
}
