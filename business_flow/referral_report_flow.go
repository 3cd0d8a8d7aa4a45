package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

// SpecialistYearRow is one specialist's monthly totals for a year
type SpecialistYearRow struct {
	SpecialistID   uint      `json:"specialist_id"`
	SpecialistName string    `json:"specialist_name"`
	Months         [12]int64 `json:"months"`
	Total          int64     `json:"total"`
}

// YearReport aggregates referrals by specialist and month
type YearReport struct {
	Year int                  `json:"year"`
	Rows []*SpecialistYearRow `json:"rows"`
}

// NotificationQuery filters the notification log listing
type NotificationQuery struct {
	SpecialistID *uint
	Status       string
	Page         int
	PageSize     int
}

// NotificationPage is one page of the notification log, newest first
type NotificationPage struct {
	Items      []*models.NotificationLog `json:"items"`
	Page       int                       `json:"page"`
	PageSize   int                       `json:"page_size"`
	TotalItems int64                     `json:"total_items"`
	TotalPages int                       `json:"total_pages"`
}

// AuditQuery selects audit entries of one specialist, or failed entries of all
type AuditQuery struct {
	SpecialistID *uint
	FailedOnly   bool
	Page         int
	PageSize     int
}

// AuditPage is one page of audit entries, newest first
type AuditPage struct {
	Items    []*models.AuditLog `json:"items"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// ContactPreview shows which phone a notification for the specialist would go to
type ContactPreview struct {
	SpecialistID   uint            `json:"specialist_id"`
	SpecialistName string          `json:"specialist_name"`
	Contact        ResolvedContact `json:"contact"`
}

// ReferralReportFlow serves read-only reporting over referrals and notifications
type ReferralReportFlow interface {
	MonthlyTotals(ctx context.Context, specialistID *uint, year int) (*YearReport, error)
	ExportYear(ctx context.Context, year int, meta *ClientMetadata) (string, []byte, error)
	ListNotifications(ctx context.Context, query NotificationQuery) (*NotificationPage, error)
	ListAudit(ctx context.Context, query AuditQuery) (*AuditPage, error)
	ContactPreview(ctx context.Context, specialistID uint) (*ContactPreview, error)
}

// ReferralReportFlowImpl implements ReferralReportFlow
type ReferralReportFlowImpl struct {
	referralRepo   repository.ReferralEventRepository
	specialistRepo repository.SpecialistRepository
	logRepo        repository.NotificationLogRepository
	auditRepo      repository.AuditLogRepository
	resolver       ContactResolver
	logger         *zap.Logger
}

// NewReferralReportFlow creates a new report flow
func NewReferralReportFlow(
	referralRepo repository.ReferralEventRepository,
	specialistRepo repository.SpecialistRepository,
	logRepo repository.NotificationLogRepository,
	auditRepo repository.AuditLogRepository,
	resolver ContactResolver,
	logger *zap.Logger,
) ReferralReportFlow {
	return &ReferralReportFlowImpl{
		referralRepo:   referralRepo,
		specialistRepo: specialistRepo,
		logRepo:        logRepo,
		auditRepo:      auditRepo,
		resolver:       resolver,
		logger:         logger,
	}
}

// MonthlyTotals returns one row per specialist with referrals in the year
func (f *ReferralReportFlowImpl) MonthlyTotals(ctx context.Context, specialistID *uint, year int) (*YearReport, error) {
	if !utils.IsValidPeriod(year, 1) {
		return nil, NewBusinessError("INVALID_PERIOD", "Year is out of range", ErrInvalidPeriod)
	}

	totals, err := f.referralRepo.MonthlyTotals(ctx, specialistID, year)
	if err != nil {
		return nil, NewBusinessError("REPORT_FAILED", "Failed to aggregate monthly totals", err)
	}

	rows := make([]*SpecialistYearRow, 0)
	byID := make(map[uint]*SpecialistYearRow)
	for _, t := range totals {
		if t.Month < 1 || t.Month > 12 {
			continue
		}
		row, ok := byID[t.SpecialistID]
		if !ok {
			row = &SpecialistYearRow{SpecialistID: t.SpecialistID}
			byID[t.SpecialistID] = row
			rows = append(rows, row)
		}
		row.Months[t.Month-1] += t.Total
		row.Total += t.Total
	}

	if len(byID) > 0 {
		ids := make([]uint, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		specialists, err := f.specialistRepo.ByFilter(ctx, models.SpecialistFilter{IDs: ids}, "", 0, 0)
		if err != nil {
			return nil, NewBusinessError("REPORT_FAILED", "Failed to load specialists", err)
		}
		for _, s := range specialists {
			if row, ok := byID[s.ID]; ok {
				row.SpecialistName = s.Name
			}
		}
	}

	return &YearReport{Year: year, Rows: rows}, nil
}

// ExportYear renders the year report as an xlsx workbook with a totals row
func (f *ReferralReportFlowImpl) ExportYear(ctx context.Context, year int, meta *ClientMetadata) (string, []byte, error) {
	report, err := f.MonthlyTotals(ctx, nil, year)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := fmt.Sprintf("Referrals %d", year)
	if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}

	header := []any{"Specialist ID", "Specialist"}
	for m := 1; m <= 12; m++ {
		header = append(header, utils.MonthName(m))
	}
	header = append(header, "Total")
	_ = xl.SetSheetRow(sheet, "A1", &header)

	var (
		columnTotals [12]int64
		grandTotal   int64
	)
	for ri, row := range report.Rows {
		record := []any{row.SpecialistID, row.SpecialistName}
		for m, v := range row.Months {
			record = append(record, v)
			columnTotals[m] += v
		}
		record = append(record, row.Total)
		grandTotal += row.Total

		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	footer := []any{"", "Total"}
	for _, v := range columnTotals {
		footer = append(footer, v)
	}
	footer = append(footer, grandTotal)
	cellRef, _ := excelize.CoordinatesToCellName(1, len(report.Rows)+2)
	_ = xl.SetSheetRow(sheet, cellRef, &footer)

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	recordAudit(ctx, f.auditRepo, f.logger, meta, 0, models.AuditActionReferralReportExported,
		fmt.Sprintf("Exported referral report for %d", year), nil,
		map[string]any{"year": year, "specialists": len(report.Rows), "total": grandTotal})

	filename := fmt.Sprintf("referrals_%d.xlsx", year)
	return filename, buf.Bytes(), nil
}

// ListNotifications pages through the notification log, newest first
func (f *ReferralReportFlowImpl) ListNotifications(ctx context.Context, query NotificationQuery) (*NotificationPage, error) {
	var err error
	query.Page, query.PageSize, err = normalizePage(query.Page, query.PageSize)
	if err != nil {
		return nil, err
	}

	filter := models.NotificationLogFilter{SpecialistID: query.SpecialistID}
	if status := strings.ToLower(strings.TrimSpace(query.Status)); status != "" {
		s := models.NotificationStatus(status)
		if s != models.NotificationStatusSuccess && s != models.NotificationStatusError {
			return nil, NewBusinessError("INVALID_STATUS", ErrInvalidStatus.Error(), ErrInvalidStatus)
		}
		filter.Status = &s
	}

	total, err := f.logRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("NOTIFICATION_LIST_FAILED", "Failed to count notification logs", err)
	}
	items, err := f.logRepo.ByFilter(ctx, filter, "", query.PageSize, (query.Page-1)*query.PageSize)
	if err != nil {
		return nil, NewBusinessError("NOTIFICATION_LIST_FAILED", "Failed to list notification logs", err)
	}

	return &NotificationPage{
		Items:      items,
		Page:       query.Page,
		PageSize:   query.PageSize,
		TotalItems: total,
		TotalPages: int((total + int64(query.PageSize) - 1) / int64(query.PageSize)),
	}, nil
}

// ListAudit pages through operator audit entries
func (f *ReferralReportFlowImpl) ListAudit(ctx context.Context, query AuditQuery) (*AuditPage, error) {
	if (query.SpecialistID != nil) == query.FailedOnly {
		return nil, NewBusinessError("INVALID_AUDIT_SCOPE", ErrAuditScope.Error(), ErrAuditScope)
	}
	page, pageSize, err := normalizePage(query.Page, query.PageSize)
	if err != nil {
		return nil, err
	}

	var items []*models.AuditLog
	offset := (page - 1) * pageSize
	if query.FailedOnly {
		items, err = f.auditRepo.ListFailedActions(ctx, pageSize, offset)
	} else {
		items, err = f.auditRepo.ListBySpecialist(ctx, *query.SpecialistID, pageSize, offset)
	}
	if err != nil {
		return nil, NewBusinessError("AUDIT_LIST_FAILED", "Failed to list audit entries", err)
	}
	if items == nil {
		items = []*models.AuditLog{}
	}
	return &AuditPage{Items: items, Page: page, PageSize: pageSize}, nil
}

func normalizePage(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultNotificationPageSize
	}
	if page < 1 {
		return 0, 0, NewBusinessError("INVALID_PAGE", ErrInvalidPage.Error(), ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > maxNotificationPageSize {
		return 0, 0, NewBusinessError("INVALID_PAGE_SIZE", ErrInvalidPageSize.Error(), ErrInvalidPageSize)
	}
	return page, pageSize, nil
}

// ContactPreview runs the resolver without sending anything
func (f *ReferralReportFlowImpl) ContactPreview(ctx context.Context, specialistID uint) (*ContactPreview, error) {
	specialist, err := f.specialistRepo.ByID(ctx, specialistID)
	if err != nil {
		return nil, NewBusinessError("SPECIALIST_LOOKUP_FAILED", "Failed to load specialist", err)
	}
	if specialist == nil {
		return nil, NewBusinessError("SPECIALIST_NOT_FOUND", "Specialist not found", ErrSpecialistNotFound)
	}

	contact := f.resolver.Resolve(ctx, SpecialistIdentity{
		Name:           specialist.Name,
		Email:          utils.DerefString(specialist.Email),
		DirectoryPhone: utils.DerefString(specialist.Phone),
	})
	return &ContactPreview{
		SpecialistID:   specialist.ID,
		SpecialistName: specialist.Name,
		Contact:        contact,
	}, nil
}
