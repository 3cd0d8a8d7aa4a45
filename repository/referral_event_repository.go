package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/utils"
	"gorm.io/gorm"
)

// ReferralEventRepositoryImpl implements ReferralEventRepository interface
type ReferralEventRepositoryImpl struct {
	*BaseRepository[models.ReferralEvent, models.ReferralEventFilter]
}

// NewReferralEventRepository creates a new referral event repository
func NewReferralEventRepository(db *gorm.DB) ReferralEventRepository {
	return &ReferralEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ReferralEvent, models.ReferralEventFilter](db),
	}
}

// ByFilter retrieves referral events matching the filter
func (r *ReferralEventRepositoryImpl) ByFilter(ctx context.Context, filter models.ReferralEventFilter, orderBy string, limit, offset int) ([]*models.ReferralEvent, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.ReferralEvent{}), filter), orderBy, limit, offset)

	var events []*models.ReferralEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to find referral events by filter: %w", err)
	}
	return events, nil
}

// Count returns the number of rows matching the filter
func (r *ReferralEventRepositoryImpl) Count(ctx context.Context, filter models.ReferralEventFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.ReferralEvent{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count referral events: %w", err)
	}
	return count, nil
}

// Exists checks if any row matches the filter
func (r *ReferralEventRepositoryImpl) Exists(ctx context.Context, filter models.ReferralEventFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumReferralCount returns Σ referral_count for the period; this is the only trusted total
func (r *ReferralEventRepositoryImpl) SumReferralCount(ctx context.Context, period Period) (int64, error) {
	db := r.getDB(ctx)

	var total int64
	err := r.periodScope(db.Model(&models.ReferralEvent{}), period).
		Select("COALESCE(SUM(referral_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate referral count: %w", err)
	}
	return total, nil
}

// ListByPeriod returns every row of the period, newest first
func (r *ReferralEventRepositoryImpl) ListByPeriod(ctx context.Context, period Period) ([]*models.ReferralEvent, error) {
	db := r.getDB(ctx)

	var events []*models.ReferralEvent
	err := r.periodScope(db, period).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list referral events: %w", err)
	}
	return events, nil
}

// ByClient finds the row of the given client in the period, matched on the
// case-folded name and surname
func (r *ReferralEventRepositoryImpl) ByClient(ctx context.Context, period Period, name, surname string) (*models.ReferralEvent, error) {
	db := r.getDB(ctx)

	var event models.ReferralEvent
	err := r.periodScope(db, period).
		Where("client_key = ?", models.ClientKeyFor(name, surname)).
		Order("created_at DESC, id DESC").
		First(&event).Error
	return r.firstOrNil(&event, err, "failed to find referral event by client")
}

// LatestCounted returns the most recently created row with a positive count
func (r *ReferralEventRepositoryImpl) LatestCounted(ctx context.Context, period Period) (*models.ReferralEvent, error) {
	db := r.getDB(ctx)

	var event models.ReferralEvent
	err := r.periodScope(db, period).
		Where("referral_count > 0").
		Order("created_at DESC, id DESC").
		First(&event).Error
	return r.firstOrNil(&event, err, "failed to find latest referral event")
}

// LatestPlaceholder returns the most recent zero-count, client-less row
func (r *ReferralEventRepositoryImpl) LatestPlaceholder(ctx context.Context, period Period) (*models.ReferralEvent, error) {
	db := r.getDB(ctx)

	var event models.ReferralEvent
	err := r.periodScope(db, period).
		Where("referral_count = 0 AND client_name = '' AND client_surname = ''").
		Order("created_at DESC, id DESC").
		First(&event).Error
	return r.firstOrNil(&event, err, "failed to find placeholder referral event")
}

// LatestNotes returns the newest non-empty notes of the period, or ""
func (r *ReferralEventRepositoryImpl) LatestNotes(ctx context.Context, period Period) (string, error) {
	db := r.getDB(ctx)

	var event models.ReferralEvent
	err := r.periodScope(db, period).
		Where("notes <> ''").
		Order("created_at DESC, id DESC").
		First(&event).Error
	found, err := r.firstOrNil(&event, err, "failed to read period notes")
	if err != nil || found == nil {
		return "", err
	}
	return found.Notes, nil
}

// IncrementCount adds one to referral_count in place and refreshes referred_at
func (r *ReferralEventRepositoryImpl) IncrementCount(ctx context.Context, id uint, referredAt time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{
		"referral_count": gorm.Expr("referral_count + ?", 1),
		"is_referred":    true,
		"referred_at":    referredAt,
		"updated_at":     utils.UTCNow(),
	}, "failed to increment referral count")
}

// ClaimPlaceholder turns a notes-only row into a counted client row
func (r *ReferralEventRepositoryImpl) ClaimPlaceholder(ctx context.Context, id uint, name, surname, contact string, referredAt time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{
		"client_name":    name,
		"client_surname": surname,
		"client_contact": contact,
		"client_key":     models.ClientKeyFor(name, surname),
		"referral_count": 1,
		"is_referred":    true,
		"referred_at":    referredAt,
		"updated_at":     utils.UTCNow(),
	}, "failed to claim placeholder referral event")
}

// UpdateNotes replaces the notes of a single row
func (r *ReferralEventRepositoryImpl) UpdateNotes(ctx context.Context, id uint, notes string) error {
	return r.updateColumns(ctx, id, map[string]any{
		"notes":      notes,
		"updated_at": utils.UTCNow(),
	}, "failed to update referral notes")
}

// DeleteByID removes a single row
func (r *ReferralEventRepositoryImpl) DeleteByID(ctx context.Context, id uint) error {
	db := r.getDB(ctx)

	result := db.Delete(&models.ReferralEvent{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete referral event %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete referral event %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// MonthlyTotals returns per specialist, per month sums for a year. A nil
// specialistID covers every specialist.
func (r *ReferralEventRepositoryImpl) MonthlyTotals(ctx context.Context, specialistID *uint, year int) ([]*MonthlyTotal, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.ReferralEvent{}).
		Select("specialist_id, year, month, COALESCE(SUM(referral_count), 0) AS total").
		Where("year = ?", year)
	if specialistID != nil {
		query = query.Where("specialist_id = ?", *specialistID)
	}

	var totals []*MonthlyTotal
	err := query.
		Group("specialist_id, year, month").
		Order("specialist_id ASC, month ASC").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly referral totals: %w", err)
	}
	return totals, nil
}

func (r *ReferralEventRepositoryImpl) updateColumns(ctx context.Context, id uint, columns map[string]any, msg string) error {
	db := r.getDB(ctx)

	result := db.Model(&models.ReferralEvent{}).Where("id = ?", id).UpdateColumns(columns)
	if result.Error != nil {
		return fmt.Errorf("%s: %w", msg, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", msg, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *ReferralEventRepositoryImpl) firstOrNil(event *models.ReferralEvent, err error, msg string) (*models.ReferralEvent, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	return event, nil
}

func (r *ReferralEventRepositoryImpl) periodScope(db *gorm.DB, period Period) *gorm.DB {
	return db.Where("specialist_id = ? AND year = ? AND month = ?", period.SpecialistID, period.Year, period.Month)
}

// applyFilter applies filter conditions to the query
func (r *ReferralEventRepositoryImpl) applyFilter(db *gorm.DB, filter models.ReferralEventFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.SpecialistID != nil {
		db = db.Where("specialist_id = ?", *filter.SpecialistID)
	}
	if filter.Year != nil {
		db = db.Where("year = ?", *filter.Year)
	}
	if filter.Month != nil {
		db = db.Where("month = ?", *filter.Month)
	}
	if filter.ClientName != nil {
		db = db.Where("client_name = ?", *filter.ClientName)
	}
	if filter.ClientSurname != nil {
		db = db.Where("client_surname = ?", *filter.ClientSurname)
	}
	if filter.IsReferred != nil {
		db = db.Where("is_referred = ?", *filter.IsReferred)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
