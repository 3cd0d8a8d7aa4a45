package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/specialist-referral/models"
	"gorm.io/gorm"
)

// NotificationLogRepositoryImpl implements NotificationLogRepository interface
type NotificationLogRepositoryImpl struct {
	*BaseRepository[models.NotificationLog, models.NotificationLogFilter]
}

// NewNotificationLogRepository creates a new notification log repository
func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &NotificationLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.NotificationLog, models.NotificationLogFilter](db),
	}
}

func (r *NotificationLogRepositoryImpl) ByFilter(ctx context.Context, filter models.NotificationLogFilter, orderBy string, limit, offset int) ([]*models.NotificationLog, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.NotificationLog{}), filter), orderBy, limit, offset)

	var logs []*models.NotificationLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to find notification logs by filter: %w", err)
	}
	return logs, nil
}

func (r *NotificationLogRepositoryImpl) Count(ctx context.Context, filter models.NotificationLogFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.NotificationLog{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count notification logs: %w", err)
	}
	return count, nil
}

func (r *NotificationLogRepositoryImpl) Exists(ctx context.Context, filter models.NotificationLogFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *NotificationLogRepositoryImpl) applyFilter(db *gorm.DB, filter models.NotificationLogFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.SpecialistID != nil {
		db = db.Where("specialist_id = ?", *filter.SpecialistID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.UsedChannel != nil {
		db = db.Where("used_channel = ?", *filter.UsedChannel)
	}
	if filter.Phone != nil {
		db = db.Where("phone = ?", *filter.Phone)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
