package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amirphl/specialist-referral/models"
	"gorm.io/gorm"
)

// OrderRecordRepositoryImpl implements OrderRecordRepository interface
type OrderRecordRepositoryImpl struct {
	*BaseRepository[models.OrderRecord, models.OrderRecordFilter]
}

// NewOrderRecordRepository creates a new order record repository
func NewOrderRecordRepository(db *gorm.DB) OrderRecordRepository {
	return &OrderRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OrderRecord, models.OrderRecordFilter](db),
	}
}

func (r *OrderRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.OrderRecordFilter, orderBy string, limit, offset int) ([]*models.OrderRecord, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.OrderRecord{}), filter), orderBy, limit, offset)

	var orders []*models.OrderRecord
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to find orders by filter: %w", err)
	}
	return orders, nil
}

func (r *OrderRecordRepositoryImpl) Count(ctx context.Context, filter models.OrderRecordFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.OrderRecord{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return count, nil
}

func (r *OrderRecordRepositoryImpl) Exists(ctx context.Context, filter models.OrderRecordFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LatestSettledByEmail returns the newest approved/completed order for the email
// (case-insensitive exact match)
func (r *OrderRecordRepositoryImpl) LatestSettledByEmail(ctx context.Context, email string) (*models.OrderRecord, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return r.latestSettled(ctx, models.OrderRecordFilter{CustomerEmail: &email})
}

// LatestSettledByName returns the newest approved/completed order whose customer
// name contains the given normalized name
func (r *OrderRecordRepositoryImpl) LatestSettledByName(ctx context.Context, name string) (*models.OrderRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	return r.latestSettled(ctx, models.OrderRecordFilter{NameContains: &name})
}

func (r *OrderRecordRepositoryImpl) latestSettled(ctx context.Context, filter models.OrderRecordFilter) (*models.OrderRecord, error) {
	db := r.getDB(ctx)
	filter.Statuses = models.SettledOrderStatuses

	var order models.OrderRecord
	err := r.applyFilter(db.Model(&models.OrderRecord{}), filter).
		Order("created_at DESC, id DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest settled order: %w", err)
	}
	return &order, nil
}

func (r *OrderRecordRepositoryImpl) applyFilter(db *gorm.DB, filter models.OrderRecordFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CustomerEmail != nil {
		db = db.Where("LOWER(customer_email) = ?", strings.ToLower(*filter.CustomerEmail))
	}
	if filter.NameContains != nil {
		db = db.Where("LOWER(customer_name) LIKE ?", "%"+strings.ToLower(*filter.NameContains)+"%")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		db = db.Where("status IN ?", statuses)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return db
}
