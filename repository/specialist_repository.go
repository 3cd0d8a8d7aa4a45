package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/specialist-referral/models"
	"gorm.io/gorm"
)

// SpecialistRepositoryImpl implements SpecialistRepository interface
type SpecialistRepositoryImpl struct {
	*BaseRepository[models.Specialist, models.SpecialistFilter]
}

// NewSpecialistRepository creates a new specialist repository
func NewSpecialistRepository(db *gorm.DB) SpecialistRepository {
	return &SpecialistRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Specialist, models.SpecialistFilter](db),
	}
}

func (r *SpecialistRepositoryImpl) ByFilter(ctx context.Context, filter models.SpecialistFilter, orderBy string, limit, offset int) ([]*models.Specialist, error) {
	db := r.getDB(ctx)
	if orderBy == "" {
		orderBy = "id ASC"
	}
	query := paginate(r.applyFilter(db.Model(&models.Specialist{}), filter), orderBy, limit, offset)

	var specialists []*models.Specialist
	if err := query.Find(&specialists).Error; err != nil {
		return nil, fmt.Errorf("failed to find specialists by filter: %w", err)
	}
	return specialists, nil
}

func (r *SpecialistRepositoryImpl) Count(ctx context.Context, filter models.SpecialistFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	if err := r.applyFilter(db.Model(&models.Specialist{}), filter).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count specialists: %w", err)
	}
	return count, nil
}

func (r *SpecialistRepositoryImpl) Exists(ctx context.Context, filter models.SpecialistFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SpecialistRepositoryImpl) applyFilter(db *gorm.DB, filter models.SpecialistFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if len(filter.IDs) > 0 {
		db = db.Where("id IN ?", filter.IDs)
	}
	if filter.Email != nil {
		db = db.Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(*filter.Email)))
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	return db
}
