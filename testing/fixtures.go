package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *gorm.DB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *gorm.DB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestSpecialist inserts a directory entry; empty email/phone are stored as NULL
func (tf *TestFixtures) CreateTestSpecialist(name, email, phone string) (*models.Specialist, error) {
	specialist := &models.Specialist{
		Name:     name,
		Email:    utils.NonEmptyPtr(email),
		Phone:    utils.NonEmptyPtr(phone),
		IsActive: true,
	}
	if err := tf.DB.Create(specialist).Error; err != nil {
		return nil, fmt.Errorf("failed to create specialist %s: %w", name, err)
	}
	return specialist, nil
}

// CreateTestOrder inserts a historical order created at the given time
func (tf *TestFixtures) CreateTestOrder(name, email, phone string, status models.OrderStatus, createdAt time.Time) (*models.OrderRecord, error) {
	order := &models.OrderRecord{
		CustomerName:  name,
		CustomerEmail: utils.NonEmptyPtr(email),
		CustomerPhone: utils.NonEmptyPtr(phone),
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	if err := tf.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order for %s: %w", name, err)
	}
	return order, nil
}

// CreateTestReferralEvent inserts a referral row directly, bypassing the store
func (tf *TestFixtures) CreateTestReferralEvent(specialistID uint, year, month int, name, surname string, count int, notes string) (*models.ReferralEvent, error) {
	now := utils.UTCNow()
	event := &models.ReferralEvent{
		UUID:          uuid.New(),
		SpecialistID:  specialistID,
		Year:          year,
		Month:         month,
		ClientName:    name,
		ClientSurname: surname,
		ReferralCount: count,
		IsReferred:    count > 0,
		Notes:         notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if count > 0 {
		event.ReferredAt = &now
	}
	if name != "" || surname != "" {
		event.ClientKey = models.ClientKeyFor(name, surname)
	}
	if err := tf.DB.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create referral event: %w", err)
	}
	return event, nil
}
