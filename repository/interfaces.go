// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/specialist-referral/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// Period identifies one specialist's calendar month
type Period struct {
	SpecialistID uint
	Year         int
	Month        int
}

// MonthlyTotal is one aggregated (specialist, month) bucket
type MonthlyTotal struct {
	SpecialistID uint  `json:"specialist_id"`
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	Total        int64 `json:"total"`
}

// ReferralEventRepository defines operations for referral events
type ReferralEventRepository interface {
	Repository[models.ReferralEvent, models.ReferralEventFilter]
	SumReferralCount(ctx context.Context, period Period) (int64, error)
	ListByPeriod(ctx context.Context, period Period) ([]*models.ReferralEvent, error)
	ByClient(ctx context.Context, period Period, name, surname string) (*models.ReferralEvent, error)
	LatestCounted(ctx context.Context, period Period) (*models.ReferralEvent, error)
	LatestPlaceholder(ctx context.Context, period Period) (*models.ReferralEvent, error)
	LatestNotes(ctx context.Context, period Period) (string, error)
	IncrementCount(ctx context.Context, id uint, referredAt time.Time) error
	ClaimPlaceholder(ctx context.Context, id uint, name, surname, contact string, referredAt time.Time) error
	UpdateNotes(ctx context.Context, id uint, notes string) error
	DeleteByID(ctx context.Context, id uint) error
	MonthlyTotals(ctx context.Context, specialistID *uint, year int) ([]*MonthlyTotal, error)
}

// NotificationLogRepository defines operations for the notification audit log
type NotificationLogRepository interface {
	Repository[models.NotificationLog, models.NotificationLogFilter]
}

// SpecialistRepository defines read operations over the specialist directory
type SpecialistRepository interface {
	Repository[models.Specialist, models.SpecialistFilter]
}

// OrderRecordRepository defines read operations over historical orders
type OrderRecordRepository interface {
	Repository[models.OrderRecord, models.OrderRecordFilter]
	LatestSettledByEmail(ctx context.Context, email string) (*models.OrderRecord, error)
	LatestSettledByName(ctx context.Context, name string) (*models.OrderRecord, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListBySpecialist(ctx context.Context, specialistID uint, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
