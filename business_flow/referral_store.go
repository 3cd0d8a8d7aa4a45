package businessflow

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/amirphl/specialist-referral/app/services"
	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotesWriteReport describes a notes update over every row of a period
type NotesWriteReport struct {
	Total              int  `json:"total"`
	Updated            int  `json:"updated"`
	Failed             int  `json:"failed"`
	PlaceholderCreated bool `json:"placeholder_created"`
}

// PeriodSnapshot is the current state of one specialist month
type PeriodSnapshot struct {
	Period repository.Period
	Total  int64
	Notes  string
	Rows   []*models.ReferralEvent
}

// ReferralStore is the only writer of referral events. Every total it returns is
// a fresh SUM over the period, never a cached value.
type ReferralStore interface {
	Increment(ctx context.Context, period repository.Period, client ClientIdentity) (int64, error)
	Decrement(ctx context.Context, period repository.Period) (int64, error)
	Aggregate(ctx context.Context, period repository.Period) (int64, error)
	SetNotes(ctx context.Context, period repository.Period, text string) (*NotesWriteReport, error)
	Snapshot(ctx context.Context, period repository.Period) (*PeriodSnapshot, error)
}

// ReferralStoreImpl implements ReferralStore over the referral event repository
type ReferralStoreImpl struct {
	repo   repository.ReferralEventRepository
	db     *gorm.DB
	logger *zap.Logger
}

// NewReferralStore creates a new referral store
func NewReferralStore(repo repository.ReferralEventRepository, db *gorm.DB, logger *zap.Logger) ReferralStore {
	return &ReferralStoreImpl{repo: repo, db: db, logger: logger}
}

// Aggregate returns Σ referral_count for the period
func (s *ReferralStoreImpl) Aggregate(ctx context.Context, period repository.Period) (int64, error) {
	if err := validatePeriod(period); err != nil {
		return 0, err
	}
	total, err := s.repo.SumReferralCount(ctx, period)
	if err != nil {
		return 0, NewBusinessError("AGGREGATE_FAILED", "Failed to aggregate referral count", err)
	}
	return total, nil
}

// Increment merges into the client's existing row, claims a notes placeholder, or
// inserts a new row carrying the period notes
func (s *ReferralStoreImpl) Increment(ctx context.Context, period repository.Period, client ClientIdentity) (int64, error) {
	if err := validatePeriod(period); err != nil {
		return 0, err
	}
	client = client.Trimmed()
	if client.Name == "" || client.Surname == "" {
		return 0, ErrClientFieldsRequired
	}

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		now := utils.UTCNow()

		existing, err := s.repo.ByClient(txCtx, period, client.Name, client.Surname)
		if err != nil {
			return err
		}
		if existing != nil {
			return s.repo.IncrementCount(txCtx, existing.ID, now)
		}

		placeholder, err := s.repo.LatestPlaceholder(txCtx, period)
		if err != nil {
			return err
		}
		if placeholder != nil {
			return s.repo.ClaimPlaceholder(txCtx, placeholder.ID, client.Name, client.Surname, client.Contact, now)
		}

		notes, err := s.repo.LatestNotes(txCtx, period)
		if err != nil {
			return err
		}
		return s.repo.Save(txCtx, &models.ReferralEvent{
			UUID:          uuid.New(),
			SpecialistID:  period.SpecialistID,
			Year:          period.Year,
			Month:         period.Month,
			ClientName:    client.Name,
			ClientSurname: client.Surname,
			ClientContact: client.Contact,
			ClientKey:     models.ClientKeyFor(client.Name, client.Surname),
			ReferralCount: 1,
			IsReferred:    true,
			ReferredAt:    &now,
			Notes:         notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	})
	if err != nil {
		services.ReferralMutationsTotal.WithLabelValues("increment", "error").Inc()
		return 0, NewBusinessError("INCREMENT_FAILED", "Failed to record referral", err)
	}
	services.ReferralMutationsTotal.WithLabelValues("increment", "success").Inc()

	return s.Aggregate(ctx, period)
}

// Decrement deletes the most recently created counted row and keeps its notes in the period
func (s *ReferralStoreImpl) Decrement(ctx context.Context, period repository.Period) (int64, error) {
	if err := validatePeriod(period); err != nil {
		return 0, err
	}

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		target, err := s.repo.LatestCounted(txCtx, period)
		if err != nil {
			return err
		}
		if target == nil {
			return nil
		}

		if err := s.repo.DeleteByID(txCtx, target.ID); err != nil {
			return err
		}
		if target.Notes == "" {
			return nil
		}

		remaining, err := s.repo.ListByPeriod(txCtx, period)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			if remaining[0].Notes == target.Notes {
				return nil
			}
			return s.repo.UpdateNotes(txCtx, remaining[0].ID, target.Notes)
		}

		now := utils.UTCNow()
		return s.repo.Save(txCtx, newPlaceholder(period, target.Notes, now))
	})
	if err != nil {
		services.ReferralMutationsTotal.WithLabelValues("decrement", "error").Inc()
		return 0, NewBusinessError("DECREMENT_FAILED", "Failed to remove referral", err)
	}
	services.ReferralMutationsTotal.WithLabelValues("decrement", "success").Inc()

	return s.Aggregate(ctx, period)
}

// SetNotes writes text on every row of the period independently. Rows written
// before a failure stay written; the report says how many.
func (s *ReferralStoreImpl) SetNotes(ctx context.Context, period repository.Period, text string) (*NotesWriteReport, error) {
	if err := validatePeriod(period); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(text) > utils.MaxNotesLength {
		return nil, ErrNotesTooLong
	}

	rows, err := s.repo.ListByPeriod(ctx, period)
	if err != nil {
		return nil, NewBusinessError("NOTES_READ_FAILED", "Failed to read referral rows", err)
	}

	if len(rows) == 0 {
		if err := s.repo.Save(ctx, newPlaceholder(period, text, utils.UTCNow())); err != nil {
			services.ReferralMutationsTotal.WithLabelValues("set_notes", "error").Inc()
			return nil, NewBusinessError("NOTES_WRITE_FAILED", "Failed to store notes", err)
		}
		services.ReferralMutationsTotal.WithLabelValues("set_notes", "success").Inc()
		return &NotesWriteReport{Total: 1, Updated: 1, PlaceholderCreated: true}, nil
	}

	report := &NotesWriteReport{Total: len(rows)}
	var (
		firstErr error
		allErrs  error
	)
	for _, row := range rows {
		if err := s.repo.UpdateNotes(ctx, row.ID, text); err != nil {
			report.Failed++
			if firstErr == nil {
				firstErr = err
			}
			allErrs = multierr.Append(allErrs, fmt.Errorf("row %d: %w", row.ID, err))
			continue
		}
		report.Updated++
	}

	if firstErr != nil {
		services.ReferralMutationsTotal.WithLabelValues("set_notes", "partial").Inc()
		s.logger.Warn("Notes update partially failed",
			zap.Uint("specialist_id", period.SpecialistID),
			zap.Int("year", period.Year),
			zap.Int("month", period.Month),
			zap.Int("updated", report.Updated),
			zap.Int("failed", report.Failed),
			zap.Errors("errors", multierr.Errors(allErrs)),
		)
		return report, &PartialWriteError{Total: report.Total, Failed: report.Failed, Err: firstErr}
	}

	services.ReferralMutationsTotal.WithLabelValues("set_notes", "success").Inc()
	return report, nil
}

// Snapshot returns total, rows and notes of the period
func (s *ReferralStoreImpl) Snapshot(ctx context.Context, period repository.Period) (*PeriodSnapshot, error) {
	total, err := s.Aggregate(ctx, period)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByPeriod(ctx, period)
	if err != nil {
		return nil, NewBusinessError("PERIOD_READ_FAILED", "Failed to read referral rows", err)
	}
	notes, err := s.repo.LatestNotes(ctx, period)
	if err != nil {
		return nil, NewBusinessError("PERIOD_READ_FAILED", "Failed to read referral notes", err)
	}
	return &PeriodSnapshot{Period: period, Total: total, Notes: notes, Rows: rows}, nil
}

func newPlaceholder(period repository.Period, notes string, now time.Time) *models.ReferralEvent {
	return &models.ReferralEvent{
		UUID:         uuid.New(),
		SpecialistID: period.SpecialistID,
		Year:         period.Year,
		Month:        period.Month,
		Notes:        notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
