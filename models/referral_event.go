package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// ReferralEvent attributes one client to one specialist within one calendar month.
// Several rows may exist per (specialist, year, month); the period total is always
// the sum of ReferralCount over those rows.
type ReferralEvent struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uk_referral_events_uuid" json:"uuid"`
	SpecialistID  uint       `gorm:"not null;index:idx_referral_events_period,priority:1" json:"specialist_id"`
	Year          int        `gorm:"not null;index:idx_referral_events_period,priority:2" json:"year"`
	Month         int        `gorm:"not null;index:idx_referral_events_period,priority:3" json:"month"`
	ClientName    string     `gorm:"size:255;not null;default:''" json:"client_name"`
	ClientSurname string     `gorm:"size:255;not null;default:''" json:"client_surname"`
	ClientContact string     `gorm:"size:255;not null;default:''" json:"client_contact"`
	ClientKey     string     `gorm:"size:511;not null;default:'';index:idx_referral_events_client_key" json:"-"`
	ReferralCount int        `gorm:"not null;default:0" json:"referral_count"`
	IsReferred    bool       `gorm:"not null;default:false" json:"is_referred"`
	ReferredAt    *time.Time `json:"referred_at,omitempty"`
	Notes         string     `gorm:"type:text;not null;default:''" json:"notes"`
	CreatedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP;index:idx_referral_events_created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ReferralEvent) TableName() string { return "referral_events" }

// ClientKeyFor folds a client's name and surname into the value rows of the same
// client share. Folding happens here rather than in SQL, since LOWER differs
// between databases for non-ASCII letters.
func ClientKeyFor(name, surname string) string {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(name)) + "\x1f" + fold.String(strings.TrimSpace(surname))
}

// IsPlaceholder reports whether the row only exists to carry notes
func (e *ReferralEvent) IsPlaceholder() bool {
	return e.ReferralCount == 0 && e.ClientName == "" && e.ClientSurname == ""
}

// ReferralEventFilter provides filter fields for repository queries
type ReferralEventFilter struct {
	ID            *uint
	SpecialistID  *uint
	Year          *int
	Month         *int
	ClientName    *string
	ClientSurname *string
	IsReferred    *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
