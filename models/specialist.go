package models

import "time"

// Specialist is the directory entry of a doctor or therapist. The directory
// phone may be stale or a shared switchboard line.
type Specialist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;index:idx_specialists_name" json:"name"`
	Email     *string   `gorm:"size:255;index:idx_specialists_email" json:"email,omitempty"`
	Phone     *string   `gorm:"size:32" json:"phone,omitempty"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Specialist) TableName() string { return "specialists" }

// SpecialistFilter provides filter fields for repository queries
type SpecialistFilter struct {
	ID       *uint
	IDs      []uint
	Email    *string
	IsActive *bool
}
