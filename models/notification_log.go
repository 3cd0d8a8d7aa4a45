package models

import (
	"encoding/json"
	"time"
)

// NotificationStatus is the final outcome of one dispatch sequence
type NotificationStatus string

const (
	NotificationStatusSuccess NotificationStatus = "success"
	NotificationStatusError   NotificationStatus = "error"
)

// NotificationLog is the append-only audit record of one dispatch sequence
// (not one per channel try).
type NotificationLog struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	Phone          string             `gorm:"size:32;not null;index:idx_notification_logs_phone" json:"phone"`
	Message        string             `gorm:"type:text;not null" json:"message"`
	Status         NotificationStatus `gorm:"size:20;not null;index:idx_notification_logs_status" json:"status"`
	UsedChannel    string             `gorm:"size:64;not null;default:''" json:"used_channel"`
	Error          *string            `gorm:"type:text" json:"error,omitempty"`
	Response       json.RawMessage    `gorm:"type:jsonb" json:"response,omitempty"`
	Attempts       json.RawMessage    `gorm:"type:jsonb" json:"attempts,omitempty"`
	TriggeredBy    string             `gorm:"size:255;not null;default:''" json:"triggered_by"`
	Source         string             `gorm:"size:64;not null;default:''" json:"source"`
	ContactSource  string             `gorm:"size:32;not null;default:''" json:"contact_source"`
	SpecialistID   *uint              `gorm:"index:idx_notification_logs_specialist_id" json:"specialist_id,omitempty"`
	SpecialistName string             `gorm:"size:255;not null;default:''" json:"specialist_name"`
	ClientName     string             `gorm:"size:255;not null;default:''" json:"client_name"`
	ClientContact  string             `gorm:"size:255;not null;default:''" json:"client_contact"`
	RequestID      *string            `gorm:"size:255" json:"request_id,omitempty"`
	CreatedAt      time.Time          `gorm:"default:CURRENT_TIMESTAMP;index:idx_notification_logs_created_at" json:"created_at"`
}

func (NotificationLog) TableName() string { return "notification_logs" }

// NotificationLogFilter provides filter fields for repository queries
type NotificationLogFilter struct {
	ID            *uint
	SpecialistID  *uint
	Status        *NotificationStatus
	UsedChannel   *string
	Phone         *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
