// Package models contains domain entities for referral attribution and notification dispatch
package models

import (
	"encoding/json"
	"time"
)

// AuditLog records operator actions on referral periods
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	OperatorID   *uint           `gorm:"index:idx_audit_operator_id" json:"operator_id,omitempty"`
	SpecialistID *uint           `gorm:"index:idx_audit_specialist_id" json:"specialist_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionReferralStaged         = "referral_staged"
	AuditActionReferralConfirmed      = "referral_confirmed"
	AuditActionReferralCancelled      = "referral_cancelled"
	AuditActionReferralDecremented    = "referral_decremented"
	AuditActionReferralNotesUpdated   = "referral_notes_updated"
	AuditActionReferralCommitFailed   = "referral_commit_failed"
	AuditActionReferralReportExported = "referral_report_exported"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	OperatorID    *uint
	SpecialistID  *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
