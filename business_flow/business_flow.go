// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"go.uber.org/zap"
)

// ClientMetadata holds operator request information for audit logging
type ClientMetadata struct {
	OperatorID uint   `json:"operator_id,omitempty"`
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	RequestID  string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetOperatorID sets the authenticated operator
func (cm *ClientMetadata) SetOperatorID(operatorID uint) {
	cm.OperatorID = operatorID
}

// ClientIdentity is the client attributed to a specialist by a referral
type ClientIdentity struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Contact string `json:"contact"`
}

// Trimmed returns the identity with surrounding whitespace removed
func (c ClientIdentity) Trimmed() ClientIdentity {
	return ClientIdentity{
		Name:    utils.DerefString(utils.NonEmptyPtr(c.Name)),
		Surname: utils.DerefString(utils.NonEmptyPtr(c.Surname)),
		Contact: utils.DerefString(utils.NonEmptyPtr(c.Contact)),
	}
}

// Complete reports whether every field is non-empty
func (c ClientIdentity) Complete() bool {
	t := c.Trimmed()
	return t.Name != "" && t.Surname != "" && t.Contact != ""
}

func validatePeriod(period repository.Period) error {
	if period.SpecialistID == 0 || !utils.IsValidPeriod(period.Year, period.Month) {
		return ErrInvalidPeriod
	}
	return nil
}

func metaJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// recordAudit writes an audit row on a context that survives request cancellation.
// A failed write is only logged.
func recordAudit(ctx context.Context, repo repository.AuditLogRepository, logger *zap.Logger, meta *ClientMetadata, specialistID uint, action, description string, cause error, metadata map[string]any) {
	if repo == nil {
		return
	}

	entry := &models.AuditLog{
		Action:      action,
		Description: utils.NonEmptyPtr(description),
		Metadata:    metaJSON(metadata),
		Success:     utils.ToPtr(cause == nil),
	}
	if specialistID != 0 {
		entry.SpecialistID = utils.ToPtr(specialistID)
	}
	if cause != nil {
		entry.ErrorMessage = utils.ToPtr(cause.Error())
	}
	if meta != nil {
		if meta.OperatorID != 0 {
			entry.OperatorID = utils.ToPtr(meta.OperatorID)
		}
		entry.IPAddress = utils.NonEmptyPtr(meta.IPAddress)
		entry.UserAgent = utils.NonEmptyPtr(meta.UserAgent)
		entry.RequestID = utils.NonEmptyPtr(meta.RequestID)
	}

	if err := repo.Save(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
