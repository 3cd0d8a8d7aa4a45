// Package dto contains request and response shapes of the admin API
package dto

// StageReferralRequest opens a provisional increment for a specialist month
type StageReferralRequest struct {
	SpecialistID uint `json:"specialist_id" validate:"required,gt=0" example:"12"`
	Year         int  `json:"year" validate:"required,gte=2000,lte=2100" example:"2025"`
	Month        int  `json:"month" validate:"required,gte=1,lte=12" example:"3"`
}

// StageReferralResponse is shown on the confirmation form
type StageReferralResponse struct {
	StagingID        string `json:"staging_id" example:"9b2f3c1e-4c2a-4f5e-9a57-0f1d2e3c4b5a"`
	SpecialistID     uint   `json:"specialist_id" example:"12"`
	SpecialistName   string `json:"specialist_name" example:"Dr. X"`
	Year             int    `json:"year" example:"2025"`
	Month            int    `json:"month" example:"3"`
	CurrentTotal     int64  `json:"current_total" example:"4"`
	ProvisionalTotal int64  `json:"provisional_total" example:"5"`
	ExpiresAt        string `json:"expires_at" example:"2025-03-10T10:30:00Z"`
}

// ConfirmReferralRequest carries the client identity. Fields are checked by the
// workflow so that a missing field yields the validation acknowledgment.
type ConfirmReferralRequest struct {
	ClientName    string `json:"client_name" validate:"max=255" example:"Mehmet"`
	ClientSurname string `json:"client_surname" validate:"max=255" example:"Demir"`
	ClientContact string `json:"client_contact" validate:"max=255" example:"05551234567"`
}

// NoticeDTO is the secondary message about notification delivery
type NoticeDTO struct {
	Level   string `json:"level" example:"info"`
	Message string `json:"message"`
}

// AcknowledgmentDTO is the single user-facing message of an operator action
type AcknowledgmentDTO struct {
	Outcome string     `json:"outcome" example:"committed"`
	Message string     `json:"message"`
	Notice  *NoticeDTO `json:"notice,omitempty"`
}

// NotificationResultDTO summarises one dispatch
type NotificationResultDTO struct {
	Status        string `json:"status" example:"success"`
	Phone         string `json:"phone,omitempty" example:"905551112233"`
	ContactSource string `json:"contact_source" example:"order_history"`
	UsedChannel   string `json:"used_channel,omitempty" example:"sms_gateway"`
	Error         string `json:"error,omitempty"`
	Attempts      int    `json:"attempts"`
	LogID         uint   `json:"log_id,omitempty"`
}

// ConfirmReferralResponse is returned for a committed referral
type ConfirmReferralResponse struct {
	SpecialistID     uint                  `json:"specialist_id"`
	Year             int                   `json:"year"`
	Month            int                   `json:"month"`
	PreviousTotal    int64                 `json:"previous_total"`
	NewTotal         int64                 `json:"new_total"`
	ProvisionalTotal int64                 `json:"provisional_total"`
	Notification     NotificationResultDTO `json:"notification"`
	Acknowledgment   AcknowledgmentDTO     `json:"acknowledgment"`
}

// CancelReferralResponse is returned when a staging is discarded
type CancelReferralResponse struct {
	StagingID      string            `json:"staging_id"`
	Acknowledgment AcknowledgmentDTO `json:"acknowledgment"`
}

// PeriodRequest names a specialist month
type PeriodRequest struct {
	SpecialistID uint `json:"specialist_id" validate:"required,gt=0" example:"12"`
	Year         int  `json:"year" validate:"required,gte=2000,lte=2100" example:"2025"`
	Month        int  `json:"month" validate:"required,gte=1,lte=12" example:"3"`
}

// DecrementReferralResponse is returned after removing the latest referral
type DecrementReferralResponse struct {
	SpecialistID   uint              `json:"specialist_id"`
	Year           int               `json:"year"`
	Month          int               `json:"month"`
	PreviousTotal  int64             `json:"previous_total"`
	NewTotal       int64             `json:"new_total"`
	Acknowledgment AcknowledgmentDTO `json:"acknowledgment"`
}

// SetNotesRequest replaces the notes of a specialist month
type SetNotesRequest struct {
	PeriodRequest
	Notes string `json:"notes" validate:"max=4000" example:"Prefers morning calls"`
}

// NotesWriteResponse reports how many rows received the notes
type NotesWriteResponse struct {
	Total              int  `json:"total"`
	Updated            int  `json:"updated"`
	Failed             int  `json:"failed"`
	PlaceholderCreated bool `json:"placeholder_created"`
}

// ReferralRowDTO is one stored referral row
type ReferralRowDTO struct {
	ID            uint    `json:"id"`
	UUID          string  `json:"uuid"`
	ClientName    string  `json:"client_name"`
	ClientSurname string  `json:"client_surname"`
	ClientContact string  `json:"client_contact"`
	ReferralCount int     `json:"referral_count"`
	ReferredAt    *string `json:"referred_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// PeriodSnapshotResponse is the state of one specialist month
type PeriodSnapshotResponse struct {
	SpecialistID uint             `json:"specialist_id"`
	Year         int              `json:"year"`
	Month        int              `json:"month"`
	Total        int64            `json:"total"`
	Notes        string           `json:"notes"`
	Rows         []ReferralRowDTO `json:"rows"`
}

// ReportQuery selects the year report
type ReportQuery struct {
	SpecialistID uint `query:"specialist_id" validate:"omitempty,gt=0"`
	Year         int  `query:"year" validate:"required,gte=2000,lte=2100"`
}

// NotificationListQuery pages through the notification log
type NotificationListQuery struct {
	SpecialistID uint   `query:"specialist_id" validate:"omitempty,gt=0"`
	Status       string `query:"status" validate:"omitempty,oneof=success error"`
	Page         int    `query:"page" validate:"omitempty,gte=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// AuditListQuery pages through operator audit entries
type AuditListQuery struct {
	SpecialistID uint `query:"specialist_id" validate:"omitempty,gt=0"`
	FailedOnly   bool `query:"failed_only"`
	Page         int  `query:"page" validate:"omitempty,gte=1"`
	PageSize     int  `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// NotificationLogDTO is one entry of the notification log
type NotificationLogDTO struct {
	ID             uint   `json:"id"`
	Phone          string `json:"phone"`
	Message        string `json:"message"`
	Status         string `json:"status"`
	UsedChannel    string `json:"used_channel"`
	Error          string `json:"error,omitempty"`
	ContactSource  string `json:"contact_source"`
	SpecialistID   *uint  `json:"specialist_id,omitempty"`
	SpecialistName string `json:"specialist_name"`
	ClientName     string `json:"client_name"`
	TriggeredBy    string `json:"triggered_by"`
	CreatedAt      string `json:"created_at"`
}

// NotificationListResponse is one page of the notification log
type NotificationListResponse struct {
	Items      []NotificationLogDTO `json:"items"`
	Page       int                  `json:"page"`
	PageSize   int                  `json:"page_size"`
	TotalItems int64                `json:"total_items"`
	TotalPages int                  `json:"total_pages"`
}
