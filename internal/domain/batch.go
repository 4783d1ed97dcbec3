package domain

import "time"

// BatchStatus represents the status of an ApolloBatch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "PENDING"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusCompleted  BatchStatus = "COMPLETED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// AllBatchStatuses lists every BatchStatus in declaration order.
var AllBatchStatuses = []BatchStatus{
	BatchStatusPending,
	BatchStatusProcessing,
	BatchStatusCompleted,
	BatchStatusFailed,
}

// IsTerminal reports whether s is COMPLETED or FAILED.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ApolloBatch is the set of leads produced by one import job.
type ApolloBatch struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	Name         string      `gorm:"type:text;not null" json:"name"`
	Description  *string     `gorm:"type:text" json:"description,omitempty"`
	FileName     string      `gorm:"type:text;not null" json:"file_name"`
	UploadedBy   string      `gorm:"type:text;not null" json:"uploaded_by"`
	UserID       string      `gorm:"type:text;not null;index:idx_apollo_batches_user" json:"user_id"`
	Status       BatchStatus `gorm:"type:text;index:idx_apollo_batches_status;default:PENDING" json:"status"`
	ErrorMessage *string     `gorm:"type:text" json:"error_message,omitempty"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ApolloBatch.
func (ApolloBatch) TableName() string {
	return "apollo_batches"
}

// BatchWithCount is an ApolloBatch together with the number of leads it holds.
type BatchWithCount struct {
	ApolloBatch
	LeadCount int64 `json:"lead_count"`
}
