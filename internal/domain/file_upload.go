package domain

import "time"

// UploadStatus represents the processing status of an uploaded file.
// Values include UploadStatusPending, UploadStatusProcessing, UploadStatusCompleted, and UploadStatusFailed.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "PENDING"
	UploadStatusProcessing UploadStatus = "PROCESSING"
	UploadStatusCompleted  UploadStatus = "COMPLETED"
	UploadStatusFailed     UploadStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are expected from s.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadStatusCompleted || s == UploadStatusFailed
}

// Valid reports whether s is a known upload status.
func (s UploadStatus) Valid() bool {
	switch s {
	case UploadStatusPending, UploadStatusProcessing, UploadStatusCompleted, UploadStatusFailed:
		return true
	}
	return false
}

// FileUpload represents one durable upload whose bytes live in object storage.
// FileName is the generated storage name, Path the object storage key.
type FileUpload struct {
	ID           string       `gorm:"type:text;primaryKey" json:"id"`
	FileName     string       `gorm:"type:text;not null;uniqueIndex:idx_file_uploads_file_name" json:"file_name"`
	OriginalName string       `gorm:"type:text;not null" json:"original_name"`
	MimeType     string       `gorm:"type:text" json:"mime_type"`
	Size         int64        `json:"size"`
	Path         string       `gorm:"type:text;not null" json:"path"`
	Status       UploadStatus `gorm:"type:text;index:idx_file_uploads_status;default:PENDING" json:"status"`
	ErrorMessage *string      `gorm:"type:text" json:"error_message,omitempty"`
	UserID       string       `gorm:"type:text;not null;index:idx_file_uploads_user" json:"user_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty"`
}

// TableName returns the database table name for FileUpload.
func (FileUpload) TableName() string {
	return "file_uploads"
}
