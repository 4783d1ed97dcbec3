package domain

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus represents the status of an import job.
// Values include JobStatusQueued, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// AllJobStatuses lists every JobStatus in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
}

// IsTerminal reports whether s is COMPLETED or FAILED.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether the state machine allows s -> next.
// QUEUED -> PROCESSING -> {COMPLETED, FAILED}; a queued job may also fail
// before it starts. Terminal states have no exits.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}

// SourcesOf returns the statuses a job may move to next from.
func SourcesOf(next JobStatus) []JobStatus {
	var from []JobStatus
	for _, s := range AllJobStatuses {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// ImportType identifies the record schema an import job loads.
type ImportType string

const (
	ImportTypeApolloInstagramLeads ImportType = "APOLLO_INSTAGRAM_LEADS"
)

// LogLevel is the severity of an import job log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// ImportJob is one execution of the import pipeline against a FileUpload.
type ImportJob struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	FileUploadID string      `gorm:"type:text;not null;index:idx_import_jobs_file" json:"file_upload_id"`
	FileUpload   *FileUpload `gorm:"foreignKey:FileUploadID" json:"file_upload,omitempty"`
	Type         ImportType  `gorm:"type:text;not null" json:"type"`
	Status       JobStatus   `gorm:"type:text;index:idx_import_jobs_status;default:QUEUED" json:"status"`
	Progress     int         `gorm:"default:0" json:"progress"`
	BatchID      *string     `gorm:"type:text;index:idx_import_jobs_batch" json:"batch_id,omitempty"`
	ErrorMessage *string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	CreatedAt    time.Time   `gorm:"index:idx_import_jobs_created" json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}

// ImportJobLog is an append-only audit entry for an import job.
// Sequence is assigned per job and gives the entries a total order even
// when CreatedAt values collide.
type ImportJobLog struct {
	ID          string         `gorm:"type:text;primaryKey" json:"id"`
	ImportJobID string         `gorm:"type:text;not null;uniqueIndex:idx_import_job_logs_seq,priority:1" json:"import_job_id"`
	Sequence    int            `gorm:"not null;uniqueIndex:idx_import_job_logs_seq,priority:2" json:"sequence"`
	Level       LogLevel       `gorm:"type:text;not null" json:"level"`
	Message     string         `gorm:"type:text;not null" json:"message"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName returns the database table name for ImportJobLog.
func (ImportJobLog) TableName() string {
	return "import_job_logs"
}
