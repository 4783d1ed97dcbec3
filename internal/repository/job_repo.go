package repository

import (
	"context"
	"time"

	"github.com/timmy/leadimport/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles import jobs and their logs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{db: tx}
}

// Create inserts a new import job.
func (r *JobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves an import job with its file upload.
// Returns gorm.ErrRecordNotFound when no row matches.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).Preload("FileUpload").First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Transition moves a job to status `to` if its current status is one of
// `from`, applying extra column updates in the same statement. Without
// `from` every status that may legally precede `to` is accepted; sources the
// state machine forbids are never matched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: import job ID.
//   - to: target status.
//   - extra: additional columns to set, may be nil.
//   - from: statuses the job may currently be in, nil for all legal sources.
// Returns:
//   - bool: true if the row was updated.
//   - error: non-nil if the update fails.
func (r *JobRepository) Transition(ctx context.Context, id string, to domain.JobStatus, extra map[string]interface{}, from ...domain.JobStatus) (bool, error) {
	allowed := make([]domain.JobStatus, 0, len(from))
	for _, f := range from {
		if f.CanTransitionTo(to) {
			allowed = append(allowed, f)
		}
	}
	if len(from) == 0 {
		allowed = domain.SourcesOf(to)
	}
	if len(allowed) == 0 {
		return false, nil
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateProgress raises the progress of a processing job. Lower values are
// ignored so progress never decreases.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ? AND progress <= ?", id, domain.JobStatusProcessing, progress).
		Updates(map[string]interface{}{"progress": progress, "updated_at": time.Now().UTC()}).Error
}

// SetBatch records the batch created by a job. The reference is written at
// most once.
// Returns:
//   - bool: true if this call set the reference.
//   - error: non-nil if the update fails.
func (r *JobRepository) SetBatch(ctx context.Context, id, batchID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND batch_id IS NULL", id).
		Updates(map[string]interface{}{"batch_id": batchID, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// List returns jobs newest first with their file uploads. A non-empty
// userID keeps only jobs whose file belongs to that user.
func (r *JobRepository) List(ctx context.Context, userID string, limit, offset int) ([]domain.ImportJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.ImportJob{})
	if userID != "" {
		query = query.Joins("JOIN file_uploads ON file_uploads.id = import_jobs.file_upload_id").
			Where("file_uploads.user_id = ?", userID)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []domain.ImportJob
	if err := query.Preload("FileUpload").
		Order("import_jobs.created_at DESC").
		Order("import_jobs.id").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// AppendLog stores a log entry, assigning the next per-job sequence number.
func (r *JobRepository) AppendLog(ctx context.Context, entry *domain.ImportJobLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int
		if err := tx.Model(&domain.ImportJobLog{}).
			Where("import_job_id = ?", entry.ImportJobID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&last).Error; err != nil {
			return err
		}
		entry.Sequence = last + 1
		return tx.Create(entry).Error
	})
}

// RecentLogs returns up to limit log entries of a job, newest first.
func (r *JobRepository) RecentLogs(ctx context.Context, jobID string, limit int) ([]domain.ImportJobLog, error) {
	var logs []domain.ImportJobLog
	if err := r.db.WithContext(ctx).
		Where("import_job_id = ?", jobID).
		Order("sequence DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
