package repository

import (
	"context"
	"time"

	"github.com/timmy/leadimport/internal/domain"
	"gorm.io/gorm"
)

// FileRepository handles file upload records.
type FileRepository struct {
	db *gorm.DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *FileRepository) WithTx(tx *gorm.DB) *FileRepository {
	return &FileRepository{db: tx}
}

// Create inserts a new file upload record.
func (r *FileRepository) Create(ctx context.Context, file *domain.FileUpload) error {
	return r.db.WithContext(ctx).Create(file).Error
}

// GetByID retrieves a file upload by its ID.
// Returns gorm.ErrRecordNotFound when no row matches.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.FileUpload, error) {
	var file domain.FileUpload
	if err := r.db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// UpdateStatus sets the status of a file upload. A nil errMsg leaves the
// stored message untouched. Terminal statuses stamp processed_at with now.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: file upload ID.
//   - status: new status.
//   - errMsg: optional error message.
//   - now: timestamp used for processed_at.
// Returns:
//   - error: gorm.ErrRecordNotFound if the file does not exist.
func (r *FileRepository) UpdateStatus(ctx context.Context, id string, status domain.UploadStatus, errMsg *string, now time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	if errMsg != nil {
		updates["error_message"] = *errMsg
	}
	if status.IsTerminal() {
		updates["processed_at"] = now
	}

	result := r.db.WithContext(ctx).Model(&domain.FileUpload{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchProcessedAt refreshes processed_at without changing anything else.
// processed_at never moves backwards.
func (r *FileRepository) TouchProcessedAt(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.FileUpload{}).
		Where("id = ? AND (processed_at IS NULL OR processed_at < ?)", id, now).
		Updates(map[string]interface{}{"processed_at": now, "updated_at": now}).Error
}

// CompareAndSetStatus moves a file from one status to another only if it is
// still in the expected status.
// Returns:
//   - bool: true if this call performed the transition.
//   - error: non-nil if the update fails.
func (r *FileRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.UploadStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.FileUpload{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Delete removes a file upload record together with its import jobs and
// their logs. Batches created by those jobs are kept.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jobIDs := tx.Model(&domain.ImportJob{}).Select("id").Where("file_upload_id = ?", id)
		if err := tx.Where("import_job_id IN (?)", jobIDs).Delete(&domain.ImportJobLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_upload_id = ?", id).Delete(&domain.ImportJob{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.FileUpload{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// List returns uploads newest first. An empty userID lists every owner.
func (r *FileRepository) List(ctx context.Context, userID string, limit, offset int) ([]domain.FileUpload, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.FileUpload{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var files []domain.FileUpload
	if err := query.Order("created_at DESC").Order("id").Limit(limit).Offset(offset).Find(&files).Error; err != nil {
		return nil, 0, err
	}
	return files, total, nil
}
