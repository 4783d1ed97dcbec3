package repository

import (
	"context"
	"time"

	"github.com/timmy/leadimport/internal/domain"
	"gorm.io/gorm"
)

// leadCountColumn selects a batch's lead count alongside its columns.
const leadCountColumn = "apollo_batches.*, (SELECT COUNT(*) FROM instagram_leads WHERE instagram_leads.batch_id = apollo_batches.id) AS lead_count"

// BatchRepository handles lead batches.
type BatchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *BatchRepository) WithTx(tx *gorm.DB) *BatchRepository {
	return &BatchRepository{db: tx}
}

// Create inserts a new batch.
func (r *BatchRepository) Create(ctx context.Context, batch *domain.ApolloBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// GetByID retrieves a batch by its ID.
// Returns gorm.ErrRecordNotFound when no row matches.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.ApolloBatch, error) {
	var batch domain.ApolloBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetWithCount retrieves a batch and the number of leads it holds.
func (r *BatchRepository) GetWithCount(ctx context.Context, id string) (*domain.BatchWithCount, error) {
	var rows []domain.BatchWithCount
	if err := r.db.WithContext(ctx).Table("apollo_batches").
		Select(leadCountColumn).
		Where("apollo_batches.id = ?", id).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

// UpdateStatus sets the status of a batch. A nil errMsg leaves the stored
// message untouched. Terminal statuses stamp processed_at with now.
// Returns gorm.ErrRecordNotFound if the batch does not exist.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMsg *string, now time.Time) error {
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

	result := r.db.WithContext(ctx).Model(&domain.ApolloBatch{}).Where("id = ?", id).Updates(updates)
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
func (r *BatchRepository) TouchProcessedAt(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ApolloBatch{}).
		Where("id = ? AND (processed_at IS NULL OR processed_at < ?)", id, now).
		Updates(map[string]interface{}{"processed_at": now, "updated_at": now}).Error
}

// List returns batches newest first with lead counts. An empty userID lists
// every owner.
func (r *BatchRepository) List(ctx context.Context, userID string, limit, offset int) ([]domain.BatchWithCount, int64, error) {
	query := r.db.WithContext(ctx).Table("apollo_batches")
	if userID != "" {
		query = query.Where("apollo_batches.user_id = ?", userID)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	batches := []domain.BatchWithCount{}
	if err := query.Select(leadCountColumn).
		Order("apollo_batches.created_at DESC").
		Order("apollo_batches.id").
		Limit(limit).
		Offset(offset).
		Scan(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// Delete removes a batch and all of its leads in one transaction.
// Returns gorm.ErrRecordNotFound if the batch does not exist.
func (r *BatchRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", id).Delete(&domain.InstagramLead{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.ApolloBatch{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// CountByStatus returns the number of batches per status.
func (r *BatchRepository) CountByStatus(ctx context.Context) (map[domain.BatchStatus]int64, error) {
	var rows []struct {
		Status domain.BatchStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.ApolloBatch{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.BatchStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
