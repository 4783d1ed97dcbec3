package repository

import (
	"context"
	"strings"
	"time"

	"github.com/timmy/leadimport/internal/domain"
	"gorm.io/gorm"
)

// LeadFilter narrows a lead search. Zero values are ignored.
type LeadFilter struct {
	Query             string
	Status            domain.LeadStatus
	MinFollowers      *float64
	BatchID           string
	IsBusinessAccount *bool
}

// LeadRepository handles Instagram lead records.
type LeadRepository struct {
	db *gorm.DB
}

// NewLeadRepository creates a new LeadRepository.
func NewLeadRepository(db *gorm.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *LeadRepository) WithTx(tx *gorm.DB) *LeadRepository {
	return &LeadRepository{db: tx}
}

// CreateMany inserts leads with a single INSERT statement.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - leads: records to persist; IDs and batch IDs must be set.
// Returns:
//   - error: non-nil if the insert fails, in which case no row was written.
func (r *LeadRepository) CreateMany(ctx context.Context, leads []domain.InstagramLead) error {
	if len(leads) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Batch").Create(&leads).Error
}

// GetByID retrieves a lead with its batch.
// Returns gorm.ErrRecordNotFound when no row matches.
func (r *LeadRepository) GetByID(ctx context.Context, id string) (*domain.InstagramLead, error) {
	var lead domain.InstagramLead
	if err := r.db.WithContext(ctx).Preload("Batch").First(&lead, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

// Search returns leads matching filter ordered by followers, highest first
// and unknown counts last.
func (r *LeadRepository) Search(ctx context.Context, filter LeadFilter, limit, offset int) ([]domain.InstagramLead, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.InstagramLead{})

	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(profile_name) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(bio) LIKE ? OR LOWER(email) LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.MinFollowers != nil {
		query = query.Where("followers_count >= ?", *filter.MinFollowers)
	}
	if filter.BatchID != "" {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.IsBusinessAccount != nil {
		query = query.Where("is_business_account = ?", *filter.IsBusinessAccount)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	leads := []domain.InstagramLead{}
	if err := query.
		Preload("Batch", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		}).
		Order("followers_count IS NULL").
		Order("followers_count DESC").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&leads).Error; err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// UpdateStatus sets a lead's outreach status and stamps processed_at. Empty
// notes leave the stored notes untouched.
// Returns gorm.ErrRecordNotFound if the lead does not exist.
func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, status domain.LeadStatus, notes string, now time.Time) error {
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": now,
		"updated_at":   now,
	}
	if notes != "" {
		updates["notes"] = notes
	}

	result := r.db.WithContext(ctx).Model(&domain.InstagramLead{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByBatch returns the number of leads in a batch.
func (r *LeadRepository) CountByBatch(ctx context.Context, batchID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.InstagramLead{}).Where("batch_id = ?", batchID).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of leads per status.
func (r *LeadRepository) CountByStatus(ctx context.Context) (map[domain.LeadStatus]int64, error) {
	var rows []struct {
		Status domain.LeadStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.InstagramLead{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.LeadStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// QualityCounts holds lead totals behind the data-quality percentages.
type QualityCounts struct {
	Total       int64
	Business    int64
	WithEmail   int64
	WithPhone   int64
	WithWebsite int64
	Verified    int64
}

// QualityCounts counts all leads and those carrying each quality signal in
// a single scan.
func (r *LeadRepository) QualityCounts(ctx context.Context) (*QualityCounts, error) {
	var qc QualityCounts
	err := r.db.WithContext(ctx).Model(&domain.InstagramLead{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_business_account THEN 1 ELSE 0 END), 0) AS business,
			COALESCE(SUM(CASE WHEN email IS NOT NULL THEN 1 ELSE 0 END), 0) AS with_email,
			COALESCE(SUM(CASE WHEN phone_number IS NOT NULL THEN 1 ELSE 0 END), 0) AS with_phone,
			COALESCE(SUM(CASE WHEN website IS NOT NULL THEN 1 ELSE 0 END), 0) AS with_website,
			COALESCE(SUM(CASE WHEN is_verified THEN 1 ELSE 0 END), 0) AS verified`).
		Scan(&qc).Error
	if err != nil {
		return nil, err
	}
	return &qc, nil
}
