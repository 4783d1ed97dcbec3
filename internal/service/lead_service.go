package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"gorm.io/gorm"
)

// DefaultChunkSize is the number of leads written per insert statement.
const DefaultChunkSize = 100

// LeadService persists batches and the leads inside them.
type LeadService struct {
	batches *repository.BatchRepository
	leads   *repository.LeadRepository
	logger  *logger.Logger
	paging  Paging
	now     func() time.Time
}

// BatchInput describes a batch to create.
type BatchInput struct {
	Name        string
	Description *string
	FileName    string
	UploadedBy  string
	UserID      string
}

// LeadQuery filters SearchLeads. Zero values are ignored.
type LeadQuery struct {
	Query             string
	Status            domain.LeadStatus
	MinFollowers      *float64
	BatchID           string
	IsBusinessAccount *bool
	Page              int
	PageSize          int
}

// BatchList is one page of batches with their lead counts.
type BatchList struct {
	Batches  []domain.BatchWithCount `json:"batches"`
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

// LeadList is one page of leads.
type LeadList struct {
	Leads    []domain.InstagramLead `json:"leads"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// StatusCounts holds per-status totals. Every known status is present.
type StatusCounts struct {
	Leads   map[domain.LeadStatus]int64  `json:"leads"`
	Batches map[domain.BatchStatus]int64 `json:"batches"`
}

// NewLeadService creates a new lead service.
func NewLeadService(
	batches *repository.BatchRepository,
	leads *repository.LeadRepository,
	log *logger.Logger,
	paging Paging,
) *LeadService {
	return &LeadService{
		batches: batches,
		leads:   leads,
		logger:  log,
		paging:  paging,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *LeadService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// WithTx returns a service whose writes go through tx.
func (s *LeadService) WithTx(tx *gorm.DB) *LeadService {
	cp := *s
	cp.batches = s.batches.WithTx(tx)
	cp.leads = s.leads.WithTx(tx)
	return &cp
}

// CreateBatch creates a PENDING batch.
func (s *LeadService) CreateBatch(ctx context.Context, in BatchInput) (*domain.ApolloBatch, error) {
	batch := &domain.ApolloBatch{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		FileName:    in.FileName,
		UploadedBy:  in.UploadedBy,
		UserID:      in.UserID,
		Status:      domain.BatchStatusPending,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, &domain.PersistenceError{Op: "create batch", Err: err}
	}
	return batch, nil
}

// InsertLeads writes leads into a batch with one insert statement. Every
// lead gets a fresh ID when it has none and batchID as its batch.
// Returns:
//   - int: number of rows written, zero on error.
//   - error: *domain.PersistenceError if the insert fails.
func (s *LeadService) InsertLeads(ctx context.Context, batchID string, leads []domain.InstagramLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	for i := range leads {
		if leads[i].ID == "" {
			leads[i].ID = uuid.NewString()
		}
		leads[i].BatchID = batchID
		if leads[i].Status == "" {
			leads[i].Status = domain.LeadStatusNew
		}
	}

	if err := s.leads.CreateMany(ctx, leads); err != nil {
		return 0, &domain.PersistenceError{Op: "insert leads", Err: err}
	}
	return len(leads), nil
}

// UpdateBatchStatus sets a batch's status. A nil errMsg leaves the stored
// message unchanged. Re-applying the current terminal status only refreshes
// processed_at.
func (s *LeadService) UpdateBatchStatus(ctx context.Context, id string, status domain.BatchStatus, errMsg *string) error {
	current, err := s.batches.GetByID(ctx, id)
	if err != nil {
		return notFound(err, "batch", id)
	}

	now := s.now()
	if status.IsTerminal() && current.Status == status {
		return s.batches.TouchProcessedAt(ctx, id, now)
	}
	if err := s.batches.UpdateStatus(ctx, id, status, errMsg, now); err != nil {
		return notFound(err, "batch", id)
	}
	return nil
}

// GetBatch returns a batch with its lead count.
func (s *LeadService) GetBatch(ctx context.Context, id string) (*domain.BatchWithCount, error) {
	batch, err := s.batches.GetWithCount(ctx, id)
	if err != nil {
		return nil, notFound(err, "batch", id)
	}
	return batch, nil
}

// ListBatches returns a page of batches, newest first. An empty userID lists
// every owner.
func (s *LeadService) ListBatches(ctx context.Context, page, pageSize int, userID string) (*BatchList, error) {
	page, pageSize, limit, offset := s.paging.normalize(page, pageSize)
	batches, total, err := s.batches.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &BatchList{Batches: batches, Total: total, Page: page, PageSize: pageSize}, nil
}

// ListLeadsByBatch returns a page of the leads in a batch.
func (s *LeadService) ListLeadsByBatch(ctx context.Context, batchID string, page, pageSize int) (*LeadList, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, notFound(err, "batch", batchID)
	}
	return s.SearchLeads(ctx, LeadQuery{BatchID: batchID, Page: page, PageSize: pageSize})
}

// SearchLeads returns leads matching q, most followers first.
func (s *LeadService) SearchLeads(ctx context.Context, q LeadQuery) (*LeadList, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("unknown lead status %q: %w", q.Status, domain.ErrInvalidArgument)
	}

	page, pageSize, limit, offset := s.paging.normalize(q.Page, q.PageSize)
	leads, total, err := s.leads.Search(ctx, repository.LeadFilter{
		Query:             q.Query,
		Status:            q.Status,
		MinFollowers:      q.MinFollowers,
		BatchID:           q.BatchID,
		IsBusinessAccount: q.IsBusinessAccount,
	}, limit, offset)
	if err != nil {
		return nil, err
	}
	return &LeadList{Leads: leads, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetLead returns a lead with its batch.
func (s *LeadService) GetLead(ctx context.Context, id string) (*domain.InstagramLead, error) {
	lead, err := s.leads.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "lead", id)
	}
	return lead, nil
}

// UpdateLeadStatus moves a lead through the outreach lifecycle and stamps
// processed_at. Empty notes keep the existing notes.
func (s *LeadService) UpdateLeadStatus(ctx context.Context, id string, status domain.LeadStatus, notes string) (*domain.InstagramLead, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown lead status %q: %w", status, domain.ErrInvalidArgument)
	}
	if err := s.leads.UpdateStatus(ctx, id, status, notes, s.now()); err != nil {
		return nil, notFound(err, "lead", id)
	}
	return s.GetLead(ctx, id)
}

// DeleteBatch removes a batch and every lead in it.
func (s *LeadService) DeleteBatch(ctx context.Context, id string) error {
	if err := s.batches.Delete(ctx, id); err != nil {
		return notFound(err, "batch", id)
	}
	s.log(ctx).WithField(logger.FieldBatchID, id).Info("Batch deleted")
	return nil
}

// StatusCounts returns lead and batch totals per status.
func (s *LeadService) StatusCounts(ctx context.Context) (*StatusCounts, error) {
	leadCounts, err := s.leads.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	batchCounts, err := s.batches.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	out := &StatusCounts{
		Leads:   make(map[domain.LeadStatus]int64, len(domain.AllLeadStatuses)),
		Batches: make(map[domain.BatchStatus]int64, len(domain.AllBatchStatuses)),
	}
	for _, st := range domain.AllLeadStatuses {
		out.Leads[st] = leadCounts[st]
	}
	for _, st := range domain.AllBatchStatuses {
		out.Batches[st] = batchCounts[st]
	}
	return out, nil
}

// QualityMetrics reports the share of leads carrying each contact or trust
// signal, as percentages rounded to one decimal.
type QualityMetrics struct {
	TotalLeads            int64   `json:"total_leads"`
	BusinessPercentage    float64 `json:"business_percentage"`
	WithEmailPercentage   float64 `json:"with_email_percentage"`
	WithPhonePercentage   float64 `json:"with_phone_percentage"`
	WithWebsitePercentage float64 `json:"with_website_percentage"`
	VerifiedPercentage    float64 `json:"verified_percentage"`
}

// QualityMetrics computes data-quality percentages over every lead. With no
// leads every percentage is zero.
func (s *LeadService) QualityMetrics(ctx context.Context) (*QualityMetrics, error) {
	qc, err := s.leads.QualityCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &QualityMetrics{
		TotalLeads:            qc.Total,
		BusinessPercentage:    percentage(qc.Business, qc.Total),
		WithEmailPercentage:   percentage(qc.WithEmail, qc.Total),
		WithPhonePercentage:   percentage(qc.WithPhone, qc.Total),
		WithWebsitePercentage: percentage(qc.WithWebsite, qc.Total),
		VerifiedPercentage:    percentage(qc.Verified, qc.Total),
	}, nil
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*1000/float64(total)) / 10
}
