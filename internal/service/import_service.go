package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/leadimport/internal/csvimport"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"github.com/timmy/leadimport/internal/worker"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Progress checkpoints of an import job.
const (
	progressParsed       = 10
	progressBatchCreated = 20
	progressInsertSpan   = 70
	progressInsertCap    = 90
	progressDone         = 100
)

// maxIssuesInLog caps the field issues attached to a single log entry.
const maxIssuesInLog = 20

// ImportConfig holds configuration for the import service.
type ImportConfig struct {
	ChunkSize int
	LogLimit  int
	Coercion  csvimport.CoercionPolicy
	// Atomic wraps every lead insert of a job in one transaction.
	Atomic bool
	Paging Paging
}

// ImportService runs CSV imports as background jobs.
type ImportService struct {
	db        *gorm.DB
	files     *repository.FileRepository
	jobs      *repository.JobRepository
	fileSvc   *FileService
	leadSvc   *LeadService
	scheduler worker.Scheduler
	logger    *logger.Logger
	cfg       ImportConfig
	now       func() time.Time
}

// ImportJobDetail is a job with its file and most recent log entries.
type ImportJobDetail struct {
	*domain.ImportJob
	Logs []domain.ImportJobLog `json:"logs"`
}

// JobList is one page of import jobs.
type JobList struct {
	Jobs     []domain.ImportJob `json:"jobs"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// NewImportService creates a new import service.
func NewImportService(
	db *gorm.DB,
	files *repository.FileRepository,
	jobs *repository.JobRepository,
	fileSvc *FileService,
	leadSvc *LeadService,
	scheduler worker.Scheduler,
	log *logger.Logger,
	cfg *ImportConfig,
) *ImportService {
	c := *cfg
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.LogLimit <= 0 {
		c.LogLimit = 50
	}
	if c.Coercion == "" {
		c.Coercion = csvimport.PolicyNull
	}
	return &ImportService{
		db:        db,
		files:     files,
		jobs:      jobs,
		fileSvc:   fileSvc,
		leadSvc:   leadSvc,
		scheduler: scheduler,
		logger:    log,
		cfg:       c,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ImportService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// StartImport queues an import of a PENDING file and returns the QUEUED job
// without waiting for it. The file is claimed atomically, so a second start
// for the same file fails with domain.ErrConflict. A file that finished
// importing must be uploaded again to be re-imported.
// Parameters:
//   - ctx: request context; the job itself runs on the scheduler's context.
//   - fileID: file upload to import.
//   - userID: owner of the resulting batch; empty means the file's owner.
// Returns:
//   - *domain.ImportJob: the queued job.
//   - error: domain.ErrNotFound, domain.ErrConflict, or a store failure.
func (s *ImportService) StartImport(ctx context.Context, fileID, userID string) (*domain.ImportJob, error) {
	file, err := s.fileSvc.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = file.UserID
	}

	job := &domain.ImportJob{
		ID:           uuid.NewString(),
		FileUploadID: file.ID,
		Type:         domain.ImportTypeApolloInstagramLeads,
		Status:       domain.JobStatusQueued,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.files.WithTx(tx).CompareAndSetStatus(ctx, file.ID, domain.UploadStatusPending, domain.UploadStatusProcessing)
		if err != nil {
			return &domain.PersistenceError{Op: "claim file", Err: err}
		}
		if !claimed {
			return fmt.Errorf("file %s is not pending: %w", file.ID, domain.ErrConflict)
		}
		if err := s.jobs.WithTx(tx).Create(ctx, job); err != nil {
			return &domain.PersistenceError{Op: "create import job", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.SetJobID(ctx, job.ID)
	if _, err := s.scheduler.Submit("import", func(taskCtx context.Context) error {
		return s.Run(taskCtx, job.ID, userID)
	}); err != nil {
		s.abandon(ctx, job, err)
		return nil, fmt.Errorf("schedule import: %w", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldFileID: file.ID,
		logger.FieldUserID: userID,
	}).Info("Import job queued")
	return job, nil
}

// abandon fails a job that never reached the scheduler.
func (s *ImportService) abandon(ctx context.Context, job *domain.ImportJob, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := "Import could not be scheduled: " + cause.Error()
	if _, err := s.jobs.Transition(ctx, job.ID, domain.JobStatusFailed, map[string]interface{}{
		"error_message": msg,
		"completed_at":  s.now(),
	}, domain.JobStatusQueued); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to mark unscheduled job as failed")
	}
	if err := s.fileSvc.UpdateStatus(ctx, job.FileUploadID, domain.UploadStatusFailed, &msg); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to mark file as failed")
	}
}

// importRun is the state of one Run call.
type importRun struct {
	job       *domain.ImportJob
	file      *domain.FileUpload
	userID    string
	batchID   string
	total     int
	committed int
}

// Run executes a queued job: QUEUED -> PROCESSING -> COMPLETED or FAILED.
// Every failure after the job started is recorded on the job, its file and
// its batch before Run returns it.
func (s *ImportService) Run(ctx context.Context, jobID, userID string) error {
	ctx = logger.SetJobID(ctx, jobID)
	// the job is claimed even when ctx is already done, so that it ends FAILED
	// instead of staying QUEUED
	claimCtx := context.WithoutCancel(ctx)

	job, err := s.jobs.GetByID(claimCtx, jobID)
	if err != nil {
		return notFound(err, "import job", jobID)
	}
	if job.FileUpload == nil {
		return fmt.Errorf("import job %s has no file: %w", jobID, domain.ErrNotFound)
	}

	started, err := s.jobs.Transition(claimCtx, jobID, domain.JobStatusProcessing, map[string]interface{}{
		"progress":   0,
		"started_at": s.now(),
	})
	if err != nil {
		return &domain.PersistenceError{Op: "start import job", Err: err}
	}
	if !started {
		return fmt.Errorf("import job %s is %s: %w", jobID, job.Status, domain.ErrConflict)
	}

	run := &importRun{job: job, file: job.FileUpload, userID: userID}
	s.jobLog(ctx, jobID, domain.LogLevelInfo, "Starting Instagram lead import", nil)

	start := time.Now()
	if err := s.execute(ctx, run); err != nil {
		return s.fail(ctx, run, err)
	}

	logger.With(logger.Fields{logger.FieldBatchID: run.batchID}).
		WithCount(run.total).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Import finished")
	return nil
}

func (s *ImportService) execute(ctx context.Context, run *importRun) error {
	jobID := run.job.ID

	if err := s.fileSvc.UpdateStatus(ctx, run.file.ID, domain.UploadStatusProcessing, nil); err != nil {
		return err
	}

	s.jobLog(ctx, jobID, domain.LogLevelInfo, "Parsing CSV file", nil)
	total, err := s.scan(ctx, run.file)
	if err != nil {
		return err
	}
	run.total = total
	s.jobLog(ctx, jobID, domain.LogLevelInfo, fmt.Sprintf("Parsed %d rows", total), map[string]interface{}{"rows": total})

	if err := s.jobs.UpdateProgress(ctx, jobID, progressParsed); err != nil {
		return err
	}
	s.jobLog(ctx, jobID, domain.LogLevelInfo, fmt.Sprintf("Found %d leads in CSV", total), nil)

	fileName := filepath.Base(run.file.OriginalName)
	batch, err := s.leadSvc.CreateBatch(ctx, BatchInput{
		Name:       "Import " + fileName,
		FileName:   fileName,
		UploadedBy: run.file.UserID,
		UserID:     run.userID,
	})
	if err != nil {
		return err
	}
	run.batchID = batch.ID
	ctx = logger.SetBatchID(ctx, batch.ID)

	if _, err := s.jobs.SetBatch(ctx, jobID, batch.ID); err != nil {
		return err
	}
	if err := s.jobs.UpdateProgress(ctx, jobID, progressBatchCreated); err != nil {
		return err
	}
	s.jobLog(ctx, jobID, domain.LogLevelInfo, fmt.Sprintf("Created batch %s", batch.ID), nil)

	if err := s.insert(ctx, run); err != nil {
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			perr = &domain.PersistenceError{Op: "import leads", Err: err}
		}
		perr.Imported = run.committed
		perr.Total = run.total
		return perr
	}

	if err := s.leadSvc.UpdateBatchStatus(ctx, batch.ID, domain.BatchStatusCompleted, nil); err != nil {
		return err
	}
	if err := s.fileSvc.UpdateStatus(ctx, run.file.ID, domain.UploadStatusCompleted, nil); err != nil {
		return err
	}
	completed, err := s.jobs.Transition(ctx, jobID, domain.JobStatusCompleted, map[string]interface{}{
		"progress":     progressDone,
		"completed_at": s.now(),
	})
	if err != nil {
		return err
	}
	if !completed {
		return fmt.Errorf("import job %s left PROCESSING: %w", jobID, domain.ErrConflict)
	}
	s.jobLog(ctx, jobID, domain.LogLevelInfo, "Import completed successfully", nil)
	return nil
}

// scan is the first pass over the file: it counts rows, checks the header
// on the first row and resolves every row so the coercion policy can reject
// the file before anything is written.
func (s *ImportService) scan(ctx context.Context, file *domain.FileUpload) (int, error) {
	rc, err := s.fileSvc.Open(ctx, file)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	reader := csvimport.NewReader(rc)
	rows := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		rows++
		if rows == 1 {
			if err := csvimport.ValidateSchema([]csvimport.Row{row}).Err(); err != nil {
				return 0, err
			}
		}
		if _, _, err := csvimport.Transform(row).Resolve(rows, s.cfg.Coercion); err != nil {
			return 0, err
		}
	}

	if rows == 0 {
		return 0, csvimport.ValidateSchema(nil).Err()
	}
	return rows, nil
}

// chunkReport is the bookkeeping owed after one inserted chunk.
type chunkReport struct {
	done   int
	issues []csvimport.FieldIssue
}

// insert is the second pass: it streams the file again and writes leads in
// chunks of ChunkSize.
func (s *ImportService) insert(ctx context.Context, run *importRun) error {
	if !s.cfg.Atomic {
		return s.insertChunks(ctx, run, s.leadSvc, func(r chunkReport) error {
			run.committed = r.done
			return s.reportChunk(ctx, run, r)
		})
	}

	var reports []chunkReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insertChunks(ctx, run, s.leadSvc.WithTx(tx), func(r chunkReport) error {
			reports = append(reports, r)
			return nil
		})
	})
	if err != nil {
		return err
	}

	run.committed = run.total
	for _, r := range reports {
		if err := s.reportChunk(ctx, run, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *ImportService) insertChunks(ctx context.Context, run *importRun, leads *LeadService, report func(chunkReport) error) error {
	rc, err := s.fileSvc.Open(ctx, run.file)
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csvimport.NewReader(rc)
	chunk := make([]domain.InstagramLead, 0, s.cfg.ChunkSize)
	var issues []csvimport.FieldIssue
	rows, inserted := 0, 0

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := leads.InsertLeads(ctx, run.batchID, chunk)
		if err != nil {
			return err
		}
		inserted += n
		r := chunkReport{done: inserted, issues: issues}
		chunk = chunk[:0]
		issues = nil
		return report(r)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		rows++
		if rows > run.total {
			return fmt.Errorf("file %s changed during import: more than %d rows", run.file.ID, run.total)
		}

		lead, rowIssues, err := csvimport.Transform(row).Resolve(rows, s.cfg.Coercion)
		if err != nil {
			return err
		}
		chunk = append(chunk, lead)
		issues = append(issues, rowIssues...)

		if len(chunk) == s.cfg.ChunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if rows != run.total {
		return fmt.Errorf("file %s changed during import: %d rows, expected %d", run.file.ID, rows, run.total)
	}
	return nil
}

// reportChunk advances progress and writes the per-chunk log entries.
func (s *ImportService) reportChunk(ctx context.Context, run *importRun, r chunkReport) error {
	progress := progressBatchCreated + r.done*progressInsertSpan/run.total
	if progress > progressInsertCap {
		progress = progressInsertCap
	}
	if err := s.jobs.UpdateProgress(ctx, run.job.ID, progress); err != nil {
		return err
	}

	if len(r.issues) > 0 {
		sample := r.issues
		if len(sample) > maxIssuesInLog {
			sample = sample[:maxIssuesInLog]
		}
		stored := "null"
		if s.cfg.Coercion == csvimport.PolicySentinel {
			stored = "legacy-coerced values"
		}
		s.jobLog(ctx, run.job.ID, domain.LogLevelWarning,
			fmt.Sprintf("Stored %d invalid values as %s", len(r.issues), stored),
			map[string]interface{}{"issues": sample, "total_issues": len(r.issues)})
	}

	s.jobLog(ctx, run.job.ID, domain.LogLevelInfo, fmt.Sprintf("Processed %d/%d leads", r.done, run.total), nil)
	return nil
}

// fail records err on the job, the file and the batch, then returns it.
// The bookkeeping survives cancellation of ctx.
func (s *ImportService) fail(ctx context.Context, run *importRun, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	log := s.log(ctx).WithError(cause)

	s.jobLog(ctx, run.job.ID, domain.LogLevelError, "Import failed: "+msg, nil)

	if _, err := s.jobs.Transition(ctx, run.job.ID, domain.JobStatusFailed, map[string]interface{}{
		"error_message": msg,
		"completed_at":  s.now(),
	}); err != nil {
		log.WithField("bookkeeping_error", err.Error()).Warn("Failed to mark job as failed")
	}
	if err := s.fileSvc.UpdateStatus(ctx, run.file.ID, domain.UploadStatusFailed, strPtr(msg)); err != nil {
		log.WithField("bookkeeping_error", err.Error()).Warn("Failed to mark file as failed")
	}
	if run.batchID != "" {
		if err := s.leadSvc.UpdateBatchStatus(ctx, run.batchID, domain.BatchStatusFailed, strPtr(msg)); err != nil {
			log.WithField("bookkeeping_error", err.Error()).Warn("Failed to mark batch as failed")
		}
	}
	return cause
}

// jobLog appends an entry to the job's audit log and mirrors it to the
// process log. A failed write is logged and otherwise ignored.
func (s *ImportService) jobLog(ctx context.Context, jobID string, level domain.LogLevel, message string, metadata map[string]interface{}) {
	entry := &domain.ImportJobLog{
		ID:          uuid.NewString(),
		ImportJobID: jobID,
		Level:       level,
		Message:     message,
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	log := s.log(ctx).WithField(logger.FieldJobID, jobID)
	switch level {
	case domain.LogLevelError:
		log.Error(message)
	case domain.LogLevelWarning:
		log.Warn(message)
	case domain.LogLevelDebug:
		log.Debug(message)
	default:
		log.Info(message)
	}

	if err := s.jobs.AppendLog(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to write import job log")
	}
}

// GetImportJob returns a job with its file and its most recent log entries,
// newest first.
func (s *ImportService) GetImportJob(ctx context.Context, jobID string) (*ImportJobDetail, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, notFound(err, "import job", jobID)
	}
	logs, err := s.jobs.RecentLogs(ctx, jobID, s.cfg.LogLimit)
	if err != nil {
		return nil, err
	}
	return &ImportJobDetail{ImportJob: job, Logs: logs}, nil
}

// GetJobs returns a page of jobs, newest first. A non-empty userID keeps
// jobs whose file that user uploaded.
func (s *ImportService) GetJobs(ctx context.Context, page, pageSize int, userID string) (*JobList, error) {
	page, pageSize, limit, offset := s.cfg.Paging.normalize(page, pageSize)
	jobs, total, err := s.jobs.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &JobList{Jobs: jobs, Total: total, Page: page, PageSize: pageSize}, nil
}

// JobStatusCounts returns the number of jobs per status, every status present.
func (s *ImportService) JobStatusCounts(ctx context.Context) (map[domain.JobStatus]int64, error) {
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.JobStatus]int64, 4)
	for _, st := range []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusCompleted, domain.JobStatusFailed} {
		out[st] = counts[st]
	}
	return out, nil
}
