package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"github.com/timmy/leadimport/internal/storage"
)

// FileService keeps the registry of uploaded files. Bytes live in object
// storage, metadata in the database.
type FileService struct {
	files     *repository.FileRepository
	storage   storage.ObjectStorage
	logger    *logger.Logger
	keyPrefix string
	paging    Paging
	now       func() time.Time
}

// FileServiceConfig holds configuration for the file service.
type FileServiceConfig struct {
	KeyPrefix string
	Paging    Paging
}

// FileList is one page of file uploads.
type FileList struct {
	Files    []domain.FileUpload `json:"files"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// NewFileService creates a new file service.
func NewFileService(
	files *repository.FileRepository,
	objectStorage storage.ObjectStorage,
	log *logger.Logger,
	cfg *FileServiceConfig,
) *FileService {
	if cfg == nil {
		cfg = &FileServiceConfig{}
	}
	return &FileService{
		files:     files,
		storage:   objectStorage,
		logger:    log,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
		paging:    cfg.Paging,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *FileService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Store uploads r and registers it as a PENDING file owned by ownerID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - r: file content, exactly size bytes.
//   - originalName: client-supplied file name, kept for display.
//   - mimeType: content type stored with the object.
//   - size: content length in bytes.
//   - ownerID: uploading user.
// Returns:
//   - *domain.FileUpload: the registered file.
//   - error: non-nil if the upload or the insert fails.
func (s *FileService) Store(ctx context.Context, r io.Reader, originalName, mimeType string, size int64, ownerID string) (*domain.FileUpload, error) {
	id := uuid.NewString()
	fileName := id + strings.ToLower(filepath.Ext(originalName))
	key := fileName
	if s.keyPrefix != "" {
		key = path.Join(s.keyPrefix, fileName)
	}

	if err := s.storage.Upload(ctx, key, r, size, mimeType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	file := &domain.FileUpload{
		ID:           id,
		FileName:     fileName,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         size,
		Path:         key,
		Status:       domain.UploadStatusPending,
		UserID:       ownerID,
	}
	if err := s.files.Create(ctx, file); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log(ctx).WithError(delErr).WithField("key", key).Warn("Failed to remove orphaned upload")
		}
		return nil, &domain.PersistenceError{Op: "register file", Err: err}
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldFileID: file.ID,
		logger.FieldSize:   size,
		logger.FieldUserID: ownerID,
	}).Info("File stored")
	return file, nil
}

// GetByID returns a file upload or domain.ErrNotFound.
func (s *FileService) GetByID(ctx context.Context, id string) (*domain.FileUpload, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "file", id)
	}
	return file, nil
}

// UpdateStatus sets a file's status. A nil errMsg leaves the stored message
// unchanged. Re-applying the current terminal status only refreshes
// processed_at.
func (s *FileService) UpdateStatus(ctx context.Context, id string, status domain.UploadStatus, errMsg *string) error {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	if status.IsTerminal() && current.Status == status {
		return s.files.TouchProcessedAt(ctx, id, now)
	}
	if err := s.files.UpdateStatus(ctx, id, status, errMsg, now); err != nil {
		return notFound(err, "file", id)
	}
	return nil
}

// Open streams a file's bytes from object storage. The caller closes the reader.
func (s *FileService) Open(ctx context.Context, file *domain.FileUpload) (io.ReadCloser, error) {
	rc, err := s.storage.Download(ctx, file.Path)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", file.ID, err)
	}
	return rc, nil
}

// Delete removes the stored bytes, best effort, then the registry row and
// its job history. A file that is being imported cannot be deleted.
func (s *FileService) Delete(ctx context.Context, id string) error {
	file, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if file.Status == domain.UploadStatusProcessing {
		return fmt.Errorf("file %s is being imported: %w", id, domain.ErrConflict)
	}

	if err := s.storage.Delete(ctx, file.Path); err != nil {
		s.log(ctx).WithError(err).WithField(logger.FieldFileID, id).Warn("Failed to delete stored object")
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return notFound(err, "file", id)
	}
	return nil
}

// List returns a page of uploads, newest first. An empty userID lists all users.
func (s *FileService) List(ctx context.Context, userID string, page, pageSize int) (*FileList, error) {
	page, pageSize, limit, offset := s.paging.normalize(page, pageSize)
	files, total, err := s.files.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &FileList{Files: files, Total: total, Page: page, PageSize: pageSize}, nil
}
