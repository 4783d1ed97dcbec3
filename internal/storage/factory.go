package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/leadimport/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// S3-flavoured backends get their bucket ensured before returning.
// Parameters:
//   - ctx: context for the bucket check.
//   - cfg: storage configuration.
//
// Returns:
//   - ObjectStorage: initialized storage backend.
//   - error: non-nil if the backend cannot be created.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	storeType := StorageType(strings.ToLower(cfg.Type))

	if storeType == StorageTypeLocal {
		return NewLocalStorage(cfg.LocalRoot, cfg.PublicURL)
	}

	// Auto-detect S3 flavour from the endpoint when only "s3" is configured
	if storeType == "" || storeType == StorageTypeS3 {
		storeType = detectStorageType(cfg.Endpoint)
	}

	s3Store, err := NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s3Store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return s3Store, nil
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "":
		return StorageTypeS3
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
