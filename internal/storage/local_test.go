package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	body := "profileUrl,profileName\nhttps://instagram.com/a,a\n"
	require.NoError(t, store.Upload(ctx, "uploads/a.csv", strings.NewReader(body), int64(len(body)), "text/csv"))

	exists, err := store.Exists(ctx, "uploads/a.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Download(ctx, "uploads/a.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, store.Delete(ctx, "uploads/a.csv"))
	exists, err = store.Exists(ctx, "uploads/a.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	// deleting twice is fine
	assert.NoError(t, store.Delete(ctx, "uploads/a.csv"))
}

func TestLocalStorageDownloadMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "uploads/missing.csv")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"../outside.csv", "/etc/passwd", ".."} {
		err := store.Upload(context.Background(), key, strings.NewReader("x"), 1, "text/plain")
		assert.Error(t, err, key)
	}
}

func TestLocalStorageSizeMismatch(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	err = store.Upload(context.Background(), "uploads/short.csv", strings.NewReader("abc"), 10, "text/csv")
	assert.Error(t, err)

	exists, err := store.Exists(context.Background(), "uploads/short.csv")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageURL(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "https://cdn.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/uploads/a.csv", store.GetURL("uploads/a.csv"))
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://abc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-east-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
	assert.Equal(t, StorageTypeS3, detectStorageType(""))
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/"))
	assert.Equal(t, "abc.r2.cloudflarestorage.com", normalizeEndpoint("https://abc.r2.cloudflarestorage.com/bucket"))
}
