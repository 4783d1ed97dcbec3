package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/leadimport/internal/config"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"github.com/timmy/leadimport/internal/service"
	"github.com/timmy/leadimport/internal/storage"
	"github.com/timmy/leadimport/internal/worker"
)

type testServer struct {
	router    *gin.Engine
	scheduler *worker.InMemoryScheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "api.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := storage.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	log := logger.GetDefault()
	fileRepo := repository.NewFileRepository(db)
	jobRepo := repository.NewJobRepository(db)
	scheduler := worker.NewInMemoryScheduler(0)

	files := service.NewFileService(fileRepo, store, log, &service.FileServiceConfig{KeyPrefix: "uploads"})
	leads := service.NewLeadService(repository.NewBatchRepository(db), repository.NewLeadRepository(db), log, service.DefaultPaging)
	imports := service.NewImportService(db, fileRepo, jobRepo, files, leads, scheduler, log, &service.ImportConfig{})

	router := SetupRouter(&Services{DB: db, Files: files, Leads: leads, Imports: imports},
		&config.ServerConfig{Mode: "test", CORS: config.CORSConfig{AllowAllOrigins: true}},
		1<<20, log)
	return &testServer{router: router, scheduler: scheduler}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) uploadCSV(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestUploadImportAndQuery(t *testing.T) {
	s := newTestServer(t)
	csv := "profileUrl,profileName,followersCount,isBusinessAccount\n" +
		"https://instagram.com/a,alpha,300,TRUE\n" +
		"https://instagram.com/b,beta,100,FALSE\n"

	w := s.uploadCSV(t, "leads.csv", csv)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	file := decode[domain.FileUpload](t, w)
	assert.Equal(t, domain.UploadStatusPending, file.Status)
	assert.Equal(t, "user-1", file.UserID)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(`{"file_id":"`+file.ID+`"}`)))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := decode[domain.ImportJob](t, w)
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	s.scheduler.Wait()

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+job.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[service.ImportJobDetail](t, w)
	assert.Equal(t, domain.JobStatusCompleted, detail.Status)
	assert.Equal(t, 100, detail.Progress)
	require.NotEmpty(t, detail.Logs)
	require.NotNil(t, detail.BatchID)

	// same file again
	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(`{"file_id":"`+file.ID+`"}`)))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+*detail.BatchID+"/leads", nil))
	require.Equal(t, http.StatusOK, w.Code)
	leads := decode[service.LeadList](t, w)
	require.Len(t, leads.Leads, 2)
	assert.Equal(t, "alpha", leads.Leads[0].ProfileName)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/leads?is_business_account=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[service.LeadList](t, w).Total)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/leads/"+leads.Leads[1].ID+"/status", bytes.NewBufferString(`{"status":"CONTACTED","notes":"dm sent"}`))
	w = s.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.LeadStatusContacted, decode[domain.InstagramLead](t, w).Status)

	req = httptest.NewRequest(http.MethodPatch, "/api/v1/leads/"+leads.Leads[1].ID+"/status", bytes.NewBufferString(`{"status":"LOST"}`))
	assert.Equal(t, http.StatusBadRequest, s.do(t, req).Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]map[string]float64](t, w)
	assert.Equal(t, 1.0, stats["leads"]["CONTACTED"])
	assert.Equal(t, 1.0, stats["jobs"]["COMPLETED"])
	assert.Equal(t, 1.0, stats["batches"]["COMPLETED"])
	assert.Equal(t, 50.0, stats["quality"]["business_percentage"])
	assert.Equal(t, 0.0, stats["quality"]["with_email_percentage"])
	assert.Equal(t, map[string]float64{
		"total_leads":        2,
		"total_batches":      1,
		"total_imports":      1,
		"recently_converted": 0,
	}, stats["summary"])

	w = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/batches/"+*detail.BatchID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+*detail.BatchID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.uploadCSV(t, "leads.txt", "a,b\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := bytes.Repeat([]byte("x"), 2<<20)
	w = s.uploadCSV(t, "big.csv", string(big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing user header")
}

func TestStartImportErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(`{"file_id":"nope"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFailedImportIsVisible(t *testing.T) {
	s := newTestServer(t)

	w := s.uploadCSV(t, "bad.csv", "profileUrl\nhttps://instagram.com/a\n")
	require.Equal(t, http.StatusCreated, w.Code)
	file := decode[domain.FileUpload](t, w)

	w = s.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/imports", bytes.NewBufferString(`{"file_id":"`+file.ID+`"}`)))
	require.Equal(t, http.StatusAccepted, w.Code)
	job := decode[domain.ImportJob](t, w)
	s.scheduler.Wait()

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+job.ID, nil))
	detail := decode[service.ImportJobDetail](t, w)
	assert.Equal(t, domain.JobStatusFailed, detail.Status)
	require.NotNil(t, detail.ErrorMessage)
	assert.Contains(t, *detail.ErrorMessage, "profileName")

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+file.ID, nil))
	assert.Equal(t, domain.UploadStatusFailed, decode[domain.FileUpload](t, w).Status)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/imports?user_id=user-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), decode[service.JobList](t, w).Total)

	require.NoError(t, s.scheduler.Shutdown(context.Background()))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type endless struct{}

func (endless) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

func TestUploadStopsReadingPastLimit(t *testing.T) {
	s := newTestServer(t)

	prefix := "--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"big.csv\"\r\n" +
		"Content-Type: text/csv\r\n\r\n"
	body := &countingReader{r: io.MultiReader(strings.NewReader(prefix), io.LimitReader(endless{}, 64<<20))}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.ContentLength = -1
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	w := s.do(t, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.LessOrEqual(t, body.n, int64(1<<20+64<<10+1), "body read beyond the cap")
}

func TestListHugePageNumber(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/v1/leads?page=2147483647&page_size=100",
		"/api/v1/imports?page=9223372036854775807",
		"/api/v1/batches?page=99999999999999999999",
	} {
		w := s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
