package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timmy/leadimport/internal/config"
	"github.com/timmy/leadimport/internal/domain"
	"github.com/timmy/leadimport/internal/logger"
	"github.com/timmy/leadimport/internal/repository"
	"github.com/timmy/leadimport/internal/storage"
	"github.com/timmy/leadimport/internal/worker"
	"gorm.io/gorm"
)

var errInjected = errors.New("injected insert failure")

type harness struct {
	db        *gorm.DB
	store     *storage.LocalStorage
	storeRoot string
	fileRepo  *repository.FileRepository
	jobRepo   *repository.JobRepository
	files     *FileService
	leads     *LeadService
	imports   *ImportService
	scheduler worker.Scheduler
}

func newHarness(t *testing.T, cfg ImportConfig, scheduler worker.Scheduler) *harness {
	t.Helper()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "leads.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	storeRoot := t.TempDir()
	store, err := storage.NewLocalStorage(storeRoot, "")
	require.NoError(t, err)

	if scheduler == nil {
		scheduler = worker.NewInMemoryScheduler(0)
	}

	log := logger.GetDefault()
	h := &harness{
		db:        db,
		store:     store,
		storeRoot: storeRoot,
		fileRepo:  repository.NewFileRepository(db),
		jobRepo:   repository.NewJobRepository(db),
		scheduler: scheduler,
	}
	h.files = NewFileService(h.fileRepo, store, log, &FileServiceConfig{KeyPrefix: "uploads"})
	h.leads = NewLeadService(repository.NewBatchRepository(db), repository.NewLeadRepository(db), log, DefaultPaging)
	h.imports = NewImportService(db, h.fileRepo, h.jobRepo, h.files, h.leads, scheduler, log, &cfg)
	return h
}

func (h *harness) upload(t *testing.T, content string) *domain.FileUpload {
	t.Helper()
	file, err := h.files.Store(context.Background(), strings.NewReader(content), "leads.csv", "text/csv", int64(len(content)), "user-1")
	require.NoError(t, err)
	return file
}

// importAndWait starts an import on the in-memory scheduler and waits for it.
func (h *harness) importAndWait(t *testing.T, fileID string) *ImportJobDetail {
	t.Helper()
	job, err := h.imports.StartImport(context.Background(), fileID, "user-1")
	require.NoError(t, err)

	s, ok := h.scheduler.(*worker.InMemoryScheduler)
	require.True(t, ok, "importAndWait needs the in-memory scheduler")
	s.Wait()

	detail, err := h.imports.GetImportJob(context.Background(), job.ID)
	require.NoError(t, err)
	return detail
}

func (h *harness) countLeads(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&domain.InstagramLead{}).Count(&n).Error)
	return n
}

func (h *harness) countBatches(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&domain.ApolloBatch{}).Count(&n).Error)
	return n
}

// leadsCSV renders n valid lead rows.
func leadsCSV(n int) string {
	var b strings.Builder
	b.WriteString("profileUrl,profileName,fullName,followersCount,isVerified,website,mailFound\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "https://instagram.com/user%d,user%d,User %d,%d,TRUE,,user%d@example.com\n", i, i, i, i*10, i)
	}
	return b.String()
}

// leadInsertCounter counts INSERTs into instagram_leads and fails every call
// after the first failAfter ones. A negative failAfter never fails.
type leadInsertCounter struct {
	calls     int32
	failAfter int32
}

func (c *leadInsertCounter) Calls() int {
	return int(atomic.LoadInt32(&c.calls))
}

func countLeadInserts(t *testing.T, db *gorm.DB, failAfter int) *leadInsertCounter {
	t.Helper()
	c := &leadInsertCounter{failAfter: int32(failAfter)}
	name := "test:lead_inserts:" + uuid.NewString()
	err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != "instagram_leads" {
			return
		}
		n := atomic.AddInt32(&c.calls, 1)
		if c.failAfter >= 0 && n > c.failAfter {
			tx.AddError(errInjected)
		}
	})
	require.NoError(t, err)
	return c
}

// recordProgress captures every progress value written to import_jobs.
func recordProgress(t *testing.T, db *gorm.DB) func() []int {
	t.Helper()
	var (
		mu     sync.Mutex
		values []int
	)
	name := "test:progress:" + uuid.NewString()
	err := db.Callback().Update().After("gorm:update").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != "import_jobs" || tx.Error != nil || tx.RowsAffected == 0 {
			return
		}
		updates, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok {
			return
		}
		if p, ok := updates["progress"].(int); ok {
			mu.Lock()
			values = append(values, p)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	return func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), values...)
	}
}

// manualScheduler keeps submitted tasks so tests can run them explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []worker.Task
}

type manualHandle struct{ done chan struct{} }

func (h manualHandle) ID() string            { return "manual" }
func (h manualHandle) Done() <-chan struct{} { return h.done }
func (h manualHandle) Err() error            { return nil }

func (m *manualScheduler) Submit(name string, task worker.Task) (worker.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return manualHandle{done: make(chan struct{})}, nil
}

func (m *manualScheduler) Shutdown(ctx context.Context) error { return nil }

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// closedScheduler refuses every task.
type closedScheduler struct{}

func (closedScheduler) Submit(string, worker.Task) (worker.Handle, error) {
	return nil, worker.ErrSchedulerClosed
}

func (closedScheduler) Shutdown(context.Context) error { return nil }
