package services

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"audit-agent/internal/app/models"
	"audit-agent/internal/app/repositories"
	"audit-agent/internal/pkg/lock"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	// 每个连接是独立的内存库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.AuditFile{}, &models.ExtractedItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testStore struct {
	db    *gorm.DB
	files *repositories.AuditFileRepository
	items *repositories.ExtractedItemRepository
	svc   *ExtractedItemService
}

func newTestStore(t *testing.T) *testStore {
	db := newTestDB(t)
	files := repositories.NewAuditFileRepository(db)
	items := repositories.NewExtractedItemRepository(db)
	return &testStore{
		db:    db,
		files: files,
		items: items,
		svc:   NewExtractedItemService(files, items, lock.NewLocalLocker()),
	}
}

func (s *testStore) addFile(t *testing.T, projectID uint64, fileID string) *models.AuditFile {
	t.Helper()
	f := &models.AuditFile{
		ProjectID: projectID,
		FileID:    fileID,
		FileName:  fileID + ".pdf",
		FileType:  models.FileTypeMinutes,
	}
	if err := s.files.Create(f); err != nil {
		t.Fatalf("create file: %v", err)
	}
	return f
}

func (s *testStore) countItems(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := s.db.Model(&models.ExtractedItem{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}
