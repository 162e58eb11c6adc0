package repositories

import (
	"gorm.io/gorm"

	"audit-agent/internal/app/models"
	"audit-agent/internal/pkg/storage"
)

type AuditFileRepository struct {
	db *gorm.DB
}

// NewAuditFileRepository db 为空时使用全局连接
func NewAuditFileRepository(db *gorm.DB) *AuditFileRepository {
	if db == nil {
		db = storage.DB
	}
	return &AuditFileRepository{db: db}
}

// Create 创建文件记录
func (r *AuditFileRepository) Create(file *models.AuditFile) error {
	if err := file.Validate(); err != nil {
		return err
	}
	return r.db.Create(file).Error
}

// GetByID 根据ID获取文件记录
func (r *AuditFileRepository) GetByID(id uint64) (*models.AuditFile, error) {
	var file models.AuditFile
	err := r.db.Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// GetOwned 获取属于指定项目的文件
func (r *AuditFileRepository) GetOwned(tx *gorm.DB, id, projectID uint64) (*models.AuditFile, error) {
	if tx == nil {
		tx = r.db
	}
	var file models.AuditFile
	err := tx.Where("id = ? AND project_id = ?", id, projectID).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListByFileIDs 按平台文件ID查询项目内的文件，结果顺序与入参一致
func (r *AuditFileRepository) ListByFileIDs(projectID uint64, fileIDs []string) ([]models.AuditFile, error) {
	var files []models.AuditFile
	if err := r.db.Where("project_id = ? AND file_id IN ?", projectID, fileIDs).Find(&files).Error; err != nil {
		return nil, err
	}
	byFileID := make(map[string]models.AuditFile, len(files))
	for _, f := range files {
		byFileID[f.FileID] = f
	}
	ordered := make([]models.AuditFile, 0, len(files))
	for _, id := range fileIDs {
		if f, ok := byFileID[id]; ok {
			ordered = append(ordered, f)
			delete(byFileID, id)
		}
	}
	return ordered, nil
}

func (r *AuditFileRepository) ListByCont(file models.AuditFile, limit, offset int) ([]models.AuditFile, error) {
	var files []models.AuditFile
	db := r.db

	if file.ProjectID != 0 {
		db = db.Where("project_id = ?", file.ProjectID)
	}
	if file.FileType != "" {
		db = db.Where("file_type = ?", file.FileType)
	}
	if file.FileName != "" {
		db = db.Where("file_name LIKE ?", "%"+file.FileName+"%")
	}
	if file.FileID != "" {
		db = db.Where("file_id = ?", file.FileID)
	}

	err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&files).Error
	return files, err
}

// MarkAnalyzed 标记文件已完成分析
func (r *AuditFileRepository) MarkAnalyzed(tx *gorm.DB, id uint64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.Model(&models.AuditFile{}).Where("id = ?", id).Update("is_analyzed", true).Error
}

// Delete 在同一事务中删除文件及其抽取的事项
func (r *AuditFileRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&models.ExtractedItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.AuditFile{}).Error
	})
}
