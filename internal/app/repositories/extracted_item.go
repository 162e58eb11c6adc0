package repositories

import (
	"strings"

	"gorm.io/gorm"

	"audit-agent/internal/app/models"
	"audit-agent/internal/pkg/storage"
)

// likeEscaper 关键词中的通配符按字面匹配
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

type ExtractedItemRepository struct {
	db *gorm.DB
}

func NewExtractedItemRepository(db *gorm.DB) *ExtractedItemRepository {
	if db == nil {
		db = storage.DB
	}
	return &ExtractedItemRepository{db: db}
}

// DB 事务入口
func (r *ExtractedItemRepository) DB() *gorm.DB {
	return r.db
}

func (r *ExtractedItemRepository) Create(tx *gorm.DB, item *models.ExtractedItem) error {
	if tx == nil {
		tx = r.db
	}
	return tx.Create(item).Error
}

func (r *ExtractedItemRepository) ListByFile(fileID uint64) ([]models.ExtractedItem, error) {
	var items []models.ExtractedItem
	err := r.db.Where("file_id = ?", fileID).Order("id").Find(&items).Error
	return items, err
}

func (r *ExtractedItemRepository) ListByProject(projectID uint64, limit, offset int) ([]models.ExtractedItem, error) {
	var items []models.ExtractedItem
	err := r.db.Where("project_id = ?", projectID).Order("id").Limit(limit).Offset(offset).Find(&items).Error
	return items, err
}

// Search 在议题、摘要、结论中匹配任一关键词
func (r *ExtractedItemRepository) Search(projectID uint64, keywords []string, limit int) ([]models.ExtractedItem, error) {
	var items []models.ExtractedItem
	db := r.db.Where("project_id = ?", projectID)

	var conds []string
	var args []interface{}
	for _, k := range keywords {
		if k == "" {
			continue
		}
		like := "%" + likeEscaper.Replace(k) + "%"
		conds = append(conds, "(topic LIKE ? ESCAPE '!' OR summary LIKE ? ESCAPE '!' OR conclusion LIKE ? ESCAPE '!')")
		args = append(args, like, like, like)
	}
	if len(conds) > 0 {
		db = db.Where(strings.Join(conds, " OR "), args...)
	}

	err := db.Order("id DESC").Limit(limit).Find(&items).Error
	return items, err
}
