package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"audit-agent/internal/app/models"
	"audit-agent/internal/app/repositories"
	"audit-agent/internal/pkg/lock"
	"audit-agent/pkg/util"
)

var (
	ErrFileNotOwned    = errors.New("file not found or not owned by project")
	ErrInvalidCategory = errors.New("unknown event category")
)

type IExtractedItem interface {
	SaveItems(ctx context.Context, projectID uint64, items []models.ItemInput) (*SaveReport, error)
	ListGroupedByFile(fileID uint64) (models.GroupedResults, error)
	ListByProject(projectID uint64, limit, offset int) ([]models.ExtractedItem, error)
}

// SaveReport 逐条入库结果；FailedIndex 为 -1 表示全部成功
type SaveReport struct {
	Saved       []models.ExtractedItem `json:"saved"`
	FailedIndex int                    `json:"failedIndex"`
	Error       string                 `json:"error,omitempty"`
}

type ExtractedItemService struct {
	files  *repositories.AuditFileRepository
	items  *repositories.ExtractedItemRepository
	locker lock.Locker
}

func NewExtractedItemService(files *repositories.AuditFileRepository, items *repositories.ExtractedItemRepository, locker lock.Locker) *ExtractedItemService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &ExtractedItemService{files: files, items: items, locker: locker}
}

// SaveItems 按顺序逐条写入，每条一个事务（校验归属、插入、标记文件已分析）。
// 遇到第一条失败即停止，之前已写入的不回滚，report 中列出已保存的记录。
func (s *ExtractedItemService) SaveItems(ctx context.Context, projectID uint64, items []models.ItemInput) (*SaveReport, error) {
	report := &SaveReport{Saved: make([]models.ExtractedItem, 0, len(items)), FailedIndex: -1}
	if len(items) == 0 {
		return report, nil
	}

	unlock, err := s.lockFiles(ctx, items)
	if err != nil {
		report.FailedIndex = 0
		report.Error = err.Error()
		return report, fmt.Errorf("获取文件锁失败: %w", err)
	}
	defer unlock()

	for i, in := range items {
		row, err := s.saveOne(projectID, in)
		if err != nil {
			report.FailedIndex = i
			report.Error = err.Error()
			log.Warnf("save extracted item #%d of file %d failed: %v (saved %d)", i, in.FileID, err, len(report.Saved))
			return report, fmt.Errorf("第%d条事项入库失败: %w", i+1, err)
		}
		report.Saved = append(report.Saved, *row)
	}
	log.Infof("saved %d extracted items for project %d", len(report.Saved), projectID)
	return report, nil
}

func (s *ExtractedItemService) saveOne(projectID uint64, in models.ItemInput) (*models.ExtractedItem, error) {
	category, ok := models.ParseEventCategory(in.EventCategory)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, in.EventCategory)
	}
	row := &models.ExtractedItem{
		FileID:         in.FileID,
		ProjectID:      projectID,
		EventCategory:  category,
		MeetingTime:    in.MeetingTime,
		DocumentNumber: in.DocumentNumber,
		Topic:          in.Topic,
		Conclusion:     in.Conclusion,
		Summary:        in.Summary,
		AmountInvolved: util.NormalizeAmount(string(in.AmountInvolved)),
		Departments:    datatypes.JSONSlice[string](nonNil(in.Departments)),
		Personnel:      datatypes.JSONSlice[string](nonNil(in.Personnel)),
		DecisionBasis:  in.DecisionBasis,
		OriginalText:   in.OriginalText,
	}

	err := s.items.DB().Transaction(func(tx *gorm.DB) error {
		if _, err := s.files.GetOwned(tx, in.FileID, projectID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: file %d, project %d", ErrFileNotOwned, in.FileID, projectID)
			}
			return err
		}
		if err := s.items.Create(tx, row); err != nil {
			return err
		}
		return s.files.MarkAnalyzed(tx, in.FileID)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// lockFiles 按文件ID升序加锁，避免不同批次互相等待
func (s *ExtractedItemService) lockFiles(ctx context.Context, items []models.ItemInput) (func(), error) {
	seen := make(map[uint64]struct{})
	ids := make([]uint64, 0, 1)
	for _, in := range items {
		if _, ok := seen[in.FileID]; !ok {
			seen[in.FileID] = struct{}{}
			ids = append(ids, in.FileID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unlocks := make([]func(), 0, len(ids))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, id := range ids {
		unlock, err := s.locker.Lock(ctx, fmt.Sprintf("audit:file:%d:items", id))
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (s *ExtractedItemService) ListGroupedByFile(fileID uint64) (models.GroupedResults, error) {
	rows, err := s.items.ListByFile(fileID)
	if err != nil {
		return models.NewGroupedResults(), err
	}
	payloads := make([]models.ExtractedItemPayload, 0, len(rows))
	for i := range rows {
		payloads = append(payloads, rows[i].Payload())
	}
	return ClassifyItems(payloads), nil
}

func (s *ExtractedItemService) ListByProject(projectID uint64, limit, offset int) ([]models.ExtractedItem, error) {
	return s.items.ListByProject(projectID, limit, offset)
}

func nonNil(l models.StringList) []string {
	if l == nil {
		return []string{}
	}
	return l
}
