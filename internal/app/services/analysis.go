package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/models"
	"audit-agent/internal/app/repositories"
)

var ErrAutoSaveMultipleFiles = errors.New("autoSave requires exactly one file")

// analysisPlatform 由 PlatformClient 实现
type analysisPlatform interface {
	StreamAnalysis(ctx context.Context, files []models.FileRef, user string, onEvent func(models.Event)) (string, error)
	StopGenerating(ctx context.Context, taskID, user string) bool
}

// AnalysisResult 一次分析运行的最终结果
type AnalysisResult struct {
	RunID  string                `json:"run_id"`
	TaskID string                `json:"task_id"`
	Answer string                `json:"answer"`
	Groups models.GroupedResults `json:"groups"`
	Report *SaveReport           `json:"report,omitempty"`
}

// AnalysisRun 后台分析任务句柄，调用方可以等待也可以放弃。
// 取消通过 AnalysisService.Cancel 单独发送，本地读循环直到平台关闭连接才结束。
type AnalysisRun struct {
	ID string

	taskOnce  sync.Once
	taskReady chan struct{}
	taskID    string

	done   chan struct{}
	result *AnalysisResult
	err    error
}

func newAnalysisRun(id string) *AnalysisRun {
	return &AnalysisRun{
		ID:        id,
		taskReady: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (r *AnalysisRun) setTaskID(id string) {
	r.taskOnce.Do(func() {
		r.taskID = id
		close(r.taskReady)
	})
}

// TaskID 等待首个平台任务ID；流在出现任务ID前结束时返回空串
func (r *AnalysisRun) TaskID(ctx context.Context) (string, error) {
	select {
	case <-r.taskReady:
		return r.taskID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *AnalysisRun) Done() <-chan struct{} {
	return r.done
}

// Wait 等待运行结束
func (r *AnalysisRun) Wait(ctx context.Context) (*AnalysisResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *AnalysisRun) finish(result *AnalysisResult, err error) {
	r.setTaskID("")
	r.result = result
	r.err = err
	close(r.done)
}

type taskEntry struct {
	mu   sync.Mutex
	task models.AnalysisTask
}

// AnalysisService 组织一次完整的文档分析：发起流、累积回答、分类、可选入库
type AnalysisService struct {
	platform analysisPlatform
	files    *repositories.AuditFileRepository
	items    IExtractedItem

	tasks    sync.Map // runID -> *taskEntry
	byTaskID sync.Map // 平台任务ID -> runID
}

func NewAnalysisService(platform analysisPlatform, files *repositories.AuditFileRepository, items IExtractedItem) *AnalysisService {
	return &AnalysisService{
		platform: platform,
		files:    files,
		items:    items,
	}
}

// Start 校验文件后在后台启动分析，立即返回运行句柄。
// onEvent 在后台 goroutine 中按事件到达顺序同步调用。
func (s *AnalysisService) Start(ctx context.Context, req models.AnalyzeRequest, onEvent func(models.Event)) (*AnalysisRun, error) {
	if req.AutoSave && len(req.FileIDs) != 1 {
		return nil, ErrAutoSaveMultipleFiles
	}

	var files []models.AuditFile
	if len(req.FileIDs) > 0 {
		found, err := s.files.ListByFileIDs(req.ProjectID, req.FileIDs)
		if err != nil {
			return nil, fmt.Errorf("查询文件失败: %w", err)
		}
		if missing := missingFileIDs(req.FileIDs, found); len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrFileNotOwned, strings.Join(missing, ","))
		}
		files = found
	}

	refs := make([]models.FileRef, 0, len(files))
	for i := range files {
		refs = append(refs, files[i].FileRef())
	}

	run := newAnalysisRun(uuid.New().String())
	entry := &taskEntry{task: models.AnalysisTask{
		ID:        run.ID,
		Status:    models.TaskStatusPending,
		FileIDs:   req.FileIDs,
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		StartedAt: time.Now(),
	}}
	s.tasks.Store(run.ID, entry)

	go s.execute(ctx, run, entry, refs, files, req, onEvent)
	return run, nil
}

func (s *AnalysisService) execute(ctx context.Context, run *AnalysisRun, entry *taskEntry, refs []models.FileRef,
	files []models.AuditFile, req models.AnalyzeRequest, onEvent func(models.Event)) {
	var (
		answer   strings.Builder
		metadata json.RawMessage
		failure  string
		result   = &AnalysisResult{RunID: run.ID, Groups: models.NewGroupedResults()}
	)

	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Sprintf("分析任务异常: %v", r)
			log.Errorf("[Run %s] %s", run.ID, failure)
		}
		s.finishTask(entry, failure)
		var err error
		if failure != "" {
			err = errors.New(failure)
		}
		result.Answer = answer.String()
		run.finish(result, err)
	}()

	s.updateTask(entry, func(t *models.AnalysisTask) { t.Status = models.TaskStatusRunning })
	log.Infof("[Run %s] analysis started, %d files", run.ID, len(refs))

	handler := func(e models.Event) {
		if id := models.EventTaskID(e); id != "" && result.TaskID == "" {
			result.TaskID = id
			s.bindTaskID(entry, id)
			run.setTaskID(id)
		}
		switch v := e.(type) {
		case models.MessageEvent:
			answer.WriteString(v.Answer)
		case models.MessageEndEvent:
			if len(v.Metadata) > 0 {
				metadata = v.Metadata
			}
		case models.ErrorEvent:
			if failure == "" {
				failure = v.Message
			}
		case models.DoneEvent:
			if failure == "" {
				s.complete(ctx, result, answer.String(), metadata, files, req, onEvent, &failure)
			}
		}
		onEvent(e)
	}

	if _, err := s.platform.StreamAnalysis(ctx, refs, req.UserID, handler); err != nil && failure == "" {
		failure = err.Error()
	}
}

// complete 在 done 事件之前执行分类与入库，并推送 result 事件
func (s *AnalysisService) complete(ctx context.Context, result *AnalysisResult, answer string, metadata json.RawMessage,
	files []models.AuditFile, req models.AnalyzeRequest, onEvent func(models.Event), failure *string) {
	result.Groups = Classify(answer, metadata)
	saved := 0

	if req.AutoSave && len(files) == 1 && result.Groups.Total() > 0 {
		items := result.Groups.Items()
		inputs := make([]models.ItemInput, 0, len(items))
		for _, item := range items {
			inputs = append(inputs, models.ItemInput{FileID: files[0].ID, ExtractedItemPayload: item})
		}
		report, err := s.items.SaveItems(ctx, req.ProjectID, inputs)
		result.Report = report
		if report != nil {
			saved = len(report.Saved)
		}
		if err != nil {
			*failure = err.Error()
			onEvent(models.ErrorEvent{TaskID: result.TaskID, Message: "保存分析结果失败: " + err.Error()})
		}
	}

	onEvent(models.ResultEvent{TaskID: result.TaskID, Groups: result.Groups, Saved: saved})
}

// Cancel 请求平台停止任务；不会中断本地正在读取的流。
// 任务不在本进程中时使用调用方给出的 user。
func (s *AnalysisService) Cancel(ctx context.Context, taskID, user string) bool {
	if taskID == "" {
		return false
	}
	var entry *taskEntry
	if runID, ok := s.byTaskID.Load(taskID); ok {
		if v, ok := s.tasks.Load(runID); ok {
			entry = v.(*taskEntry)
			entry.mu.Lock()
			if entry.task.UserID != "" {
				user = entry.task.UserID
			}
			entry.mu.Unlock()
		}
	}

	if !s.platform.StopGenerating(ctx, taskID, user) {
		return false
	}
	if entry != nil {
		s.updateTask(entry, func(t *models.AnalysisTask) { t.Status = models.TaskStatusCancelled })
	}
	return true
}

// GetTask 按平台任务ID或运行ID查询仍在进行中的任务
func (s *AnalysisService) GetTask(id string) (*models.AnalysisTask, bool) {
	runID := id
	if v, ok := s.byTaskID.Load(id); ok {
		runID = v.(string)
	}
	v, ok := s.tasks.Load(runID)
	if !ok {
		return nil, false
	}
	entry := v.(*taskEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	task := entry.task
	return &task, true
}

func (s *AnalysisService) updateTask(entry *taskEntry, fn func(t *models.AnalysisTask)) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.task)
}

func (s *AnalysisService) bindTaskID(entry *taskEntry, taskID string) {
	s.updateTask(entry, func(t *models.AnalysisTask) { t.TaskID = taskID })
	s.byTaskID.Store(taskID, entry.task.ID)
}

// finishTask 记录最终状态后从内存中移除
func (s *AnalysisService) finishTask(entry *taskEntry, failure string) {
	var task models.AnalysisTask
	s.updateTask(entry, func(t *models.AnalysisTask) {
		now := time.Now()
		t.EndedAt = &now
		switch {
		case t.Status == models.TaskStatusCancelled:
		case failure != "":
			t.Status = models.TaskStatusFailed
			t.Error = failure
		default:
			t.Status = models.TaskStatusCompleted
		}
		task = *t
	})
	log.Infof("[Run %s] analysis %s, task %s", task.ID, task.Status, task.TaskID)
	s.tasks.Delete(task.ID)
	if task.TaskID != "" {
		s.byTaskID.Delete(task.TaskID)
	}
}

func missingFileIDs(want []string, found []models.AuditFile) []string {
	have := make(map[string]struct{}, len(found))
	for _, f := range found {
		have[f.FileID] = struct{}{}
	}
	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
