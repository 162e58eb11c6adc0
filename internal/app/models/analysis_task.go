package models

import "time"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// AnalysisTask 只保存在进程内存中，任务结束后移除
type AnalysisTask struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id,omitempty"` // 平台任务ID
	Status    TaskStatus `json:"status"`
	FileIDs   []string   `json:"file_ids"`
	UserID    string     `json:"user_id"`
	ProjectID uint64     `json:"project_id"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
