package models

import "encoding/json"

// ChatRequest 知识库问答请求
type ChatRequest struct {
	ProjectID uint64 `json:"projectId" binding:"required"`
	Input     string `json:"input" binding:"required"` // 用户输入
	History   string `json:"history,omitempty"`        // 对话历史
}

// AnalyzeRequest 文档分析请求，fileIds 为平台上传文件ID
type AnalyzeRequest struct {
	FileIDs   []string `json:"fileIds"`
	UserID    string   `json:"userId"`
	ProjectID uint64   `json:"projectId" binding:"required"`
	AutoSave  bool     `json:"autoSave"`
}

type CancelRequest struct {
	TaskID string `json:"taskId"`
	UserID string `json:"userId,omitempty"`
}

// ClassifyRequest metadata 可以是 message_end 中的对象，也可以是其 JSON 字符串
type ClassifyRequest struct {
	Answer   string          `json:"answer"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type SaveItemsRequest struct {
	ProjectID uint64                 `json:"projectId" binding:"required"`
	Items     []ExtractedItemPayload `json:"items"`
}
