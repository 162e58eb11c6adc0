package models

import "encoding/json"

// 平台流式事件名
const (
	EventMessage      = "message"
	EventAgentMessage = "agent_message"
	EventMessageEnd   = "message_end"
	EventError        = "error"
	EventDone         = "done"
	EventResult       = "result"
)

// Event 解码后的流式事件，按 event 字段区分具体类型
type Event interface {
	EventName() string
}

// RawEvent 平台 data: 行的原始载荷
type RawEvent struct {
	Event          string          `json:"event"`
	TaskID         string          `json:"task_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Answer         string          `json:"answer,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Status         int             `json:"status,omitempty"`
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// MessageEvent 增量回答片段
type MessageEvent struct {
	Name           string `json:"-"`
	TaskID         string `json:"task_id"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Answer         string `json:"answer"`
}

func (e MessageEvent) EventName() string {
	if e.Name == "" {
		return EventMessage
	}
	return e.Name
}

// MessageEndEvent 回答结束，metadata 可能携带结构化结果
type MessageEndEvent struct {
	TaskID    string          `json:"task_id"`
	MessageID string          `json:"message_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func (MessageEndEvent) EventName() string { return EventMessageEnd }

type ErrorEvent struct {
	TaskID  string `json:"task_id,omitempty"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (ErrorEvent) EventName() string { return EventError }

// DoneEvent 流结束，每个流只出现一次
type DoneEvent struct{}

func (DoneEvent) EventName() string { return EventDone }

// ResultEvent 分类（及可选入库）完成后由服务端追加
type ResultEvent struct {
	TaskID string         `json:"task_id,omitempty"`
	Groups GroupedResults `json:"groups"`
	Saved  int            `json:"saved"`
}

func (ResultEvent) EventName() string { return EventResult }

// GenericEvent 其他事件（ping、workflow_started 等）原样透传
type GenericEvent struct {
	Name   string          `json:"-"`
	TaskID string          `json:"task_id,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

func (e GenericEvent) EventName() string { return e.Name }

// ToEvent 将原始载荷转换为具体事件
func (r RawEvent) ToEvent(raw []byte) Event {
	switch r.Event {
	case EventMessage, EventAgentMessage:
		return MessageEvent{
			Name:           r.Event,
			TaskID:         r.TaskID,
			MessageID:      r.MessageID,
			ConversationID: r.ConversationID,
			Answer:         r.Answer,
		}
	case EventMessageEnd:
		return MessageEndEvent{TaskID: r.TaskID, MessageID: r.MessageID, Metadata: r.Metadata}
	case EventError:
		return ErrorEvent{TaskID: r.TaskID, Status: r.Status, Code: r.Code, Message: r.Message}
	case EventDone:
		return DoneEvent{}
	default:
		return GenericEvent{Name: r.Event, TaskID: r.TaskID, Raw: append(json.RawMessage(nil), raw...)}
	}
}

// EventTaskID 取事件中的平台任务ID
func EventTaskID(e Event) string {
	switch v := e.(type) {
	case MessageEvent:
		return v.TaskID
	case MessageEndEvent:
		return v.TaskID
	case ErrorEvent:
		return v.TaskID
	case GenericEvent:
		return v.TaskID
	case ResultEvent:
		return v.TaskID
	}
	return ""
}
