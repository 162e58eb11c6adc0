package util

import (
	"encoding/json"
	"fmt"
	"net/http"

	"audit-agent/internal/app/models"
)

// WriteEvent 将事件扁平化为带 event 字段的 JSON 写出
func WriteEvent(w http.ResponseWriter, e models.Event) error {
	var event map[string]interface{}

	switch v := e.(type) {
	case models.MessageEvent:
		event = map[string]interface{}{
			"task_id": v.TaskID,
			"answer":  v.Answer,
		}
		if v.MessageID != "" {
			event["message_id"] = v.MessageID
		}
		if v.ConversationID != "" {
			event["conversation_id"] = v.ConversationID
		}
	case models.MessageEndEvent:
		event = map[string]interface{}{
			"task_id": v.TaskID,
		}
		if len(v.Metadata) > 0 {
			event["metadata"] = v.Metadata
		}
	case models.ErrorEvent:
		event = map[string]interface{}{
			"message": v.Message,
		}
		if v.TaskID != "" {
			event["task_id"] = v.TaskID
		}
		if v.Status != 0 {
			event["status"] = v.Status
		}
		if v.Code != "" {
			event["code"] = v.Code
		}
	case models.DoneEvent:
		event = map[string]interface{}{}
	case models.ResultEvent:
		event = map[string]interface{}{
			"task_id": v.TaskID,
			"groups":  v.Groups,
			"saved":   v.Saved,
		}
	case models.GenericEvent:
		// 保留平台原始字段
		event = map[string]interface{}{}
		if len(v.Raw) > 0 {
			if err := json.Unmarshal(v.Raw, &event); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported event type: %T", e)
	}
	event["event"] = e.EventName()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "data: %s\n\n", bytes)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// WriteAppendText 问答增量文本
func WriteAppendText(w http.ResponseWriter, text string) error {
	bytes, err := json.Marshal(map[string]string{"type": "append-text", "text": text})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", bytes)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func WriteDone(w http.ResponseWriter) {
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
