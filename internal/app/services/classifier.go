package services

import (
	"bytes"
	"encoding/json"
	"regexp"

	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/models"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n?(.*?)```")

// Classify 从最终回答（或 metadata.result）中提取事项并分组，找不到时返回四个空分组
func Classify(answer string, metadata json.RawMessage) models.GroupedResults {
	return ClassifyItems(ExtractItems(answer, metadata))
}

// ClassifyItems 按 eventCategory 精确匹配分组，未知类别丢弃
func ClassifyItems(items []models.ExtractedItemPayload) models.GroupedResults {
	groups := models.NewGroupedResults()
	dropped := 0
	for _, item := range items {
		if !groups.Add(item) {
			dropped++
		}
	}
	if dropped > 0 {
		log.Debugf("classifier dropped %d items with unknown category", dropped)
	}
	return groups
}

// ExtractItems 依次尝试：代码块、整段 JSON、metadata 的 result 字段
func ExtractItems(answer string, metadata json.RawMessage) []models.ExtractedItemPayload {
	for _, m := range fencePattern.FindAllStringSubmatch(answer, -1) {
		if items, ok := parseItems([]byte(m[1])); ok {
			return items
		}
	}
	if items, ok := parseItems([]byte(answer)); ok {
		return items
	}
	if len(metadata) == 0 {
		return nil
	}

	var meta struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(metadata, &meta); err != nil || len(meta.Result) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(meta.Result, &text); err == nil {
		return ExtractItems(text, nil)
	}
	items, _ := parseItems(meta.Result)
	return items
}

// parseItems 接受数组或 {"items": [...]}；单条格式错误只跳过该条
func parseItems(b []byte) ([]models.ExtractedItemPayload, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, false
	}

	var elems []json.RawMessage
	switch b[0] {
	case '[':
		if err := json.Unmarshal(b, &elems); err != nil {
			return nil, false
		}
	case '{':
		var wrapper struct {
			Items []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(b, &wrapper); err != nil || wrapper.Items == nil {
			return nil, false
		}
		elems = wrapper.Items
	default:
		return nil, false
	}

	items := make([]models.ExtractedItemPayload, 0, len(elems))
	for i, e := range elems {
		var item models.ExtractedItemPayload
		if err := json.Unmarshal(e, &item); err != nil {
			log.Warnf("skip malformed extracted item #%d: %v", i, err)
			continue
		}
		items = append(items, item)
	}
	return items, true
}
