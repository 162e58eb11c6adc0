package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EventCategory “三重一大”事项类别
type EventCategory string

const (
	CategoryMajorDecision        EventCategory = "重大决策"
	CategoryPersonnelAppointment EventCategory = "重要人事任免"
	CategoryMajorProject         EventCategory = "重大项目"
	CategoryLargeAmount          EventCategory = "大额资金"
)

var categoryKeys = map[string]EventCategory{
	"majorDecision":        CategoryMajorDecision,
	"personnelAppointment": CategoryPersonnelAppointment,
	"majorProject":         CategoryMajorProject,
	"largeAmount":          CategoryLargeAmount,
}

// ParseEventCategory 精确匹配中文名称或英文键
func ParseEventCategory(s string) (EventCategory, bool) {
	switch c := EventCategory(s); c {
	case CategoryMajorDecision, CategoryPersonnelAppointment, CategoryMajorProject, CategoryLargeAmount:
		return c, true
	}
	c, ok := categoryKeys[s]
	return c, ok
}

// AmountText 模型输出的金额，可能是数字、字符串或 null
type AmountText string

func (a *AmountText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = AmountText(n.String())
	return nil
}

// StringList 接受字符串数组，或以顿号、逗号、分号分隔的字符串
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var arr []string
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '、' || r == ',' || r == '，' || r == ';' || r == '；'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*l = out
	return nil
}

// ExtractedItemPayload 模型抽取出的单条事项（未入库）
type ExtractedItemPayload struct {
	EventCategory  string     `json:"eventCategory"`
	MeetingTime    string     `json:"meetingTime"`
	DocumentNumber string     `json:"documentNumber"`
	Topic          string     `json:"topic"`
	Conclusion     string     `json:"conclusion"`
	Summary        string     `json:"summary"`
	AmountInvolved AmountText `json:"amountInvolved"`
	Departments    StringList `json:"departments"`
	Personnel      StringList `json:"personnel"`
	DecisionBasis  string     `json:"decisionBasis"`
	OriginalText   string     `json:"originalText"`
}

// ItemInput 待入库事项及其所属文件
type ItemInput struct {
	FileID uint64
	ExtractedItemPayload
}

// GroupedResults 按四类事项分组的结果，不入库
type GroupedResults struct {
	MajorDecisions        []ExtractedItemPayload `json:"majorDecisions"`
	PersonnelAppointments []ExtractedItemPayload `json:"personnelAppointments"`
	MajorProjects         []ExtractedItemPayload `json:"majorProjects"`
	LargeAmounts          []ExtractedItemPayload `json:"largeAmounts"`
}

// NewGroupedResults 四个分组均为空切片，序列化为 []
func NewGroupedResults() GroupedResults {
	return GroupedResults{
		MajorDecisions:        []ExtractedItemPayload{},
		PersonnelAppointments: []ExtractedItemPayload{},
		MajorProjects:         []ExtractedItemPayload{},
		LargeAmounts:          []ExtractedItemPayload{},
	}
}

// Add 按类别放入对应分组，未知类别返回 false
func (g *GroupedResults) Add(item ExtractedItemPayload) bool {
	c, ok := ParseEventCategory(item.EventCategory)
	if !ok {
		return false
	}
	switch c {
	case CategoryMajorDecision:
		g.MajorDecisions = append(g.MajorDecisions, item)
	case CategoryPersonnelAppointment:
		g.PersonnelAppointments = append(g.PersonnelAppointments, item)
	case CategoryMajorProject:
		g.MajorProjects = append(g.MajorProjects, item)
	case CategoryLargeAmount:
		g.LargeAmounts = append(g.LargeAmounts, item)
	}
	return true
}

func (g GroupedResults) Total() int {
	return len(g.MajorDecisions) + len(g.PersonnelAppointments) + len(g.MajorProjects) + len(g.LargeAmounts)
}

// Items 按固定类别顺序展开
func (g GroupedResults) Items() []ExtractedItemPayload {
	out := make([]ExtractedItemPayload, 0, g.Total())
	out = append(out, g.MajorDecisions...)
	out = append(out, g.PersonnelAppointments...)
	out = append(out, g.MajorProjects...)
	out = append(out, g.LargeAmounts...)
	return out
}

type ExtractedItem struct {
	ID             uint64                      `gorm:"primaryKey;autoIncrement;comment:主键" json:"id"`
	FileID         uint64                      `gorm:"not null;index;comment:所属文件" json:"file_id"`
	ProjectID      uint64                      `gorm:"not null;index;comment:所属项目" json:"project_id"`
	EventCategory  EventCategory               `gorm:"size:32;not null;index;comment:事项类别" json:"event_category"`
	MeetingTime    string                      `gorm:"size:100;default:null;comment:会议时间" json:"meeting_time"`
	DocumentNumber string                      `gorm:"size:200;default:null;comment:文号" json:"document_number"`
	Topic          string                      `gorm:"size:500;default:null;comment:议题" json:"topic"`
	Conclusion     string                      `gorm:"type:text;comment:结论" json:"conclusion"`
	Summary        string                      `gorm:"type:text;comment:摘要" json:"summary"`
	AmountInvolved *float64                    `gorm:"type:decimal(18,2);default:null;comment:涉及金额" json:"amount_involved"`
	Departments    datatypes.JSONSlice[string] `gorm:"comment:涉及部门" json:"departments"`
	Personnel      datatypes.JSONSlice[string] `gorm:"comment:涉及人员" json:"personnel"`
	DecisionBasis  string                      `gorm:"type:text;comment:决策依据" json:"decision_basis"`
	OriginalText   string                      `gorm:"type:text;comment:原文" json:"original_text"`
	CreatedAt      time.Time                   `gorm:"comment:记录创建时间" json:"created_at"`
}

// TableName 指定表名
func (ExtractedItem) TableName() string {
	return "audit_extracted_item"
}

// Payload 转回分组展示用的结构
func (i *ExtractedItem) Payload() ExtractedItemPayload {
	p := ExtractedItemPayload{
		EventCategory:  string(i.EventCategory),
		MeetingTime:    i.MeetingTime,
		DocumentNumber: i.DocumentNumber,
		Topic:          i.Topic,
		Conclusion:     i.Conclusion,
		Summary:        i.Summary,
		Departments:    StringList(i.Departments),
		Personnel:      StringList(i.Personnel),
		DecisionBasis:  i.DecisionBasis,
		OriginalText:   i.OriginalText,
	}
	if i.AmountInvolved != nil {
		b, _ := json.Marshal(*i.AmountInvolved)
		p.AmountInvolved = AmountText(b)
	}
	return p
}
