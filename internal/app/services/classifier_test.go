package services

import (
	"encoding/json"
	"reflect"
	"testing"

	"audit-agent/internal/app/models"
)

const threeItems = `[
  {"eventCategory":"重大决策","topic":"年度预算","amountInvolved":null},
  {"eventCategory":"大额资金","topic":"设备采购","amountInvolved":"¥3,000,000.50","departments":"财务部、采购部"},
  {"eventCategory":"unknown","topic":"其他"}
]`

func TestClassifyPartitionsByCategory(t *testing.T) {
	answer := "以下是抽取结果：\n```json\n" + threeItems + "\n```\n请核对。"

	groups := Classify(answer, nil)
	if len(groups.MajorDecisions) != 1 || groups.MajorDecisions[0].Topic != "年度预算" {
		t.Fatalf("majorDecisions = %#v", groups.MajorDecisions)
	}
	if len(groups.LargeAmounts) != 1 || groups.LargeAmounts[0].Topic != "设备采购" {
		t.Fatalf("largeAmounts = %#v", groups.LargeAmounts)
	}
	if len(groups.PersonnelAppointments) != 0 || len(groups.MajorProjects) != 0 {
		t.Fatalf("unexpected items: %#v", groups)
	}
	if groups.Total() != 2 {
		t.Fatalf("total = %d, unknown category leaked", groups.Total())
	}

	large := groups.LargeAmounts[0]
	if large.AmountInvolved != "¥3,000,000.50" {
		t.Fatalf("amount = %q", large.AmountInvolved)
	}
	if !reflect.DeepEqual([]string(large.Departments), []string{"财务部", "采购部"}) {
		t.Fatalf("departments = %v", large.Departments)
	}
}

func TestClassifySources(t *testing.T) {
	item := `{"eventCategory":"重大项目","topic":"新厂区建设","amountInvolved":12000000}`
	cases := []struct {
		name     string
		answer   string
		metadata string
	}{
		{"bare fence", "```\n[" + item + "]\n```", ""},
		{"fence without newline", "```json[" + item + "]```", ""},
		{"items object", "```json\n{\"items\":[" + item + "]}\n```", ""},
		{"bare json answer", "  [" + item + "]  ", ""},
		{"metadata array", "没有代码块", `{"result":[` + item + `]}`},
		{"metadata string", "", `{"result":"` + jsonEscape("```json\n["+item+"]\n```") + `"}`},
		{"english key", "```json\n[{\"eventCategory\":\"majorProject\",\"topic\":\"新厂区建设\",\"amountInvolved\":12000000}]\n```", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var meta json.RawMessage
			if c.metadata != "" {
				meta = json.RawMessage(c.metadata)
			}
			groups := Classify(c.answer, meta)
			if len(groups.MajorProjects) != 1 || groups.Total() != 1 {
				t.Fatalf("groups = %#v", groups)
			}
			if groups.MajorProjects[0].Topic != "新厂区建设" {
				t.Fatalf("topic = %q", groups.MajorProjects[0].Topic)
			}
		})
	}
}

func TestClassifyNoResultGivesEmptyGroups(t *testing.T) {
	for _, answer := range []string{
		"",
		"文档中未发现相关事项。",
		"```json\n[{broken\n```",
		"```json\n\"just a string\"\n```",
	} {
		groups := Classify(answer, json.RawMessage(`{"usage":{}}`))
		if groups.Total() != 0 {
			t.Fatalf("Classify(%q) = %#v", answer, groups)
		}
		b, _ := json.Marshal(groups)
		want := `{"majorDecisions":[],"personnelAppointments":[],"majorProjects":[],"largeAmounts":[]}`
		if string(b) != want {
			t.Fatalf("empty groups json = %s", b)
		}
	}
}

func TestClassifySkipsMalformedElement(t *testing.T) {
	answer := "```json\n[{\"eventCategory\":\"重大决策\",\"topic\":\"A\"}, {\"eventCategory\":\"重大决策\",\"departments\":42}, 7]\n```"
	groups := Classify(answer, nil)
	if len(groups.MajorDecisions) != 1 || groups.MajorDecisions[0].Topic != "A" {
		t.Fatalf("groups = %#v", groups)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	answer := "```json\n" + threeItems + "\n```"
	first := Classify(answer, nil)
	second := ClassifyItems(first.Items())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reclassifying changed result:\n%#v\n%#v", first, second)
	}
}

func TestClassifyExactCategoryMatch(t *testing.T) {
	items := []models.ExtractedItemPayload{
		{EventCategory: " 重大决策"},
		{EventCategory: "重大决策事项"},
		{EventCategory: "MajorDecision"},
	}
	if got := ClassifyItems(items).Total(); got != 0 {
		t.Fatalf("fuzzy categories accepted: %d", got)
	}
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
