package routers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"audit-agent/internal/app/models"
	"audit-agent/internal/app/repositories"
	"audit-agent/internal/app/services"
	"audit-agent/internal/pkg/lock"
	"audit-agent/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const platformAnswer = "```json\\n[{\\\"eventCategory\\\":\\\"重大决策\\\",\\\"topic\\\":\\\"年度预算\\\"}]\\n```"

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stop-generating/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/stop-generating/") {
			fmt.Fprint(w, `{"result":"success"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"event\":\"message\",\"task_id\":\"task-1\",\"answer\":\"%s\"}\n\n", platformAnswer)
		fmt.Fprint(w, "data: {\"event\":\"message_end\",\"task_id\":\"task-1\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(platform.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&models.AuditFile{}, &models.ExtractedItem{}); err != nil {
		t.Fatal(err)
	}

	files := repositories.NewAuditFileRepository(db)
	items := services.NewExtractedItemService(files, repositories.NewExtractedItemRepository(db), lock.NewLocalLocker())
	client := services.NewPlatformClient(config.Platform{BaseURL: platform.URL, ApiKey: "k", Prompt: "{{file_ids}}"})
	analysis := services.NewAnalysisService(client, files, items)
	return NewEngine(analysis, services.NewAuditFileService(files), items, nil)
}

func do(t *testing.T, e *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Err  string          `json:"err"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("bad envelope %q: %v", w.Body.String(), err)
	}
	return env
}

func TestHealth(t *testing.T) {
	e := newTestEngine(t)
	if env := decode(t, do(t, e, http.MethodGet, "/audit/health", nil)); env.Code != 200 {
		t.Fatalf("env = %+v", env)
	}
}

func TestFileAndItemEndpoints(t *testing.T) {
	e := newTestEngine(t)

	env := decode(t, do(t, e, http.MethodPost, "/audit/files/add", map[string]interface{}{
		"project_id": 1, "file_id": "up-1", "file_name": "纪要.pdf", "file_type": "minutes",
	}))
	if env.Code != 200 {
		t.Fatalf("add = %+v", env)
	}
	var file models.AuditFile
	_ = json.Unmarshal(env.Data, &file)

	env = decode(t, do(t, e, http.MethodGet, "/audit/files/list?project_id=1", nil))
	var list []models.AuditFile
	_ = json.Unmarshal(env.Data, &list)
	if env.Code != 200 || len(list) != 1 {
		t.Fatalf("list = %+v", env)
	}

	if env = decode(t, do(t, e, http.MethodGet, "/audit/files/999", nil)); env.Code != 404 {
		t.Fatalf("missing file = %+v", env)
	}
	if env = decode(t, do(t, e, http.MethodGet, "/audit/files/abc", nil)); env.Code != 400 {
		t.Fatalf("bad id = %+v", env)
	}

	path := fmt.Sprintf("/audit/files/%d/items", file.ID)
	env = decode(t, do(t, e, http.MethodPost, path, map[string]interface{}{
		"projectId": 2,
		"items":     []map[string]interface{}{{"eventCategory": "重大决策", "topic": "越权"}},
	}))
	if env.Code != 400 {
		t.Fatalf("foreign project save = %+v", env)
	}

	env = decode(t, do(t, e, http.MethodPost, path, map[string]interface{}{
		"projectId": 1,
		"items": []map[string]interface{}{
			{"eventCategory": "大额资金", "topic": "采购", "amountInvolved": "¥3,000,000.50"},
		},
	}))
	if env.Code != 200 {
		t.Fatalf("save = %+v", env)
	}

	env = decode(t, do(t, e, http.MethodGet, path, nil))
	var groups models.GroupedResults
	_ = json.Unmarshal(env.Data, &groups)
	if len(groups.LargeAmounts) != 1 || groups.LargeAmounts[0].AmountInvolved != "3000000.5" {
		t.Fatalf("groups = %+v", groups)
	}

	env = decode(t, do(t, e, http.MethodGet, "/audit/items?project_id=1", nil))
	var items []models.ExtractedItem
	_ = json.Unmarshal(env.Data, &items)
	if env.Code != 200 || len(items) != 1 || items[0].Topic != "采购" {
		t.Fatalf("project items = %+v", env)
	}
	if env = decode(t, do(t, e, http.MethodGet, "/audit/items", nil)); env.Code != 400 {
		t.Fatalf("missing project = %+v", env)
	}

	if env = decode(t, do(t, e, http.MethodDelete, fmt.Sprintf("/audit/files/%d", file.ID), nil)); env.Code != 200 {
		t.Fatalf("delete = %+v", env)
	}
	env = decode(t, do(t, e, http.MethodGet, "/audit/items?project_id=1", nil))
	items = nil
	_ = json.Unmarshal(env.Data, &items)
	if env.Code != 200 || len(items) != 0 {
		t.Fatalf("items of deleted file still listed: %s", env.Data)
	}
}

func TestAnalysisStream(t *testing.T) {
	e := newTestEngine(t)
	decode(t, do(t, e, http.MethodPost, "/audit/files/add", map[string]interface{}{
		"project_id": 1, "file_id": "up-1", "file_name": "纪要.pdf",
	}))

	w := do(t, e, http.MethodPost, "/audit/analysis/stream", map[string]interface{}{
		"fileIds": []string{"up-1"}, "projectId": 1, "autoSave": true,
	})
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q body = %s", ct, w.Body.String())
	}

	var names []string
	var result map[string]interface{}
	for _, frame := range strings.Split(strings.TrimSpace(w.Body.String()), "\n\n") {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &m); err != nil {
			t.Fatalf("frame %q: %v", frame, err)
		}
		names = append(names, m["event"].(string))
		if m["event"] == "result" {
			result = m
		}
	}
	if !reflect.DeepEqual(names, []string{"message", "message_end", "result", "done"}) {
		t.Fatalf("events = %v", names)
	}
	if result["saved"] != float64(1) {
		t.Fatalf("result = %v", result)
	}
}

func TestAnalysisStreamRejectsForeignFile(t *testing.T) {
	e := newTestEngine(t)
	env := decode(t, do(t, e, http.MethodPost, "/audit/analysis/stream", map[string]interface{}{
		"fileIds": []string{"nope"}, "projectId": 1,
	}))
	if env.Code != 400 {
		t.Fatalf("env = %+v", env)
	}
}

func TestAnalysisControlEndpoints(t *testing.T) {
	e := newTestEngine(t)

	if env := decode(t, do(t, e, http.MethodPost, "/audit/analysis/stop", map[string]string{})); env.Code != 400 {
		t.Fatalf("empty stop = %+v", env)
	}
	env := decode(t, do(t, e, http.MethodPost, "/audit/analysis/stop", map[string]string{"taskId": "task-1"}))
	if env.Code != 200 || string(env.Data) != `{"success":true}` {
		t.Fatalf("stop = %+v", env)
	}
	env = decode(t, do(t, e, http.MethodPost, "/audit/analysis/stop", map[string]string{"taskId": "gone", "userId": "u1"}))
	if env.Code != 502 || string(env.Data) != `{"success":false}` {
		t.Fatalf("failed stop = %+v", env)
	}
	if env := decode(t, do(t, e, http.MethodGet, "/audit/analysis/tasks/unknown", nil)); env.Code != 404 {
		t.Fatalf("task = %+v", env)
	}

	env = decode(t, do(t, e, http.MethodPost, "/audit/analysis/classify", map[string]string{
		"answer": "```json\n[{\"eventCategory\":\"重大项目\",\"topic\":\"新厂区\"}]\n```",
	}))
	var groups models.GroupedResults
	_ = json.Unmarshal(env.Data, &groups)
	if env.Code != 200 || len(groups.MajorProjects) != 1 {
		t.Fatalf("classify = %+v", env)
	}
}

func TestClassifyMetadataShapes(t *testing.T) {
	e := newTestEngine(t)
	result := `[{"eventCategory":"重大决策","topic":"年度预算"}]`

	cases := map[string]interface{}{
		// message_end 事件中原样回传的对象
		"object": map[string]interface{}{
			"answer":   "没有代码块",
			"metadata": json.RawMessage(`{"result":` + result + `,"usage":{"total_tokens":10}}`),
		},
		"string": map[string]interface{}{
			"answer":   "没有代码块",
			"metadata": `{"result":` + result + `}`,
		},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			env := decode(t, do(t, e, http.MethodPost, "/audit/analysis/classify", body))
			var groups models.GroupedResults
			_ = json.Unmarshal(env.Data, &groups)
			if env.Code != 200 || len(groups.MajorDecisions) != 1 || groups.MajorDecisions[0].Topic != "年度预算" {
				t.Fatalf("classify = %+v", env)
			}
		})
	}

	env := decode(t, do(t, e, http.MethodPost, "/audit/analysis/classify", map[string]interface{}{
		"answer": "没有代码块", "metadata": nil,
	}))
	var groups models.GroupedResults
	_ = json.Unmarshal(env.Data, &groups)
	if env.Code != 200 || groups.Total() != 0 {
		t.Fatalf("null metadata = %+v", env)
	}
}
