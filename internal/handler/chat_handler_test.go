package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yuunagi/deskmate/internal/handler"
	"github.com/yuunagi/deskmate/internal/model"
	"github.com/yuunagi/deskmate/internal/router"
	"github.com/yuunagi/deskmate/internal/service/chat"
	"github.com/yuunagi/deskmate/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, streamer chat.Streamer) *gin.Engine {
	t.Helper()
	mgr := testutil.NewChatManager(t, streamer, chat.ManagerConfig{})
	return router.SetupRouter(handler.NewHandlers(mgr))
}

func doJSON(t *testing.T, r *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// decodeEnvelope 解出统一响应的 data 字段
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	if envelope.Code != 0 {
		t.Fatalf("envelope code = %d, message = %q", envelope.Code, envelope.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("decode envelope data: %v (data %s)", err, envelope.Data)
		}
	}
}

// parseSSE 从响应体解出全部事件帧
func parseSSE(t *testing.T, body string) []chat.StreamEvent {
	t.Helper()
	var events []chat.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev chat.StreamEvent
		payload := strings.TrimPrefix(line, "data:")
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("decode sse frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func generateChat(t *testing.T, r *gin.Engine, text string) int64 {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/generate", gin.H{
		"content": []model.ContentPart{model.TextPart(text)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /generate status = %d, body %s", w.Code, w.Body.String())
	}
	events := parseSSE(t, w.Body.String())
	if len(events) == 0 || events[0].Type != chat.EventMeta {
		t.Fatalf("events = %+v, want leading meta frame", events)
	}
	return events[0].ID
}

// ========== 健康检查测试 ==========

func TestHealth(t *testing.T) {
	r := newTestServer(t, &testutil.MockStreamer{})

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", w.Code)
	}
}

// ========== 补全接口测试 ==========

func TestGenerateStreamsSSE(t *testing.T) {
	streamer := &testutil.MockStreamer{
		Chunks:   testutil.AnswerChunks("你", "好"),
		GenReply: "问候",
	}
	r := newTestServer(t, streamer)

	w := doJSON(t, r, http.MethodPost, "/generate", gin.H{
		"content": []model.ContentPart{model.TextPart("hi")},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := parseSSE(t, w.Body.String())
	if events[0].Type != chat.EventMeta || events[0].ID <= 0 {
		t.Errorf("first frame = %+v, want meta with id", events[0])
	}
	if last := events[len(events)-1]; last.Type != chat.EventEnd {
		t.Errorf("last frame = %+v, want end", last)
	}

	var answer strings.Builder
	foundTitle := false
	for _, ev := range events {
		switch ev.Type {
		case chat.EventAnswer:
			answer.WriteString(ev.Data)
		case chat.EventTitle:
			foundTitle = true
			if ev.Data != "问候" {
				t.Errorf("title frame data = %q, want 问候", ev.Data)
			}
		}
	}
	if answer.String() != "你好" {
		t.Errorf("answer = %q, want 你好", answer.String())
	}
	if !foundTitle {
		t.Error("missing title frame for new chat")
	}
}

func TestGenerateValidation(t *testing.T) {
	r := newTestServer(t, &testutil.MockStreamer{})

	tests := []struct {
		name string
		body any
	}{
		{"缺少 content", gin.H{}},
		{"非法分段类型", gin.H{"content": []gin.H{{"type": "audio"}}}},
		{"图片分段缺 url", gin.H{"content": []gin.H{{"type": "image_url"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/generate", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestGenerateUnknownChat(t *testing.T) {
	r := newTestServer(t, &testutil.MockStreamer{})

	w := doJSON(t, r, http.MethodPost, "/generate", gin.H{
		"id":      9999,
		"content": []model.ContentPart{model.TextPart("hi")},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (body %s)", w.Code, w.Body.String())
	}
}

// ========== 查询接口测试 ==========

func TestGetChatMessages(t *testing.T) {
	streamer := &testutil.MockStreamer{Chunks: testutil.AnswerChunks("好的"), GenReply: "标题"}
	r := newTestServer(t, streamer)
	id := generateChat(t, r, "hi")

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/get?id=%d", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var messages []model.Message
	decodeEnvelope(t, w, &messages)
	if len(messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(messages))
	}
	if messages[1].Role != model.RoleAssistant || messages[1].Text != "好的" {
		t.Errorf("messages[1] = %+v, want assistant 好的", messages[1])
	}
}

func TestGetChatNotFound(t *testing.T) {
	r := newTestServer(t, &testutil.MockStreamer{})

	w := doJSON(t, r, http.MethodGet, "/get?id=9999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/get?id=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status with bad id = %d, want 400", w.Code)
	}
}

func TestGetTitlesPagination(t *testing.T) {
	streamer := &testutil.MockStreamer{Chunks: testutil.AnswerChunks("好"), GenReply: "标题"}
	r := newTestServer(t, streamer)

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, generateChat(t, r, "hi"))
	}

	w := doJSON(t, r, http.MethodGet, "/get", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var titles []model.ChatTitle
	decodeEnvelope(t, w, &titles)
	if len(titles) != 3 {
		t.Fatalf("len(titles) = %d, want 3", len(titles))
	}
	// 默认按 id 降序
	if titles[0].ID != ids[2] || titles[2].ID != ids[0] {
		t.Errorf("titles = %+v, want descending ids %v", titles, ids)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/get?above=%d", ids[0]), nil)
	decodeEnvelope(t, w, &titles)
	if len(titles) != 2 || titles[0].ID != ids[1] {
		t.Errorf("titles above %d = %+v, want ascending ids %v", ids[0], titles, ids[1:])
	}
}

// ========== 落盘、心跳与删除接口测试 ==========

func TestSaveAndAlive(t *testing.T) {
	streamer := &testutil.MockStreamer{Chunks: testutil.AnswerChunks("好"), GenReply: "标题"}
	r := newTestServer(t, streamer)
	id := generateChat(t, r, "hi")

	var status struct {
		Alive bool `json:"alive"`
	}
	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/alive?id=%d", id), nil)
	decodeEnvelope(t, w, &status)
	if !status.Alive {
		t.Error("alive = false right after generate, want true")
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/save?id=%d", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /save status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/alive?id=%d", id), nil)
	decodeEnvelope(t, w, &status)
	if status.Alive {
		t.Error("alive = true after save, want false")
	}

	// 落盘后仍可查询历史
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/get?id=%d", id), nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /get after save status = %d, want 200", w.Code)
	}
}

func TestArchiveAll(t *testing.T) {
	streamer := &testutil.MockStreamer{Chunks: testutil.AnswerChunks("好"), GenReply: "标题"}
	r := newTestServer(t, streamer)
	id := generateChat(t, r, "hi")

	w := doJSON(t, r, http.MethodGet, "/archive-all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /archive-all status = %d, body %s", w.Code, w.Body.String())
	}

	// 归档后会话仍驻留
	var status struct {
		Alive bool `json:"alive"`
	}
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/alive?id=%d", id), nil)
	decodeEnvelope(t, w, &status)
	if !status.Alive {
		t.Error("alive = false after archive-all, want true")
	}
}

func TestDeleteChat(t *testing.T) {
	streamer := &testutil.MockStreamer{Chunks: testutil.AnswerChunks("好"), GenReply: "标题"}
	r := newTestServer(t, streamer)
	id := generateChat(t, r, "hi")

	w := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/chat?id=%d", id), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("DELETE /chat status = %d, want 204", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/get?id=%d", id), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /get after delete status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/get", nil)
	var titles []model.ChatTitle
	decodeEnvelope(t, w, &titles)
	if len(titles) != 0 {
		t.Errorf("titles after delete = %+v, want empty", titles)
	}
}

// ========== 配置接口测试 ==========

func TestConfigure(t *testing.T) {
	r := newTestServer(t, &testutil.MockStreamer{})

	w := doJSON(t, r, http.MethodPost, "/configure", gin.H{
		"main_model": "deepseek-reasoner",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /configure status = %d, body %s", w.Code, w.Body.String())
	}
	var models struct {
		MainModel   string `json:"main_model"`
		VisionModel string `json:"vision_model"`
		AssistModel string `json:"assist_model"`
	}
	decodeEnvelope(t, w, &models)
	if models.MainModel != "deepseek-reasoner" {
		t.Errorf("main_model = %q, want deepseek-reasoner", models.MainModel)
	}
	if models.VisionModel != "vision" {
		t.Errorf("vision_model = %q, want unchanged vision", models.VisionModel)
	}
}
