package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lLiuRunze/mail-agent/internal/config"
	"github.com/lLiuRunze/mail-agent/internal/mailer"
)

func chatReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestClient(url string, maxRetries int) *DeepSeekClient {
	return NewDeepSeekClient(config.GeneratorConfig{
		APIURL:     url,
		APIKey:     "test-key",
		Model:      "deepseek-chat",
		MaxRetries: maxRetries,
		ReplyTemp:  0.7,
		Timeout:    5,
	}, nil)
}

func testEmail() *mailer.Email {
	return &mailer.Email{
		ID:       "1",
		From:     "zhang@example.com",
		FromName: "张三",
		Subject:  "项目进度",
		Body:     "本周项目进展顺利，预计下周完成测试。",
	}
}

func TestGenerateReply(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("解析请求失败: %v", err)
		}
		w.Write([]byte(chatReply("  收到，我会尽快跟进。  ")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	got, err := c.GenerateReply(context.Background(), testEmail(), "正式")
	if err != nil {
		t.Fatalf("生成回复失败: %v", err)
	}
	// 前后空白应被去掉
	if got != "收到，我会尽快跟进。" {
		t.Errorf("回复 = %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "deepseek-chat" || gotReq.Temperature != 0.7 {
		t.Errorf("请求参数 = model %q temperature %v", gotReq.Model, gotReq.Temperature)
	}
	if len(gotReq.Messages) != 2 || !strings.Contains(gotReq.Messages[1].Content, "语气要正式") {
		t.Errorf("提示词中缺少语气要求: %+v", gotReq.Messages)
	}
}

func TestSummarizeUsesLowTemperature(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(chatReply("项目进展顺利。")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	got, err := c.Summarize(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("摘要失败: %v", err)
	}
	if got != "项目进展顺利。" {
		t.Errorf("摘要 = %q", got)
	}
	if gotReq.Temperature != 0.3 {
		t.Errorf("temperature = %v, 期望 0.3", gotReq.Temperature)
	}
}

func TestCompleteRetriesOnRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatReply("好的")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	got, err := c.Answer(context.Background(), "你好")
	if err != nil {
		t.Fatalf("重试后仍失败: %v", err)
	}
	if got != "好的" {
		t.Errorf("回答 = %q", got)
	}
	if calls != 2 {
		t.Errorf("请求了 %d 次, 期望 2", calls)
	}
}

func TestCompleteDoesNotRetryClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.Answer(context.Background(), "你好")
	if err == nil {
		t.Fatal("期望错误")
	}
	if calls != 1 {
		t.Errorf("请求了 %d 次, 客户端错误不应重试", calls)
	}
}

func TestAnalyzePriority(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("分析结果如下：\n{\"priority\":\"高\",\"urgency\":\"紧急\",\"is_important\":true,\"reason\":\"截止日期临近\",\"suggested_action\":\"立即回复\"}\n以上。")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	got, err := c.AnalyzePriority(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("分析失败: %v", err)
	}
	if got.Priority != "高" || got.Urgency != "紧急" || !got.IsImportant {
		t.Errorf("分析结果 = %+v", got)
	}
}

func TestAnalyzePriorityFallsBackOnBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("这封邮件不太重要。")))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	got, err := c.AnalyzePriority(context.Background(), testEmail())
	if err != nil {
		t.Fatalf("解析失败不应返回错误: %v", err)
	}
	if got.Priority != "中" || got.Urgency != "一般" || got.IsImportant {
		t.Errorf("默认分析结果 = %+v", got)
	}
}

func TestParsePriorityJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"纯JSON", `{"priority":"低","urgency":"不紧急"}`, false},
		{"JSON外有说明", "结果：{\"priority\":\"中\"} 完毕", false},
		{"没有JSON", "这封邮件很重要", true},
		{"括号不配对", "} 开头 {", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePriorityJSON(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
