package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lLiuRunze/mail-agent/internal/config"
	"github.com/lLiuRunze/mail-agent/internal/generator"
	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
	"github.com/lLiuRunze/mail-agent/internal/task"
)

// stubMail 内存邮箱，只记录调用
type stubMail struct {
	emails  []*mailer.Email
	deleted []string
	replies []string
	sent    [][]string
}

func (m *stubMail) List(ctx context.Context, opts mailer.ListOptions) ([]*mailer.Email, error) {
	limit := opts.Limit
	if limit <= 0 || limit > len(m.emails) {
		limit = len(m.emails)
	}
	return m.emails[:limit], nil
}

func (m *stubMail) Get(ctx context.Context, id string) (*mailer.Email, error) {
	for _, e := range m.emails {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, mailer.ErrNotFound
}

func (m *stubMail) Search(ctx context.Context, query string, limit int) ([]*mailer.Email, error) {
	return nil, nil
}

func (m *stubMail) Send(ctx context.Context, to []string, subject, body string, cc, bcc []string) error {
	m.sent = append(m.sent, to)
	return nil
}

func (m *stubMail) Reply(ctx context.Context, original *mailer.Email, body string) error {
	m.replies = append(m.replies, original.ID+":"+body)
	return nil
}

func (m *stubMail) Forward(ctx context.Context, id string, to []string, comment string) error {
	return nil
}

func (m *stubMail) Archive(ctx context.Context, id, folder string) error { return nil }

func (m *stubMail) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *stubMail) Mark(ctx context.Context, id, status string) error { return nil }

func (m *stubMail) Folders(ctx context.Context) ([]string, error) {
	return []string{"INBOX", "Archive"}, nil
}

func (m *stubMail) Close() error { return nil }

// stubGen 固定输出的生成器
type stubGen struct{}

func (g *stubGen) GenerateReply(ctx context.Context, email *mailer.Email, tone string) (string, error) {
	return "生成的回复", nil
}

func (g *stubGen) GenerateCompose(ctx context.Context, to []string, subject, prompt string) (string, error) {
	return "生成的正文", nil
}

func (g *stubGen) Summarize(ctx context.Context, email *mailer.Email) (string, error) {
	return "摘要", nil
}

func (g *stubGen) AnalyzePriority(ctx context.Context, email *mailer.Email) (*generator.PriorityAnalysis, error) {
	return &generator.PriorityAnalysis{Priority: "中", Urgency: "一般"}, nil
}

func (g *stubGen) Answer(ctx context.Context, question string) (string, error) {
	return "回答", nil
}

const testAccount = "user@163.com"

func testServerConfig() *config.Config {
	return &config.Config{
		Web: config.WebConfig{Port: 8000, JWTSecret: "test-secret", TokenTTL: 60},
		Mail: config.MailConfig{
			ArchiveFolder: "Archive",
			MaxFetch:      50,
			FolderAliases: map[string]string{"归档": "Archive"},
		},
		Generator: config.GeneratorConfig{MaxConcurrency: 1},
	}
}

// newTestServer 构建服务器并注入一个在线会话，返回请求用的令牌
func newTestServer(t *testing.T) (*Server, *stubMail, string) {
	t.Helper()

	mail := &stubMail{emails: []*mailer.Email{
		{ID: "101", Subject: "项目进度", From: "zhang@example.com", FromName: "张三", Date: time.Now(), Unread: true},
		{ID: "102", Subject: "会议通知", From: "li@example.com", FromName: "李四", Date: time.Now().Add(-time.Hour)},
		{ID: "103", Subject: "账单", From: "billing@example.com", Date: time.Now().Add(-2 * time.Hour)},
	}}

	cfg := testServerConfig()
	s := NewServer(cfg, &stubGen{}, nil, nil)

	exec := task.NewExecutor(testAccount, mail, &stubGen{}, nlu.NewResolver(cfg.Mail.FolderAliases), task.Options{
		ArchiveFolder: cfg.Mail.ArchiveFolder,
		ListLimit:     cfg.Mail.MaxFetch,
	})
	s.registry.Put(&Session{account: testAccount, mail: mail, exec: exec})

	token, err := issueToken(testAccount, cfg.Web.JWTSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s, mail, token
}

func doJSON(t *testing.T, s *Server, method, url, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v, body=%s", err, w.Body.String())
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w, resp := doJSON(t, s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || resp["status"] != "ok" {
		t.Errorf("状态码 = %d, 响应 = %v", w.Code, resp)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w, _ := doJSON(t, s, http.MethodPost, "/api/chat", "", map[string]string{"message": "查看邮件"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("状态码 = %d, 期望 401", w.Code)
	}
}

func TestSessionExpired(t *testing.T) {
	s, _, token := newTestServer(t)
	s.registry.Remove(testAccount)

	w, _ := doJSON(t, s, http.MethodPost, "/api/chat", token, map[string]string{"message": "查看邮件"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("令牌有效但会话不在线应返回 401, 实际 %d", w.Code)
	}
}

func TestChatListThenOrdinalDelete(t *testing.T) {
	s, mail, token := newTestServer(t)

	// 先查看列表，建立序号快照
	w, resp := doJSON(t, s, http.MethodPost, "/api/chat", token, map[string]string{"message": "查看邮件"})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("列表失败: %d %v", w.Code, resp)
	}
	result := resp["result"].(map[string]any)
	data := result["data"].(map[string]any)
	if data["snapshot_version"] != float64(1) {
		t.Errorf("snapshot_version = %v, 期望 1", data["snapshot_version"])
	}

	// 按序号删除，应命中列表中的第二封
	w, resp = doJSON(t, s, http.MethodPost, "/api/chat", token, map[string]string{"message": "删除第二封邮件"})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("删除失败: %d %v", w.Code, resp)
	}
	if len(mail.deleted) != 1 || mail.deleted[0] != "102" {
		t.Errorf("删除了 %v, 期望 [102]", mail.deleted)
	}
}

func TestChatOrdinalWithoutSnapshot(t *testing.T) {
	s, mail, token := newTestServer(t)

	w, resp := doJSON(t, s, http.MethodPost, "/api/chat", token, map[string]string{"message": "删除第一封邮件"})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	if resp["success"] != false {
		t.Error("没有快照时序号指代应失败")
	}
	if len(mail.deleted) != 0 {
		t.Errorf("不应执行删除: %v", mail.deleted)
	}
}

func TestChatReplyPreviewThenConfirm(t *testing.T) {
	s, mail, token := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/chat", token, map[string]string{"message": "查看邮件"})
	w, resp := doJSON(t, s, http.MethodPost, "/api/chat", token, map[string]string{"message": "回复第一封邮件"})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	preview, ok := resp["preview"].(map[string]any)
	if !ok {
		t.Fatalf("响应中没有预览草稿: %v", resp)
	}
	if len(mail.replies) != 0 {
		t.Fatalf("预览阶段不应发送: %v", mail.replies)
	}

	// 模拟用户编辑正文后确认
	preview["content"] = "用户编辑后的正文"
	w, resp = doJSON(t, s, http.MethodPost, "/api/chat/confirm", token, preview)
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("确认失败: %d %v", w.Code, resp)
	}
	if len(mail.replies) != 1 || mail.replies[0] != "101:用户编辑后的正文" {
		t.Errorf("发送内容 = %v", mail.replies)
	}
}

func TestConfirmRejectsForeignDraft(t *testing.T) {
	s, _, token := newTestServer(t)

	draft := map[string]any{
		"type":            "reply",
		"account":         "other@example.com",
		"source_email_id": "101",
		"content":         "正文",
	}
	w, _ := doJSON(t, s, http.MethodPost, "/api/chat/confirm", token, draft)
	if w.Code != http.StatusForbidden {
		t.Errorf("别人的草稿应返回 403, 实际 %d", w.Code)
	}
}

func TestListEmailsEndpoint(t *testing.T) {
	s, _, token := newTestServer(t)

	w, resp := doJSON(t, s, http.MethodGet, "/api/emails?limit=2", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", w.Code)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v", resp["count"])
	}
	if resp["snapshot_version"] != float64(1) {
		t.Errorf("snapshot_version = %v", resp["snapshot_version"])
	}

	// 再拉一次，快照版本递增
	_, resp = doJSON(t, s, http.MethodGet, "/api/emails", token, nil)
	if resp["snapshot_version"] != float64(2) {
		t.Errorf("第二次 snapshot_version = %v", resp["snapshot_version"])
	}
}

func TestGetEmailNotFound(t *testing.T) {
	s, _, token := newTestServer(t)

	w, _ := doJSON(t, s, http.MethodGet, "/api/emails/999", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("状态码 = %d, 期望 404", w.Code)
	}
}

func TestMarkValidatesStatus(t *testing.T) {
	s, _, token := newTestServer(t)

	w, _ := doJSON(t, s, http.MethodPatch, "/api/emails/101/mark", token, map[string]string{"status": "starred"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("状态码 = %d, 期望 400", w.Code)
	}
}

func TestBatchDeleteEndpoint(t *testing.T) {
	s, mail, token := newTestServer(t)

	w, resp := doJSON(t, s, http.MethodPost, "/api/emails/batch/delete", token,
		map[string]any{"email_ids": []string{"101", "103"}})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("批量删除失败: %d %v", w.Code, resp)
	}
	if len(mail.deleted) != 2 || mail.deleted[0] != "101" || mail.deleted[1] != "103" {
		t.Errorf("删除了 %v", mail.deleted)
	}
}

func TestSendEmailEndpoint(t *testing.T) {
	s, mail, token := newTestServer(t)

	w, resp := doJSON(t, s, http.MethodPost, "/api/send-email", token, map[string]any{
		"to":      []string{"wang@example.com"},
		"subject": "周报",
		"content": "本周工作总结",
	})
	if w.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("发送失败: %d %v", w.Code, resp)
	}
	if len(mail.sent) != 1 {
		t.Errorf("发送次数 = %d", len(mail.sent))
	}
}

func TestResolveProvider(t *testing.T) {
	cfg := testServerConfig()
	cfg.Mail.Providers = map[string]config.ProviderConfig{
		"163": {IMAPServer: "imap.163.com", IMAPPort: 993, SMTPServer: "smtp.163.com", SMTPPort: 465},
		"qq":  {IMAPServer: "imap.qq.com", IMAPPort: 993, SMTPServer: "smtp.qq.com", SMTPPort: 465},
	}
	s := NewServer(cfg, &stubGen{}, nil, nil)

	tests := []struct {
		name     string
		req      loginRequest
		wantIMAP string
		wantErr  bool
	}{
		{"显式服务商", loginRequest{Email: "a@b.com", Provider: "qq"}, "imap.qq.com", false},
		{"按域名推断163", loginRequest{Email: "a@163.com"}, "imap.163.com", false},
		{"按域名推断126", loginRequest{Email: "a@126.com"}, "imap.163.com", false},
		{"自定义服务器", loginRequest{Email: "a@corp.com", IMAPServer: "mail.corp.com", SMTPServer: "mail.corp.com"}, "mail.corp.com", false},
		{"无法识别", loginRequest{Email: "a@corp.com"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.resolveProvider(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.IMAPServer != tt.wantIMAP {
				t.Errorf("IMAPServer = %q, 期望 %q", p.IMAPServer, tt.wantIMAP)
			}
		})
	}
}

func TestCustomProviderDefaultPorts(t *testing.T) {
	s := NewServer(testServerConfig(), &stubGen{}, nil, nil)
	p, err := s.resolveProvider(&loginRequest{
		Email: "a@corp.com", IMAPServer: "mail.corp.com", SMTPServer: "mail.corp.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.IMAPPort != 993 || p.SMTPPort != 465 {
		t.Errorf("默认端口 = %d/%d", p.IMAPPort, p.SMTPPort)
	}
}
