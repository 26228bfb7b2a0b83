package mailer

import (
	"strings"
	"testing"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"普通标签", "<p>你好，<b>世界</b></p>", "你好， 世界"},
		{"style块", "<style>p{color:red}</style><p>正文</p>", "正文"},
		{"script块", "<script>alert(1)</script>正文", "正文"},
		{"HTML实体", "A&nbsp;&amp;&nbsp;B &lt;tag&gt;", "A & B <tag>"},
		{"多余空白", "  第一行\n\n  第二行  ", "第一行 第二行"},
		{"纯文本", "没有标签", "没有标签"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHTML(tt.in); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, 期望 %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	raw := strings.Join([]string{
		"From: zhang@example.com",
		"To: li@example.com",
		"Subject: test",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"纯文本正文",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>HTML正文</p>",
		"--b1--",
		"",
	}, "\r\n")

	got, err := extractBody(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if got != "纯文本正文" {
		t.Errorf("正文 = %q", got)
	}
}

func TestExtractBodyFallsBackToHTML(t *testing.T) {
	raw := strings.Join([]string{
		"From: zhang@example.com",
		"To: li@example.com",
		"Subject: test",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>只有HTML</p></body></html>",
		"",
	}, "\r\n")

	got, err := extractBody(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if got != "只有HTML" {
		t.Errorf("正文 = %q", got)
	}
}

func TestParseUID(t *testing.T) {
	uid, err := parseUID("42")
	if err != nil || uid != 42 {
		t.Errorf("parseUID(42) = %d, %v", uid, err)
	}

	if _, err := parseUID("abc"); err == nil {
		t.Error("非数字 ID 应报错")
	}
}
