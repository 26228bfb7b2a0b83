package nlu

import (
	"errors"
	"reflect"
	"testing"
)

func testResolver() *Resolver {
	return NewResolver(map[string]string{
		"工作":  "Work",
		"归档":  "Archive",
		"收件箱": "INBOX",
	})
}

// resolve 测试辅助：规范化 + 分类 + 槽位解析
func resolve(t *testing.T, text string) (*Params, error) {
	t.Helper()
	n, err := Normalize(text)
	if err != nil {
		t.Fatalf("Normalize(%q) 出错: %v", text, err)
	}
	return testResolver().Resolve(n, Classify(n))
}

func TestResolveSingleTarget(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantID      string
		wantOrdinal int
		wantLatest  bool
	}{
		{"序号引用", "回复第一封邮件", "", 1, false},
		{"英文序数词", "reply to the third email", "", 3, false},
		{"显式ID", "删除邮件3", "3", 0, false},
		{"最新一封", "总结最新邮件", "", 0, true},
		{"最近一封", "回复最近一封邮件", "", 0, true},
		{"最后一封", "删除最后一封邮件", "", 0, true},
		{"显式ID优先于序号", "回复第一封邮件,就是邮件5", "5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := resolve(t, tt.text)
			if err != nil {
				t.Fatalf("Resolve(%q) 出错: %v", tt.text, err)
			}
			if p.EmailID != tt.wantID || p.Ordinal != tt.wantOrdinal || p.Latest != tt.wantLatest {
				t.Errorf("目标 = {id=%q ordinal=%d latest=%v}, 期望 {id=%q ordinal=%d latest=%v}",
					p.EmailID, p.Ordinal, p.Latest, tt.wantID, tt.wantOrdinal, tt.wantLatest)
			}
		})
	}
}

func TestResolveAmbiguousReference(t *testing.T) {
	// 单封意图带多个显式 ID，优先级规则无法裁决
	_, err := resolve(t, "回复邮件1,2,3")
	var ambErr *AmbiguousReferenceError
	if !errors.As(err, &ambErr) {
		t.Fatalf("期望 AmbiguousReferenceError, 实际 %v", err)
	}
}

func TestResolveMissingTarget(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"回复缺目标", "回复邮件"},
		{"删除缺目标", "删除邮件"},
		{"转发缺收件人", "转发第一封邮件"},
		{"标记缺状态", "标记第一封邮件"},
		{"撰写缺收件人", "写一封邮件说明天开会"},
		{"批量缺数量", "批量删除邮件"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolve(t, tt.text)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("Resolve(%q) 期望 ValidationError, 实际 %v", tt.text, err)
			}
		})
	}
}

func TestResolveRecipients(t *testing.T) {
	p, err := resolve(t, "转发邮件1到User@Example.com和user@example.com和other@test.org")
	if err != nil {
		t.Fatal(err)
	}
	// 大小写不敏感去重，保留首次出现的写法与顺序
	want := []string{"User@Example.com", "other@test.org"}
	if !reflect.DeepEqual(p.Recipients, want) {
		t.Errorf("Recipients = %v, 期望 %v", p.Recipients, want)
	}
}

func TestResolveBatch(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCount int
		wantIDs   []string
		wantScope Scope
	}{
		{"前N封", "归档前5封邮件", 5, nil, ScopeTop},
		{"最近N封", "总结最近3封邮件", 3, nil, ScopeRecent},
		{"显式ID列表", "删除邮件1,2,3", 0, []string{"1", "2", "3"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := resolve(t, tt.text)
			if err != nil {
				t.Fatalf("Resolve(%q) 出错: %v", tt.text, err)
			}
			if p.Count != tt.wantCount {
				t.Errorf("Count = %d, 期望 %d", p.Count, tt.wantCount)
			}
			if tt.wantIDs != nil && !reflect.DeepEqual(p.EmailIDs, tt.wantIDs) {
				t.Errorf("EmailIDs = %v, 期望 %v", p.EmailIDs, tt.wantIDs)
			}
			if tt.wantScope != "" && p.Scope != tt.wantScope {
				t.Errorf("Scope = %s, 期望 %s", p.Scope, tt.wantScope)
			}
		})
	}
}

func TestResolveBatchMarkStatus(t *testing.T) {
	p, err := resolve(t, "标记前10封为已读")
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 10 || p.Status != "read" {
		t.Errorf("got count=%d status=%s, 期望 count=10 status=read", p.Count, p.Status)
	}

	p, err = resolve(t, "把前3封标为未读")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != "unread" {
		t.Errorf("Status = %s, 期望 unread", p.Status)
	}
}

func TestResolveFolder(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantFolder string
	}{
		{"别名映射", "归档邮件到工作文件夹", "Work"},
		{"未知名称透传", "归档第一封邮件到Projects", "Projects"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := resolve(t, tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if p.Folder != tt.wantFolder {
				t.Errorf("Folder = %q, 期望 %q", p.Folder, tt.wantFolder)
			}
		})
	}
}

func TestResolveArchiveDefaultsToLatest(t *testing.T) {
	// 未指明目标时归档最新一封
	p, err := resolve(t, "归档邮件到工作文件夹")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Latest {
		t.Error("未指明目标的归档应该默认最新一封")
	}
}

func TestResolveSearchQuery(t *testing.T) {
	p, err := resolve(t, "搜索关于项目的邮件")
	if err != nil {
		t.Fatal(err)
	}
	if p.Query != "项目" {
		t.Errorf("Query = %q, 期望 %q", p.Query, "项目")
	}
}

func TestResolveListDefaults(t *testing.T) {
	p, err := resolve(t, "查看邮件")
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 10 {
		t.Errorf("默认数量 = %d, 期望 10", p.Count)
	}

	p, err = resolve(t, "列出前20封邮件")
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 20 {
		t.Errorf("数量 = %d, 期望 20", p.Count)
	}
}

func TestResolveTone(t *testing.T) {
	p, err := resolve(t, "用正式的语气回复第一封邮件")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tone != "正式" {
		t.Errorf("Tone = %q, 期望 %q", p.Tone, "正式")
	}
}
