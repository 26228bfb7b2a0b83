package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(":memory:")
	if err != nil {
		t.Fatalf("创建历史存储失败: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewSQLiteRecorderBadPath(t *testing.T) {
	// 目录不存在时初始化失败，不留下未关闭的连接池
	if _, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "missing", "history.db")); err == nil {
		t.Fatal("期望初始化失败")
	}
}

func TestRecordAndList(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	entries := []*Entry{
		{Account: "a@test.com", TraceID: "t1", RawText: "查看邮件", Intent: "list_emails", Success: true, Message: "找到 3 封邮件"},
		{Account: "a@test.com", TraceID: "t2", RawText: "删除第一封邮件", Intent: "delete_email", Success: true},
		{Account: "b@test.com", TraceID: "t3", RawText: "回复邮件1", Intent: "reply_email", Success: false, Message: "邮件不存在"},
	}
	for _, e := range entries {
		if err := r.Record(ctx, e); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}

	// 只返回指定账号的记录，最新在前
	got, err := r.List(ctx, "a@test.com", 10)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("返回 %d 条, 期望 2", len(got))
	}
	if got[0].RawText != "删除第一封邮件" {
		t.Errorf("第一条 = %q, 期望最新的记录", got[0].RawText)
	}
	if got[1].Intent != "list_emails" || !got[1].Success {
		t.Errorf("第二条 = %+v", got[1])
	}
}

func TestListLimit(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := r.Record(ctx, &Entry{Account: "a@test.com", RawText: "查看邮件", Intent: "list_emails"}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.List(ctx, "a@test.com", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("返回 %d 条, 期望 3", len(got))
	}
}

func TestPrune(t *testing.T) {
	r := newTestRecorder(t)
	ctx := context.Background()

	if err := r.Record(ctx, &Entry{Account: "a@test.com", RawText: "查看邮件", Intent: "list_emails"}); err != nil {
		t.Fatal(err)
	}

	// 清理未来时间点之前的全部记录
	n, err := r.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("清理失败: %v", err)
	}
	if n != 1 {
		t.Errorf("清理了 %d 条, 期望 1", n)
	}

	got, err := r.List(ctx, "a@test.com", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("清理后仍有 %d 条", len(got))
	}
}
