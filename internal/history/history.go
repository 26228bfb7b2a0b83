package history

import (
	"context"
	"time"
)

// Entry 一条已执行指令的审计记录
type Entry struct {
	ID        int64     `json:"id"`
	Account   string    `json:"account"`
	TraceID   string    `json:"trace_id"`
	RawText   string    `json:"raw_text"`
	Intent    string    `json:"intent"`
	Params    string    `json:"params"` // 槽位的 JSON 序列化
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Duration  int64     `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Recorder 指令历史存储
// 历史写入失败只记日志，永远不影响指令本身的结果
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, account string, limit int) ([]*Entry, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
