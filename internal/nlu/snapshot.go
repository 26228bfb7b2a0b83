package nlu

import "strconv"

// Entry 列表快照中的一项：内部位置（0 基）到邮件 ID 的映射
type Entry struct {
	Position int    `json:"position"`
	EmailID  string `json:"email_id"`
}

// Snapshot 最近一次展示给用户的邮件列表视图，带版本号的不可变值
// 序号引用（第一封）只能针对发出指令时生效的快照版本解析
type Snapshot struct {
	Version int64   `json:"version"`
	Entries []Entry `json:"entries"`
}

// NewSnapshot 按列表顺序（最新在前）构建快照
func NewSnapshot(version int64, ids []string) *Snapshot {
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{Position: i, EmailID: id}
	}
	return &Snapshot{Version: version, Entries: entries}
}

// Len 快照中的邮件数
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Resolve 将用户可见的 1 基序号解析为邮件 ID
// 1 基到 0 基的转换只发生在这里
func (s *Snapshot) Resolve(ordinal int) (string, error) {
	if s == nil || ordinal < 1 || ordinal > len(s.Entries) {
		return "", &NotFoundError{Ref: "第" + strconv.Itoa(ordinal) + "封"}
	}
	return s.Entries[ordinal-1].EmailID, nil
}

// Latest 最新一封邮件的 ID
func (s *Snapshot) Latest() (string, error) {
	if s == nil || len(s.Entries) == 0 {
		return "", &NotFoundError{Ref: "最新邮件"}
	}
	return s.Entries[0].EmailID, nil
}

// FirstN 按快照顺序返回前 n 项的 ID，不足 n 时返回全部
func (s *Snapshot) FirstN(n int) []string {
	if s == nil {
		return nil
	}
	if n > len(s.Entries) {
		n = len(s.Entries)
	}
	ids := make([]string, 0, n)
	for _, e := range s.Entries[:n] {
		ids = append(ids, e.EmailID)
	}
	return ids
}
