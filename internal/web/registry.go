package web

import (
	"sync"

	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
	"github.com/lLiuRunze/mail-agent/internal/task"
)

// Session 一个已登录账号的在线状态
// 序号快照挂在会话上，每次展示新列表时换一个版本
type Session struct {
	account string
	mail    mailer.Client
	exec    *task.Executor

	mu      sync.Mutex
	snap    *nlu.Snapshot
	version int64
}

// Account 会话账号
func (s *Session) Account() string {
	return s.account
}

// Executor 会话的指令执行器
func (s *Session) Executor() *task.Executor {
	return s.exec
}

// Snapshot 当前生效的序号快照，可能为 nil
func (s *Session) Snapshot() *nlu.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// UpdateSnapshot 用新的列表顺序替换快照，旧版本的序号随之失效
func (s *Session) UpdateSnapshot(ids []string) *nlu.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.snap = nlu.NewSnapshot(s.version, ids)
	return s.snap
}

// Close 断开底层邮箱连接
func (s *Session) Close() error {
	return s.mail.Close()
}

// Registry 账号到会话的注册表
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get 取账号会话，不存在时返回 nil
func (r *Registry) Get(account string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[account]
}

// Put 登记会话，同账号重复登录时替换并关闭旧会话
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	old := r.sessions[s.account]
	r.sessions[s.account] = s
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Remove 注销会话并断开连接
func (r *Registry) Remove(account string) {
	r.mu.Lock()
	s := r.sessions[account]
	delete(r.sessions, account)
	r.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// CloseAll 关停时断开全部会话
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for account, s := range r.sessions {
		s.Close()
		delete(r.sessions, account)
	}
}
