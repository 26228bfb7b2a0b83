package mailer

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 指定的邮件在邮箱中不存在
var ErrNotFound = errors.New("邮件不存在")

// Email 邮件
type Email struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id,omitempty"`
	Folder    string    `json:"folder"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	FromName  string    `json:"from_name"`
	To        []string  `json:"to"`
	Date      time.Time `json:"date"`
	Body      string    `json:"body,omitempty"`
	Unread    bool      `json:"unread"`
	Flagged   bool      `json:"flagged"`
}

// ListOptions 列表查询选项
type ListOptions struct {
	Folder string // 空为 INBOX
	Limit  int
	Days   int // 只取最近 N 天，0 为不限
}

// Client 邮箱客户端边界
// 所有连接和协议错误以 error 返回，由上层包装为结构化结果
type Client interface {
	// List 按时间倒序返回邮件列表（最新在前）
	List(ctx context.Context, opts ListOptions) ([]*Email, error)
	// Get 获取单封邮件全文，不存在时返回包装 ErrNotFound 的错误
	Get(ctx context.Context, id string) (*Email, error)
	// Search 在主题与发件人中搜索
	Search(ctx context.Context, query string, limit int) ([]*Email, error)
	// Send 发送新邮件
	Send(ctx context.Context, to []string, subject, body string, cc, bcc []string) error
	// Reply 回复一封已有邮件（正确设置 Re: 主题与引用头）
	Reply(ctx context.Context, original *Email, body string) error
	// Forward 转发邮件到一个或多个地址，comment 为附言
	Forward(ctx context.Context, id string, to []string, comment string) error
	// Archive 归档（移动）到指定文件夹
	Archive(ctx context.Context, id, folder string) error
	// Delete 删除邮件
	Delete(ctx context.Context, id string) error
	// Mark 标记已读/未读，status 取 read / unread
	Mark(ctx context.Context, id, status string) error
	// Folders 列出可用文件夹
	Folders(ctx context.Context) ([]string, error)
	// Close 断开 IMAP/SMTP 连接
	Close() error
}
