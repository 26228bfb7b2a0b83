package mailer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/lLiuRunze/mail-agent/internal/logger"
)

// Account 邮箱账号连接参数
type Account struct {
	Address  string
	Password string
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// folderVariants 常见文件夹在各服务商下的候选名称
// QQ/163 等国内邮箱用 UTF-7 编码的中文文件夹名，逐个尝试直到命中
var folderVariants = map[string][]string{
	"Archive": {"Archive", "&dcVr0mWHTvZZOQ-", "归档"},
	"Sent":    {"Sent Messages", "&XfJT0ZAB-", "已发送", "Sent"},
	"Drafts":  {"Drafts", "&g0l6P3ux-", "草稿箱", "Draft"},
	"Junk":    {"Junk", "&V4NXPpCuTvY-", "垃圾邮件", "Spam"},
	"Trash":   {"Deleted Messages", "&XfJSIJZk-", "已删除", "Trash"},
}

// IMAPClient 基于 IMAP/SMTP 的邮箱客户端实现
// IMAP 连接不支持并发命令，所有协议操作在互斥锁内执行
type IMAPClient struct {
	account Account

	mu       sync.Mutex
	imap     *client.Client
	selected string // 当前选中的文件夹，空为未选
}

// NewIMAPClient 创建客户端，连接按需建立
func NewIMAPClient(account Account) *IMAPClient {
	return &IMAPClient{account: account}
}

// connect 建立 IMAP 连接并登录，已连接时为空操作
// 调用方必须持有 c.mu
func (c *IMAPClient) connect() error {
	if c.imap != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.account.IMAPHost, c.account.IMAPPort)
	conn, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("连接 IMAP 服务器失败: %w", err)
	}

	if err := conn.Login(c.account.Address, c.account.Password); err != nil {
		conn.Logout()
		return fmt.Errorf("IMAP 登录失败: %w", err)
	}

	logger.Info().Str("account", c.account.Address).Str("server", addr).Msg("IMAP 已连接")
	c.imap = conn
	c.selected = ""
	return nil
}

// reset 丢弃当前连接，下次操作时重连
func (c *IMAPClient) reset() {
	if c.imap != nil {
		c.imap.Logout()
		c.imap = nil
	}
	c.selected = ""
}

// selectFolder 选中文件夹，逻辑名先查候选表再原样尝试
func (c *IMAPClient) selectFolder(folder string) error {
	if folder == "" {
		folder = "INBOX"
	}
	if c.selected == folder {
		return nil
	}

	candidates := []string{folder}
	if variants, ok := folderVariants[folder]; ok {
		candidates = variants
	}

	var lastErr error
	for _, name := range candidates {
		if _, err := c.imap.Select(name, false); err != nil {
			lastErr = err
			continue
		}
		c.selected = folder
		return nil
	}
	return fmt.Errorf("选择文件夹 %s 失败: %w", folder, lastErr)
}

// resolveFolder 把逻辑文件夹名解析为服务器上实际存在的名称
// 用于 COPY 目标，不改变当前选中状态
func (c *IMAPClient) resolveFolder(folder string) (string, error) {
	candidates := []string{folder}
	if variants, ok := folderVariants[folder]; ok {
		candidates = variants
	}

	existing, err := c.listFolders()
	if err != nil {
		return "", err
	}
	names := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		names[n] = struct{}{}
	}

	for _, name := range candidates {
		if _, ok := names[name]; ok {
			return name, nil
		}
	}
	// 服务器上没有任何候选名，交给服务器裁决原始名称
	return candidates[0], nil
}

func (c *IMAPClient) listFolders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.imap.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("列出文件夹失败: %w", err)
	}
	return folders, nil
}

// withConn 在持锁且已连接的状态下执行 fn，协议错误时重置连接
func (c *IMAPClient) withConn(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		c.reset()
		return err
	}
	return nil
}

// List 按时间倒序返回最近的邮件
func (c *IMAPClient) List(ctx context.Context, opts ListOptions) ([]*Email, error) {
	var emails []*Email
	err := c.withConn(ctx, func() error {
		if err := c.selectFolder(opts.Folder); err != nil {
			return err
		}
		mbox := c.imap.Mailbox()
		if mbox == nil || mbox.Messages == 0 {
			return nil
		}

		limit := uint32(opts.Limit)
		if limit == 0 || limit > mbox.Messages {
			limit = mbox.Messages
		}
		from := mbox.Messages - limit + 1

		seqSet := new(imap.SeqSet)
		seqSet.AddRange(from, mbox.Messages)

		var err error
		emails, err = c.fetchEnvelopes(seqSet, false, opts.Folder)
		return err
	})
	if err != nil {
		return nil, err
	}

	// 过滤时间窗口，倒序后最新在前
	if opts.Days > 0 {
		cutoff := time.Now().AddDate(0, 0, -opts.Days)
		filtered := emails[:0]
		for _, m := range emails {
			if m.Date.After(cutoff) {
				filtered = append(filtered, m)
			}
		}
		emails = filtered
	}
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].Date.After(emails[j].Date)
	})
	return emails, nil
}

// fetchEnvelopes 拉取序列集的信封和标志，byUID 时按 UID 寻址
func (c *IMAPClient) fetchEnvelopes(seqSet *imap.SeqSet, byUID bool, folder string) ([]*Email, error) {
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	fetch := c.imap.Fetch
	if byUID {
		fetch = c.imap.UidFetch
	}
	go func() {
		done <- fetch(seqSet, items, messages)
	}()

	var emails []*Email
	for msg := range messages {
		emails = append(emails, emailFromMessage(msg, folder))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("拉取邮件失败: %w", err)
	}
	return emails, nil
}

// emailFromMessage 信封转内部邮件结构，ID 为 UID 的十进制串
func emailFromMessage(msg *imap.Message, folder string) *Email {
	if folder == "" {
		folder = "INBOX"
	}
	m := &Email{
		ID:     strconv.FormatUint(uint64(msg.Uid), 10),
		Folder: folder,
		Unread: true,
	}
	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			m.Unread = false
		case imap.FlaggedFlag:
			m.Flagged = true
		}
	}

	env := msg.Envelope
	if env == nil {
		return m
	}
	m.MessageID = env.MessageId
	m.Subject = env.Subject
	m.Date = env.Date
	if len(env.From) > 0 {
		m.From = env.From[0].MailboxName + "@" + env.From[0].HostName
		m.FromName = env.From[0].PersonalName
	}
	for _, addr := range env.To {
		m.To = append(m.To, addr.MailboxName+"@"+addr.HostName)
	}
	return m
}

// Get 按 UID 取回单封邮件全文
func (c *IMAPClient) Get(ctx context.Context, id string) (*Email, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	var email *Email
	err = c.withConn(ctx, func() error {
		if err := c.selectFolder(""); err != nil {
			return err
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)

		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, section.FetchItem()}

		messages := make(chan *imap.Message, 1)
		done := make(chan error, 1)
		go func() {
			done <- c.imap.UidFetch(seqSet, items, messages)
		}()

		msg := <-messages
		for range messages {
			// UID 唯一，理论上只会有一条
		}
		if err := <-done; err != nil {
			return fmt.Errorf("拉取邮件 %s 失败: %w", id, err)
		}
		if msg == nil {
			return fmt.Errorf("邮件 %s: %w", id, ErrNotFound)
		}

		email = emailFromMessage(msg, "")
		if r := msg.GetBody(section); r != nil {
			text, err := extractBody(r)
			if err != nil {
				logger.Warn().Err(err).Str("email_id", id).Msg("解析邮件正文失败")
			}
			email.Body = text
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

// Search 服务器端全文搜索，命中主题、正文与头部
func (c *IMAPClient) Search(ctx context.Context, query string, limit int) ([]*Email, error) {
	var emails []*Email
	err := c.withConn(ctx, func() error {
		if err := c.selectFolder(""); err != nil {
			return err
		}

		criteria := imap.NewSearchCriteria()
		criteria.Text = []string{query}
		uids, err := c.imap.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("搜索失败: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}

		// 结果按 UID 升序返回，截取最新的 limit 封
		if limit > 0 && len(uids) > limit {
			uids = uids[len(uids)-limit:]
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids...)
		emails, err = c.fetchEnvelopes(seqSet, true, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].Date.After(emails[j].Date)
	})
	return emails, nil
}

// Archive 复制到目标文件夹后从原处删除
func (c *IMAPClient) Archive(ctx context.Context, id, folder string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	if folder == "" {
		folder = "Archive"
	}

	return c.withConn(ctx, func() error {
		if err := c.selectFolder(""); err != nil {
			return err
		}
		target, err := c.resolveFolder(folder)
		if err != nil {
			return err
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)

		if err := c.imap.UidCopy(seqSet, target); err != nil {
			return fmt.Errorf("归档邮件 %s 到 %s 失败: %w", id, folder, err)
		}
		if err := c.storeFlags(seqSet, imap.AddFlags, imap.DeletedFlag); err != nil {
			return err
		}
		if err := c.imap.Expunge(nil); err != nil {
			return fmt.Errorf("清理已删除邮件失败: %w", err)
		}
		return nil
	})
}

// Delete 打删除标记并立即清理
func (c *IMAPClient) Delete(ctx context.Context, id string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	return c.withConn(ctx, func() error {
		if err := c.selectFolder(""); err != nil {
			return err
		}
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)

		if err := c.storeFlags(seqSet, imap.AddFlags, imap.DeletedFlag); err != nil {
			return err
		}
		if err := c.imap.Expunge(nil); err != nil {
			return fmt.Errorf("清理已删除邮件失败: %w", err)
		}
		return nil
	})
}

// Mark 标记已读或未读
func (c *IMAPClient) Mark(ctx context.Context, id, status string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	return c.withConn(ctx, func() error {
		if err := c.selectFolder(""); err != nil {
			return err
		}
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uid)
		return c.storeFlags(seqSet, flagsOpFor(status), imap.SeenFlag)
	})
}

// flagsOpFor 标记状态对应的标志操作，read 加 \Seen，unread 去掉 \Seen
func flagsOpFor(status string) imap.FlagsOp {
	if status == "unread" {
		return imap.RemoveFlags
	}
	return imap.AddFlags
}

func (c *IMAPClient) storeFlags(seqSet *imap.SeqSet, op imap.FlagsOp, flag string) error {
	item := imap.FormatFlagsOp(op, true)
	if err := c.imap.UidStore(seqSet, item, []interface{}{flag}, nil); err != nil {
		return fmt.Errorf("更新邮件标志失败: %w", err)
	}
	return nil
}

// Folders 列出账号下的全部文件夹
func (c *IMAPClient) Folders(ctx context.Context) ([]string, error) {
	var folders []string
	err := c.withConn(ctx, func() error {
		var err error
		folders, err = c.listFolders()
		return err
	})
	return folders, err
}

// Close 登出并断开连接
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.imap == nil {
		return nil
	}
	err := c.imap.Logout()
	c.imap = nil
	c.selected = ""
	if err != nil {
		return fmt.Errorf("IMAP 登出失败: %w", err)
	}
	return nil
}

func parseUID(id string) (uint32, error) {
	uid, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("无效的邮件 ID %q: %w", id, ErrNotFound)
	}
	return uint32(uid), nil
}
