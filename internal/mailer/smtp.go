package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/lLiuRunze/mail-agent/internal/logger"
)

// Send 发送新邮件
func (c *IMAPClient) Send(ctx context.Context, to []string, subject, body string, cc, bcc []string) error {
	if len(to) == 0 {
		return fmt.Errorf("没有收件人")
	}

	data, err := buildMessage(c.account.Address, to, cc, subject, body, "")
	if err != nil {
		return err
	}

	recipients := append(append(append([]string{}, to...), cc...), bcc...)
	return c.sendRaw(ctx, recipients, data)
}

// Reply 回复原始邮件，带 Re: 主题与引用头
func (c *IMAPClient) Reply(ctx context.Context, original *Email, body string) error {
	if original == nil || original.From == "" {
		return fmt.Errorf("原始邮件缺少发件人")
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	data, err := buildMessage(c.account.Address, []string{original.From}, nil, subject, body, original.MessageID)
	if err != nil {
		return err
	}
	return c.sendRaw(ctx, []string{original.From}, data)
}

// Forward 转发邮件，正文带原始邮件的引用块
func (c *IMAPClient) Forward(ctx context.Context, id string, to []string, comment string) error {
	if len(to) == 0 {
		return fmt.Errorf("没有收件人")
	}

	original, err := c.Get(ctx, id)
	if err != nil {
		return err
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "fwd:") {
		subject = "Fwd: " + subject
	}

	var body strings.Builder
	if comment != "" {
		body.WriteString(comment)
		body.WriteString("\n\n")
	}
	body.WriteString("---------- Forwarded message ---------\n")
	fmt.Fprintf(&body, "From: %s <%s>\n", original.FromName, original.From)
	fmt.Fprintf(&body, "Date: %s\n", original.Date.Format(time.RFC1123Z))
	fmt.Fprintf(&body, "Subject: %s\n\n", original.Subject)
	body.WriteString(original.Body)

	data, err := buildMessage(c.account.Address, to, nil, subject, body.String(), "")
	if err != nil {
		return err
	}
	return c.sendRaw(ctx, to, data)
}

// buildMessage 构造纯文本 MIME 邮件
func buildMessage(from string, to, cc []string, subject, body, inReplyTo string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", toAddressList(to))
	if len(cc) > 0 {
		h.SetAddressList("Cc", toAddressList(cc))
	}
	h.SetSubject(subject)
	if inReplyTo != "" {
		h.Set("In-Reply-To", "<"+strings.Trim(inReplyTo, "<>")+">")
		h.Set("References", "<"+strings.Trim(inReplyTo, "<>")+">")
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("构造邮件失败: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		w.Close()
		return nil, fmt.Errorf("写入邮件正文失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("构造邮件失败: %w", err)
	}
	return buf.Bytes(), nil
}

func toAddressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		list[i] = &mail.Address{Address: a}
	}
	return list
}

// sendRaw 通过账号的 SMTP 服务器投递
// 465 端口走隐式 TLS，其余端口走 STARTTLS
func (c *IMAPClient) sendRaw(ctx context.Context, recipients []string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", c.account.SMTPHost, c.account.SMTPPort)

	var (
		conn *smtp.Client
		err  error
	)
	if c.account.SMTPPort == 465 {
		conn, err = smtp.DialTLS(addr, nil)
	} else {
		conn, err = smtp.DialStartTLS(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("连接 SMTP 服务器失败: %w", err)
	}
	defer conn.Close()

	auth := sasl.NewPlainClient("", c.account.Address, c.account.Password)
	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("SMTP 认证失败: %w", err)
	}

	if err := conn.SendMail(c.account.Address, recipients, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	if err := conn.Quit(); err != nil {
		logger.Warn().Err(err).Str("account", c.account.Address).Msg("SMTP QUIT 失败")
	}

	logger.Info().
		Str("account", c.account.Address).
		Strs("recipients", recipients).
		Msg("邮件已投递")
	return nil
}
