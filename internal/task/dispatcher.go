package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lLiuRunze/mail-agent/internal/generator"
	"github.com/lLiuRunze/mail-agent/internal/history"
	"github.com/lLiuRunze/mail-agent/internal/logger"
	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/metrics"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
)

// handlerFunc 单个意图的处理函数
type handlerFunc func(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error)

// Options 执行器选项
type Options struct {
	ArchiveFolder        string            // 归档未指明文件夹时的默认值
	ListLimit            int               // 列表/批量兜底拉取上限
	SummarizeConcurrency int               // 批量总结并发度，<=1 为顺序
	History              history.Recorder  // 可为 nil
	Metrics              *metrics.Exporter // 可为 nil
}

// Executor 一个账号的指令执行器
// 同一账号内改动邮箱状态的指令串行执行，只读与生成类指令不受此约束
type Executor struct {
	account  string
	mail     mailer.Client
	gen      generator.Generator
	resolver *nlu.Resolver
	hist     history.Recorder
	metrics  *metrics.Exporter

	archiveFolder string
	listLimit     int
	concurrency   int

	mu       sync.Mutex // 串行化邮箱变更
	handlers map[nlu.Intent]handlerFunc
}

// NewExecutor 创建账号执行器
func NewExecutor(account string, mail mailer.Client, gen generator.Generator, resolver *nlu.Resolver, opts Options) *Executor {
	if opts.ArchiveFolder == "" {
		opts.ArchiveFolder = "Archive"
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 50
	}
	if opts.SummarizeConcurrency <= 0 {
		opts.SummarizeConcurrency = 1
	}

	e := &Executor{
		account:       account,
		mail:          mail,
		gen:           gen,
		resolver:      resolver,
		hist:          opts.History,
		metrics:       opts.Metrics,
		archiveFolder: opts.ArchiveFolder,
		listLimit:     opts.ListLimit,
		concurrency:   opts.SummarizeConcurrency,
	}

	e.handlers = map[nlu.Intent]handlerFunc{
		nlu.IntentListEmails:      e.handleList,
		nlu.IntentSearchEmails:    e.handleSearch,
		nlu.IntentReplyEmail:      e.handleReply,
		nlu.IntentForwardEmail:    e.handleForward,
		nlu.IntentArchiveEmail:    e.handleArchive,
		nlu.IntentDeleteEmail:     e.handleDelete,
		nlu.IntentMarkEmail:       e.handleMark,
		nlu.IntentSummarizeEmail:  e.handleSummarize,
		nlu.IntentAnalyzePriority: e.handleAnalyzePriority,
		nlu.IntentComposeEmail:    e.handleCompose,
		nlu.IntentBatchArchive:    e.handleBatchArchive,
		nlu.IntentBatchDelete:     e.handleBatchDelete,
		nlu.IntentBatchForward:    e.handleBatchForward,
		nlu.IntentBatchMark:       e.handleBatchMark,
		nlu.IntentBatchSummarize:  e.handleBatchSummarize,
		nlu.IntentGeneralQuery:    e.handleGeneralQuery,
	}
	return e
}

// Account 执行器绑定的账号
func (e *Executor) Account() string {
	return e.account
}

// Mail 底层邮箱客户端，供上层构建列表快照
func (e *Executor) Mail() mailer.Client {
	return e.mail
}

// Handle 处理一条自然语言指令：规范化 → 分类 → 槽位解析 → 执行
// 任何阶段出错都映射为结构化结果，不向外抛错；snap 为发指令时
// 用户看到的列表快照，可为 nil（此时序号引用会解析失败）
func (e *Executor) Handle(ctx context.Context, raw string, snap *nlu.Snapshot) *Outcome {
	start := time.Now()
	traceID := logger.TraceIDFromContext(ctx)
	out := &Outcome{TraceID: traceID, Intent: nlu.IntentUnknown}

	norm, err := nlu.Normalize(raw)
	if err != nil {
		out.Result = resultFromError(err)
		e.record(ctx, raw, out, time.Since(start))
		return out
	}

	cls := nlu.Classify(norm)
	out.Intent = cls.Intent

	logger.InfoCtx(ctx).
		Str("account", e.account).
		Str("intent", string(cls.Intent)).
		Str("rule", cls.Rule).
		Str("text", norm.Text).
		Msg("指令分类完成")

	if cls.Intent == nlu.IntentUnknown {
		out.Result = &ExecutionResult{
			Success: false,
			Kind:    KindParseError,
			Message: "无法识别这条指令，请换个说法，比如：查看邮件、回复第一封邮件、归档前5封邮件",
		}
		e.record(ctx, raw, out, time.Since(start))
		return out
	}

	p, err := e.resolver.Resolve(norm, cls)
	if err != nil {
		out.Result = resultFromError(err)
		e.record(ctx, raw, out, time.Since(start))
		return out
	}
	out.Params = p

	e.dispatch(ctx, cls.Intent, p, snap, out)
	e.record(ctx, raw, out, time.Since(start))
	return out
}

// Execute 按已知意图与槽位直接执行，跳过文本解析
// 供 REST 风格接口使用，串行化约束与 Handle 一致
func (e *Executor) Execute(ctx context.Context, intent nlu.Intent, p *nlu.Params, snap *nlu.Snapshot) *Outcome {
	start := time.Now()
	out := &Outcome{
		TraceID: logger.TraceIDFromContext(ctx),
		Intent:  intent,
		Params:  p,
	}
	e.dispatch(ctx, intent, p, snap, out)
	e.record(ctx, "", out, time.Since(start))
	return out
}

// dispatch 查表执行并把结果写入 out，改动邮箱状态的意图持账号锁
func (e *Executor) dispatch(ctx context.Context, intent nlu.Intent, p *nlu.Params, snap *nlu.Snapshot, out *Outcome) {
	h := e.handlers[intent]
	if h == nil {
		out.Result = &ExecutionResult{
			Success: false,
			Kind:    KindParseError,
			Message: "暂不支持的指令：" + intent.Description(),
		}
		return
	}

	if intent.Mutates() {
		e.mu.Lock()
		defer e.mu.Unlock()
	}

	res, preview, err := h(ctx, p, snap)
	if err != nil {
		logger.WarnCtx(ctx).
			Err(err).
			Str("account", e.account).
			Str("intent", string(intent)).
			Msg("指令执行失败")
		out.Result = resultFromError(err)
		return
	}
	out.Result = res
	out.Preview = preview
}

// record 写指标与历史，两者失败都不影响指令结果
func (e *Executor) record(ctx context.Context, raw string, out *Outcome, elapsed time.Duration) {
	outcome := "failure"
	if out.Result != nil && out.Result.Success {
		outcome = "success"
	}
	if e.metrics != nil {
		e.metrics.ObserveCommand(string(out.Intent), outcome, elapsed)
	}
	if e.hist == nil {
		return
	}

	var params string
	if out.Params != nil {
		if b, err := json.Marshal(out.Params); err == nil {
			params = string(b)
		}
	}
	entry := &history.Entry{
		Account:  e.account,
		TraceID:  out.TraceID,
		RawText:  raw,
		Intent:   string(out.Intent),
		Params:   params,
		Success:  out.Result != nil && out.Result.Success,
		Duration: elapsed.Milliseconds(),
	}
	if out.Result != nil {
		entry.Message = out.Result.Message
	}
	if err := e.hist.Record(ctx, entry); err != nil {
		logger.WarnCtx(ctx).Err(err).Str("account", e.account).Msg("历史记录写入失败")
	}
}

// getTarget 解析单封目标并取回全文
func (e *Executor) getTarget(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*mailer.Email, error) {
	id, err := p.Target(snap)
	if err != nil {
		return nil, err
	}
	email, err := e.mail.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return email, nil
}

// ListItem 列表结果中的单项，序号从 1 起对用户展示
type ListItem struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	Date     string `json:"date"`
	Unread   bool   `json:"unread"`
}

// ListData 列表/搜索结果，调用方据此刷新序号快照
type ListData struct {
	Count  int        `json:"count"`
	Query  string     `json:"query,omitempty"`
	Emails []ListItem `json:"emails"`
}

// IDs 按展示顺序返回邮件 ID
func (d *ListData) IDs() []string {
	ids := make([]string, len(d.Emails))
	for i, item := range d.Emails {
		ids[i] = item.ID
	}
	return ids
}

// BuildListData 把邮件列表转为展示数据，供列表接口直接复用
func BuildListData(emails []*mailer.Email) *ListData {
	return &ListData{Count: len(emails), Emails: toListItems(emails)}
}

func toListItems(emails []*mailer.Email) []ListItem {
	items := make([]ListItem, len(emails))
	for i, m := range emails {
		items[i] = ListItem{
			Index:    i + 1,
			ID:       m.ID,
			Subject:  m.Subject,
			From:     m.From,
			FromName: m.FromName,
			Date:     m.Date.Format("2006-01-02 15:04"),
			Unread:   m.Unread,
		}
	}
	return items
}

func (e *Executor) handleList(ctx context.Context, p *nlu.Params, _ *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	limit := p.Count
	if limit <= 0 || limit > e.listLimit {
		limit = e.listLimit
	}
	emails, err := e.mail.List(ctx, mailer.ListOptions{Folder: p.Folder, Limit: limit})
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "mail", Op: "list", Err: err}
	}
	return &ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("找到 %d 封邮件", len(emails)),
		Data:    &ListData{Count: len(emails), Emails: toListItems(emails)},
	}, nil, nil
}

func (e *Executor) handleSearch(ctx context.Context, p *nlu.Params, _ *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	emails, err := e.mail.Search(ctx, p.Query, e.listLimit)
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "mail", Op: "search", Err: err}
	}
	return &ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("搜索「%s」找到 %d 封邮件", p.Query, len(emails)),
		Data:    &ListData{Count: len(emails), Query: p.Query, Emails: toListItems(emails)},
	}, nil, nil
}

func (e *Executor) handleReply(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	original, err := e.getTarget(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}

	body, err := e.gen.GenerateReply(ctx, original, p.Tone)
	if e.metrics != nil {
		e.metrics.ObserveGenerator("reply", outcomeOf(err))
	}
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "generator", Op: "reply", Err: err}
	}

	draft := &PreviewDraft{
		ID:            uuid.NewString(),
		Type:          DraftReply,
		Account:       e.account,
		To:            []string{original.From},
		Subject:       replySubject(original.Subject),
		Content:       body,
		SourceEmailID: original.ID,
	}
	if e.metrics != nil {
		e.metrics.ObservePreview()
	}
	return &ExecutionResult{
		Success: true,
		Message: "回复草稿已生成，确认后才会发送",
		Data:    draft,
	}, draft, nil
}

func (e *Executor) handleCompose(ctx context.Context, p *nlu.Params, _ *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	subject := p.Subject
	if subject == "" {
		subject = "来自邮件助手的邮件"
	}

	body, err := e.gen.GenerateCompose(ctx, p.Recipients, subject, p.Prompt)
	if e.metrics != nil {
		e.metrics.ObserveGenerator("compose", outcomeOf(err))
	}
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "generator", Op: "compose", Err: err}
	}

	draft := &PreviewDraft{
		ID:      uuid.NewString(),
		Type:    DraftCompose,
		Account: e.account,
		To:      p.Recipients,
		Subject: subject,
		Content: body,
	}
	if e.metrics != nil {
		e.metrics.ObservePreview()
	}
	return &ExecutionResult{
		Success: true,
		Message: "邮件草稿已生成，确认后才会发送",
		Data:    draft,
	}, draft, nil
}

func (e *Executor) handleForward(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	id, err := p.Target(snap)
	if err != nil {
		return nil, nil, err
	}
	if err := e.mail.Forward(ctx, id, p.Recipients, ""); err != nil {
		return nil, nil, wrapMailErr("forward", err)
	}
	return &ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("邮件已转发给 %s", strings.Join(p.Recipients, ", ")),
		Data:    map[string]any{"email_id": id, "recipients": p.Recipients},
	}, nil, nil
}

func (e *Executor) handleArchive(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	id, err := p.Target(snap)
	if err != nil {
		return nil, nil, err
	}
	folder := p.Folder
	if folder == "" {
		folder = e.archiveFolder
	}
	if err := e.mail.Archive(ctx, id, folder); err != nil {
		return nil, nil, wrapMailErr("archive", err)
	}
	return &ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("邮件已归档到「%s」", folder),
		Data:    map[string]any{"email_id": id, "folder": folder},
	}, nil, nil
}

func (e *Executor) handleDelete(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	id, err := p.Target(snap)
	if err != nil {
		return nil, nil, err
	}
	if err := e.mail.Delete(ctx, id); err != nil {
		return nil, nil, wrapMailErr("delete", err)
	}
	return &ExecutionResult{
		Success: true,
		Message: "邮件已删除",
		Data:    map[string]any{"email_id": id},
	}, nil, nil
}

func (e *Executor) handleMark(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	id, err := p.Target(snap)
	if err != nil {
		return nil, nil, err
	}
	if err := e.mail.Mark(ctx, id, p.Status); err != nil {
		return nil, nil, wrapMailErr("mark", err)
	}
	label := "已读"
	if p.Status == "unread" {
		label = "未读"
	}
	return &ExecutionResult{
		Success: true,
		Message: "邮件已标记为" + label,
		Data:    map[string]any{"email_id": id, "status": p.Status},
	}, nil, nil
}

func (e *Executor) handleSummarize(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	email, err := e.getTarget(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}

	summary, err := e.gen.Summarize(ctx, email)
	if e.metrics != nil {
		e.metrics.ObserveGenerator("summarize", outcomeOf(err))
	}
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "generator", Op: "summarize", Err: err}
	}
	return &ExecutionResult{
		Success: true,
		Message: summary,
		Data: map[string]any{
			"email_id": email.ID,
			"subject":  email.Subject,
			"summary":  summary,
		},
	}, nil, nil
}

func (e *Executor) handleAnalyzePriority(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	email, err := e.getTarget(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}

	analysis, err := e.gen.AnalyzePriority(ctx, email)
	if e.metrics != nil {
		e.metrics.ObserveGenerator("priority", outcomeOf(err))
	}
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "generator", Op: "priority", Err: err}
	}
	return &ExecutionResult{
		Success: true,
		Message: fmt.Sprintf("优先级：%s（%s）。建议：%s", analysis.Priority, analysis.Urgency, analysis.SuggestedAction),
		Data: map[string]any{
			"email_id": email.ID,
			"subject":  email.Subject,
			"analysis": analysis,
		},
	}, nil, nil
}

func (e *Executor) handleGeneralQuery(ctx context.Context, p *nlu.Params, _ *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	answer, err := e.gen.Answer(ctx, p.Prompt)
	if e.metrics != nil {
		e.metrics.ObserveGenerator("answer", outcomeOf(err))
	}
	if err != nil {
		return nil, nil, &nlu.UpstreamError{Collaborator: "generator", Op: "answer", Err: err}
	}
	return &ExecutionResult{Success: true, Message: answer}, nil, nil
}

// ConfirmDraft 确认并发送草稿，发送的正文就是传入草稿的正文
// 草稿由调用方持有，这里不校验草稿是否由当前进程生成
func (e *Executor) ConfirmDraft(ctx context.Context, draft *PreviewDraft) *ExecutionResult {
	if draft == nil || strings.TrimSpace(draft.Content) == "" {
		return resultFromError(&nlu.ValidationError{Field: "content", Reason: "草稿正文为空"})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	switch draft.Type {
	case DraftReply:
		if draft.SourceEmailID == "" {
			return resultFromError(&nlu.ValidationError{Field: "source_email_id", Reason: "回复草稿缺少原始邮件"})
		}
		var original *mailer.Email
		original, err = e.mail.Get(ctx, draft.SourceEmailID)
		if err == nil {
			err = e.mail.Reply(ctx, original, draft.Content)
		}
	case DraftCompose:
		if len(draft.To) == 0 {
			return resultFromError(&nlu.ValidationError{Field: "to", Reason: "草稿缺少收件人"})
		}
		err = e.mail.Send(ctx, draft.To, draft.Subject, draft.Content, nil, nil)
	default:
		return resultFromError(&nlu.ValidationError{Field: "type", Reason: "未知的草稿类型"})
	}

	if err != nil {
		logger.WarnCtx(ctx).Err(err).Str("account", e.account).Str("draft", draft.ID).Msg("草稿发送失败")
		return resultFromError(wrapMailErr("send", err))
	}

	if e.metrics != nil {
		e.metrics.ObserveConfirm()
	}
	logger.InfoCtx(ctx).Str("account", e.account).Str("draft", draft.ID).Msg("草稿已确认发送")
	return &ExecutionResult{
		Success: true,
		Message: "邮件已发送给 " + strings.Join(draft.To, ", "),
		Data:    map[string]any{"draft_id": draft.ID, "recipients": draft.To},
	}
}

// replySubject 补 Re: 前缀，已有前缀的不重复加
func replySubject(subject string) string {
	lower := strings.ToLower(subject)
	if strings.HasPrefix(lower, "re:") || strings.HasPrefix(lower, "回复:") || strings.HasPrefix(lower, "回复：") {
		return subject
	}
	return "Re: " + subject
}

// wrapMailErr 邮箱错误分类：不存在直接透传给错误映射，其余算上游故障
func wrapMailErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return err
	}
	return &nlu.UpstreamError{Collaborator: "mail", Op: op, Err: err}
}

func isNotFound(err error) bool {
	var nf *nlu.NotFoundError
	return errors.As(err, &nf) || errors.Is(err, mailer.ErrNotFound)
}

func outcomeOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
