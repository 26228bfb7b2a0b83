package task

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lLiuRunze/mail-agent/internal/logger"
	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
)

// expandTargets 把批量参数展开为邮件 ID 列表
// 优先级：显式 ID 列表 > 快照前 N 项 > 兜底拉取最近 N 封
func (e *Executor) expandTargets(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) ([]string, error) {
	if len(p.EmailIDs) > 0 {
		return p.EmailIDs, nil
	}

	count := p.Count
	if count <= 0 {
		return nil, &nlu.ValidationError{Field: "count", Reason: "批量操作需要指定数量或邮件 ID 列表"}
	}
	if count > e.listLimit {
		count = e.listLimit
	}

	if snap.Len() > 0 {
		return snap.FirstN(count), nil
	}

	// 没有列表快照时直接取最近 N 封，和用户"前N封/最近N封"的预期一致
	emails, err := e.mail.List(ctx, mailer.ListOptions{Limit: count})
	if err != nil {
		return nil, &nlu.UpstreamError{Collaborator: "mail", Op: "list", Err: err}
	}
	ids := make([]string, len(emails))
	for i, m := range emails {
		ids[i] = m.ID
	}
	return ids, nil
}

// runBatch 顺序执行批量操作，单项失败记录后继续，绝不中断整批
func (e *Executor) runBatch(ctx context.Context, ids []string, op func(context.Context, string) error) *BatchResult {
	res := &BatchResult{Total: len(ids), Items: make([]BatchItem, 0, len(ids))}
	for _, id := range ids {
		item := BatchItem{ID: id}
		if err := op(ctx, id); err != nil {
			item.Error = err.Error()
			res.Failed++
			logger.WarnCtx(ctx).Err(err).Str("account", e.account).Str("email_id", id).Msg("批量操作单项失败")
		} else {
			item.Success = true
			res.Succeeded++
		}
		res.Items = append(res.Items, item)
	}
	if e.metrics != nil {
		e.metrics.ObserveBatch(res.Succeeded, res.Failed)
	}
	return res
}

// batchMessage 汇总消息，部分失败时如实报出两边的数量
func batchMessage(action string, res *BatchResult) string {
	if res.Failed == 0 {
		return fmt.Sprintf("批量%s完成，共 %d 封", action, res.Succeeded)
	}
	return fmt.Sprintf("批量%s完成，成功 %d 封，失败 %d 封", action, res.Succeeded, res.Failed)
}

func (e *Executor) handleBatchArchive(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	ids, err := e.expandTargets(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, &nlu.NotFoundError{Ref: "待归档的邮件"}
	}
	folder := p.Folder
	if folder == "" {
		folder = e.archiveFolder
	}
	res := e.runBatch(ctx, ids, func(ctx context.Context, id string) error {
		return e.mail.Archive(ctx, id, folder)
	})
	return &ExecutionResult{
		Success: res.Failed == 0,
		Message: batchMessage("归档", res),
		Data:    res,
	}, nil, nil
}

func (e *Executor) handleBatchDelete(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	ids, err := e.expandTargets(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, &nlu.NotFoundError{Ref: "待删除的邮件"}
	}
	res := e.runBatch(ctx, ids, e.mail.Delete)
	return &ExecutionResult{
		Success: res.Failed == 0,
		Message: batchMessage("删除", res),
		Data:    res,
	}, nil, nil
}

func (e *Executor) handleBatchForward(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	ids, err := e.expandTargets(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, &nlu.NotFoundError{Ref: "待转发的邮件"}
	}
	res := e.runBatch(ctx, ids, func(ctx context.Context, id string) error {
		return e.mail.Forward(ctx, id, p.Recipients, "")
	})
	return &ExecutionResult{
		Success: res.Failed == 0,
		Message: batchMessage("转发", res) + "，收件人 " + strings.Join(p.Recipients, ", "),
		Data:    res,
	}, nil, nil
}

func (e *Executor) handleBatchMark(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	ids, err := e.expandTargets(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, &nlu.NotFoundError{Ref: "待标记的邮件"}
	}
	res := e.runBatch(ctx, ids, func(ctx context.Context, id string) error {
		return e.mail.Mark(ctx, id, p.Status)
	})
	label := "已读"
	if p.Status == "unread" {
		label = "未读"
	}
	return &ExecutionResult{
		Success: res.Failed == 0,
		Message: batchMessage("标记为"+label, res),
		Data:    res,
	}, nil, nil
}

// summaryItem 批量总结中单封的产出
type summaryItem struct {
	ID      string `json:"id"`
	Subject string `json:"subject,omitempty"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleBatchSummarize 批量总结
// 总结只读不改邮箱状态，允许有界并发；结果按输入顺序写入各自下标，
// 产出顺序与并发调度无关
func (e *Executor) handleBatchSummarize(ctx context.Context, p *nlu.Params, snap *nlu.Snapshot) (*ExecutionResult, *PreviewDraft, error) {
	ids, err := e.expandTargets(ctx, p, snap)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nil, nil, &nlu.NotFoundError{Ref: "待总结的邮件"}
	}

	items := make([]summaryItem, len(ids))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			items[i] = e.summarizeOne(ctx, id)
		}(i, id)
	}
	wg.Wait()

	res := &BatchResult{Total: len(ids), Items: make([]BatchItem, len(ids))}
	for i, it := range items {
		res.Items[i] = BatchItem{ID: it.ID, Success: it.Error == "", Error: it.Error}
		if it.Error == "" {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	if e.metrics != nil {
		e.metrics.ObserveBatch(res.Succeeded, res.Failed)
	}

	return &ExecutionResult{
		Success: res.Failed == 0,
		Message: batchMessage("总结", res),
		Data: map[string]any{
			"total":     res.Total,
			"succeeded": res.Succeeded,
			"failed":    res.Failed,
			"summaries": items,
		},
	}, nil, nil
}

func (e *Executor) summarizeOne(ctx context.Context, id string) summaryItem {
	item := summaryItem{ID: id}

	email, err := e.mail.Get(ctx, id)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Subject = email.Subject

	summary, err := e.gen.Summarize(ctx, email)
	if e.metrics != nil {
		e.metrics.ObserveGenerator("summarize", outcomeOf(err))
	}
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Summary = summary
	return item
}
