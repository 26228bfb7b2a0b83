package nlu

// Intent 指令意图，闭合枚举
type Intent string

const (
	IntentListEmails      Intent = "list_emails"
	IntentSearchEmails    Intent = "search_emails"
	IntentReplyEmail      Intent = "reply_email"
	IntentForwardEmail    Intent = "forward_email"
	IntentArchiveEmail    Intent = "archive_email"
	IntentDeleteEmail     Intent = "delete_email"
	IntentMarkEmail       Intent = "mark_email"
	IntentSummarizeEmail  Intent = "summarize_email"
	IntentAnalyzePriority Intent = "analyze_priority"
	IntentComposeEmail    Intent = "compose_email"
	IntentBatchArchive    Intent = "batch_archive"
	IntentBatchDelete     Intent = "batch_delete"
	IntentBatchForward    Intent = "batch_forward"
	IntentBatchMark       Intent = "batch_mark"
	IntentBatchSummarize  Intent = "batch_summarize"
	IntentGeneralQuery    Intent = "general_query"
	IntentUnknown         Intent = "unknown"
)

// intentNames 意图的中文说明，用于用户可见消息
var intentNames = map[Intent]string{
	IntentListEmails:      "列出邮件",
	IntentSearchEmails:    "搜索邮件",
	IntentReplyEmail:      "回复邮件",
	IntentForwardEmail:    "转发邮件",
	IntentArchiveEmail:    "归档邮件",
	IntentDeleteEmail:     "删除邮件",
	IntentMarkEmail:       "标记邮件",
	IntentSummarizeEmail:  "总结邮件",
	IntentAnalyzePriority: "分析优先级",
	IntentComposeEmail:    "撰写邮件",
	IntentBatchArchive:    "批量归档",
	IntentBatchDelete:     "批量删除",
	IntentBatchForward:    "批量转发",
	IntentBatchMark:       "批量标记",
	IntentBatchSummarize:  "批量总结",
	IntentGeneralQuery:    "自由提问",
	IntentUnknown:         "未知意图",
}

// Description 返回意图的中文说明
func (i Intent) Description() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return "未知意图"
}

// IsBatch 是否为批量意图
func (i Intent) IsBatch() bool {
	switch i {
	case IntentBatchArchive, IntentBatchDelete, IntentBatchForward,
		IntentBatchMark, IntentBatchSummarize:
		return true
	}
	return false
}

// NeedsPreview 是否走预览确认流程（会产生新邮件内容）
func (i Intent) NeedsPreview() bool {
	return i == IntentReplyEmail || i == IntentComposeEmail
}

// Mutates 是否会修改邮箱状态
func (i Intent) Mutates() bool {
	switch i {
	case IntentArchiveEmail, IntentDeleteEmail, IntentMarkEmail, IntentForwardEmail,
		IntentBatchArchive, IntentBatchDelete, IntentBatchForward, IntentBatchMark:
		return true
	}
	return false
}
