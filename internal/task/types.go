package task

import (
	"errors"

	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/nlu"
)

// 错误种类，用于结构化结果中的 error_kind 字段
const (
	KindParseError = "parse_error"
	KindValidation = "validation_error"
	KindAmbiguous  = "ambiguous_reference"
	KindNotFound   = "not_found"
	KindUpstream   = "upstream_failure"
)

// ExecutionResult 指令执行结果
type ExecutionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

// BatchItem 批量操作中单项的结果
type BatchItem struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchResult 批量操作的聚合结果，无论部分失败与否始终完整上报
type BatchResult struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

// DraftType 预览草稿类型
type DraftType string

const (
	DraftReply   DraftType = "reply"
	DraftCompose DraftType = "compose"
)

// PreviewDraft 待确认的邮件草稿
// 核心在返回后不保留任何草稿状态：草稿由调用方持有，确认时完整传回，
// 发送的正文就是传回的正文（可能已被用户编辑）
type PreviewDraft struct {
	ID            string    `json:"id"`
	Type          DraftType `json:"type"`
	Account       string    `json:"account"`
	To            []string  `json:"to"`
	Subject       string    `json:"subject"`
	Content       string    `json:"content"`
	SourceEmailID string    `json:"source_email_id,omitempty"`
}

// Outcome 一次指令处理的完整产出
type Outcome struct {
	TraceID string           `json:"trace_id"`
	Intent  nlu.Intent       `json:"intent"`
	Params  *nlu.Params      `json:"parameters,omitempty"`
	Result  *ExecutionResult `json:"result"`
	Preview *PreviewDraft    `json:"preview,omitempty"`
}

// resultFromError 将错误分类映射为结构化结果
// 核心对外只返回结构化结果，不向外抛错
func resultFromError(err error) *ExecutionResult {
	res := &ExecutionResult{Success: false, Error: err.Error(), Message: err.Error()}

	var parseErr *nlu.ParseError
	var validationErr *nlu.ValidationError
	var ambiguousErr *nlu.AmbiguousReferenceError
	var notFoundErr *nlu.NotFoundError
	var upstreamErr *nlu.UpstreamError

	switch {
	case errors.As(err, &parseErr):
		res.Kind = KindParseError
	case errors.As(err, &validationErr):
		res.Kind = KindValidation
	case errors.As(err, &ambiguousErr):
		res.Kind = KindAmbiguous
	case errors.As(err, &notFoundErr), errors.Is(err, mailer.ErrNotFound):
		res.Kind = KindNotFound
	case errors.As(err, &upstreamErr):
		res.Kind = KindUpstream
	default:
		res.Kind = KindUpstream
	}

	return res
}
