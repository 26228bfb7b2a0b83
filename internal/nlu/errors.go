package nlu

import "fmt"

// ParseError 文本未命中任何意图规则
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("无法识别指令: %s", e.Input)
}

// ValidationError 缺少必需参数或输入非法，在调用任何协作方之前拒绝
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("参数 %s 无效: %s", e.Field, e.Reason)
}

// AmbiguousReferenceError 指令中存在优先级规则无法裁决的冲突引用
type AmbiguousReferenceError struct {
	Reason string
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("指令引用不明确: %s", e.Reason)
}

// NotFoundError 解析出的邮件序号或 ID 已不存在
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("未找到邮件: %s", e.Ref)
}

// UpstreamError 邮件客户端或内容生成服务调用失败
type UpstreamError struct {
	Collaborator string // mailer, generator
	Op           string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s 失败: %v", e.Collaborator, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
