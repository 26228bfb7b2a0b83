package generator

import (
	"context"

	"github.com/lLiuRunze/mail-agent/internal/mailer"
)

// PriorityAnalysis 优先级分析结果
type PriorityAnalysis struct {
	Priority        string `json:"priority"` // 高 / 中 / 低
	Urgency         string `json:"urgency"`  // 紧急 / 一般 / 不紧急
	IsImportant     bool   `json:"is_important"`
	SuggestedAction string `json:"suggested_action"`
	Reason          string `json:"reason"`
}

// Generator 内容生成服务边界
// 超时、配额、响应格式错误均以 error 返回，绝不静默丢弃
type Generator interface {
	// GenerateReply 根据原始邮件生成回复正文，tone 为空时采用正式语气
	GenerateReply(ctx context.Context, email *mailer.Email, tone string) (string, error)
	// GenerateCompose 根据描述生成新邮件正文
	GenerateCompose(ctx context.Context, to []string, subject, prompt string) (string, error)
	// Summarize 生成邮件摘要
	Summarize(ctx context.Context, email *mailer.Email) (string, error)
	// AnalyzePriority 分析邮件优先级
	AnalyzePriority(ctx context.Context, email *mailer.Email) (*PriorityAnalysis, error)
	// Answer 回答与邮箱无关的自由提问
	Answer(ctx context.Context, question string) (string, error)
}
