package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lLiuRunze/mail-agent/internal/config"
	"github.com/lLiuRunze/mail-agent/internal/logger"
	"github.com/lLiuRunze/mail-agent/internal/mailer"
	"github.com/lLiuRunze/mail-agent/internal/metrics"
)

// DeepSeekClient 基于 DeepSeek chat-completions 接口的生成器
type DeepSeekClient struct {
	apiURL     string
	apiKey     string
	model      string
	maxRetries int

	replyTemp        float64
	replyMaxTokens   int
	summaryMaxTokens int

	httpClient *http.Client
	metrics    *metrics.Exporter
}

// NewDeepSeekClient 创建生成器客户端，metrics 可为 nil
func NewDeepSeekClient(cfg config.GeneratorConfig, m *metrics.Exporter) *DeepSeekClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DeepSeekClient{
		apiURL:           cfg.APIURL,
		apiKey:           cfg.APIKey,
		model:            cfg.Model,
		maxRetries:       cfg.MaxRetries,
		replyTemp:        cfg.ReplyTemp,
		replyMaxTokens:   cfg.ReplyMaxTokens,
		summaryMaxTokens: cfg.SummaryMaxTokens,
		httpClient:       &http.Client{Timeout: timeout},
		metrics:          m,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete 调用 chat-completions 接口
// 限流和服务端错误按指数退避重试，其余错误直接返回
func (c *DeepSeekClient) complete(ctx context.Context, messages []chatMessage, temperature float64, maxTokens int) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.ObserveGeneratorRetry()
			}
			wait := time.Duration(1<<uint(attempt-1)) * 2 * time.Second
			logger.WarnCtx(ctx).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("生成接口重试")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, retryable, err := c.doRequest(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("生成接口在 %d 次重试后仍然失败: %w", c.maxRetries, lastErr)
}

// doRequest 单次请求，第二个返回值表示错误是否可重试
func (c *DeepSeekClient) doRequest(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("请求生成接口失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("读取响应失败: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("生成接口限流 (429)")
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("生成接口服务端错误 (%d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("生成接口返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("解析响应失败: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("生成接口报错: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("生成接口返回空结果")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}

// emailContext 把邮件拼成提示词里的上下文
func emailContext(email *mailer.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "发件人：%s <%s>\n", email.FromName, email.From)
	fmt.Fprintf(&b, "主题：%s\n", email.Subject)
	fmt.Fprintf(&b, "正文：\n%s", email.Body)
	return b.String()
}

// GenerateReply 生成回复正文
func (c *DeepSeekClient) GenerateReply(ctx context.Context, email *mailer.Email, tone string) (string, error) {
	toneLine := "语气要专业礼貌"
	if tone != "" {
		toneLine = "语气要" + tone
	}
	prompt := fmt.Sprintf(`请根据以下邮件内容生成一封回复邮件：

原始邮件：
%s

要求：
1. 回复要简洁明了
2. %s
3. 直接给出回复内容，不需要添加"回复："等前缀
4. 不需要包含发件人、收件人等邮件头信息`, emailContext(email), toneLine)

	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: "你是一个专业的邮件助手，擅长撰写得体的邮件回复。"},
		{Role: "user", Content: prompt},
	}, c.replyTemp, c.replyMaxTokens)
}

// GenerateCompose 根据描述生成新邮件正文
func (c *DeepSeekClient) GenerateCompose(ctx context.Context, to []string, subject, prompt string) (string, error) {
	p := fmt.Sprintf(`请根据以下描述撰写一封邮件的正文：

收件人：%s
主题：%s
描述：%s

要求：
1. 正文要完整得体
2. 直接给出正文内容，不需要邮件头信息`, strings.Join(to, ", "), subject, prompt)

	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: "你是一个专业的邮件助手，擅长撰写得体的邮件。"},
		{Role: "user", Content: p},
	}, c.replyTemp, c.replyMaxTokens)
}

// Summarize 生成邮件摘要
func (c *DeepSeekClient) Summarize(ctx context.Context, email *mailer.Email) (string, error) {
	prompt := fmt.Sprintf(`请用一到两句话总结以下邮件的核心内容：

邮件内容：
%s

要求：
1. 摘要要简洁明了
2. 突出重点信息
3. 不超过100字`, emailContext(email))

	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: "你是一个专业的文本摘要助手。"},
		{Role: "user", Content: prompt},
	}, 0.3, c.summaryMaxTokens)
}

// AnalyzePriority 分析邮件优先级，响应按 JSON 解析
func (c *DeepSeekClient) AnalyzePriority(ctx context.Context, email *mailer.Email) (*PriorityAnalysis, error) {
	prompt := fmt.Sprintf(`请分析以下邮件的优先级和紧急程度，并以JSON格式返回结果：

%s

请返回以下信息（必须是有效的JSON格式）：
{
    "priority": "优先级（高/中/低）",
    "urgency": "紧急程度（紧急/一般/不紧急）",
    "is_important": true/false,
    "reason": "判断理由",
    "suggested_action": "建议的处理方式"
}`, emailContext(email))

	raw, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: "你是一个专业的邮件优先级分析助手。"},
		{Role: "user", Content: prompt},
	}, 0.3, 200)
	if err != nil {
		return nil, err
	}

	analysis, err := parsePriorityJSON(raw)
	if err != nil {
		logger.WarnCtx(ctx).Err(err).Msg("优先级分析响应解析失败，使用默认值")
		return &PriorityAnalysis{
			Priority:        "中",
			Urgency:         "一般",
			IsImportant:     false,
			SuggestedAction: "正常处理",
			Reason:          "无法解析分析结果",
		}, nil
	}
	return analysis, nil
}

// parsePriorityJSON 模型偶尔会在 JSON 外包一段说明文字，
// 取第一个 { 到最后一个 } 之间的片段解析
func parsePriorityJSON(raw string) (*PriorityAnalysis, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("响应中没有 JSON 对象")
	}

	var analysis PriorityAnalysis
	if err := json.Unmarshal([]byte(raw[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("解析优先级 JSON 失败: %w", err)
	}
	return &analysis, nil
}

// Answer 回答自由提问
func (c *DeepSeekClient) Answer(ctx context.Context, question string) (string, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: "你是一个友好的邮件助手，可以回答用户的各种问题。"},
		{Role: "user", Content: question},
	}, 0.7, 500)
}
