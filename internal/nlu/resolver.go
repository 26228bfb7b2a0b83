package nlu

import (
	"regexp"
	"strconv"
	"strings"
)

// Params 从指令文本解析出的槽位集合
type Params struct {
	EmailID    string   `json:"email_id,omitempty"`   // 显式邮件 ID，优先于序号
	EmailIDs   []string `json:"email_ids,omitempty"`  // 批量显式 ID 列表
	Ordinal    int      `json:"ordinal,omitempty"`    // 用户可见的 1 基序号
	Latest     bool     `json:"latest,omitempty"`     // 最新一封
	Count      int      `json:"count,omitempty"`      // 批量/列表数量
	Scope      Scope    `json:"scope,omitempty"`      // top / recent
	Folder     string   `json:"folder,omitempty"`     // 规范化后的文件夹名
	Recipients []string `json:"recipients,omitempty"` // 收件人地址
	Tone       string   `json:"tone,omitempty"`       // 回复语气
	Query      string   `json:"query,omitempty"`      // 搜索关键词
	Status     string   `json:"status,omitempty"`     // read / unread
	Subject    string   `json:"subject,omitempty"`    // 撰写主题
	Prompt     string   `json:"prompt,omitempty"`     // 撰写/提问的原始描述
}

// HasTarget 是否解析出了单封邮件目标
func (p *Params) HasTarget() bool {
	return p.EmailID != "" || p.Ordinal > 0 || p.Latest
}

// Target 按优先级解析单封目标为邮件 ID：显式 ID > 序号 > 最新
// 序号针对传入的快照解析，快照中不存在时返回 NotFoundError
func (p *Params) Target(snap *Snapshot) (string, error) {
	if p.EmailID != "" {
		return p.EmailID, nil
	}
	if p.Ordinal > 0 {
		return snap.Resolve(p.Ordinal)
	}
	if p.Latest {
		return snap.Latest()
	}
	return "", &ValidationError{Field: "email_id", Reason: "缺少邮件目标"}
}

// Resolver 槽位解析器
type Resolver struct {
	folderAliases map[string]string
}

// NewResolver 创建解析器，folderAliases 为自由文本到规范文件夹名的映射
func NewResolver(folderAliases map[string]string) *Resolver {
	return &Resolver{folderAliases: folderAliases}
}

var (
	emailAddrRe  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}(?:\.[A-Za-z]{2,})?`)
	explicitIDRe = regexp.MustCompile(`邮件(\d+(?:,\d+)*)`)
	ordinalRe    = regexp.MustCompile(`第(\d+)封`)
	latestRe     = regexp.MustCompile(`(?i)最新|最后一封|最近1封|latest`) // 规范化已把 最近一封 改写为 最近1封
	countRe      = regexp.MustCompile(`(\d+)封`)
	folderRe     = regexp.MustCompile(`(?:到|移到|放到)([^\s,]+?)(?:文件夹)?$`)
	toneRe       = regexp.MustCompile(`(?:用|以)(正式|礼貌|随意|轻松|友好|幽默|简洁)(?:的)?(?:语气|口吻|风格)?`)
	queryRe      = regexp.MustCompile(`(?:搜索|查找)(?:关于)?(.+)`)
	queryEnRe    = regexp.MustCompile(`(?i)(?:search|find)\s+(?:for\s+)?(.+)`)
	subjectRe    = regexp.MustCompile(`主题(?:是|为|:)?\s*([^\s,]+)`)
)

// englishOrdinals 英文序数词 → 1 基序号
var englishOrdinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// Resolve 依据意图与命中的规则，从规范化文本中提取槽位
// 缺少意图必需的槽位时返回 ValidationError，不触碰任何协作方
func (r *Resolver) Resolve(n *Normalized, cls Classification) (*Params, error) {
	p := &Params{}
	text := n.Text

	r.extractTargets(text, p)
	r.extractRecipients(text, p)

	if n.Phrase != nil {
		p.Count = n.Phrase.Count
		p.Scope = n.Phrase.Scope
	}

	// 槽位冲突裁决：同一指令同时出现显式 ID 与序号时，显式 ID 胜出，
	// 序号静默丢弃，这不是错误
	if p.EmailID != "" {
		p.Ordinal = 0
		p.Latest = false
	}

	switch cls.Intent {
	case IntentReplyEmail:
		if err := r.requireSingleTarget(p, cls); err != nil {
			return nil, err
		}
		p.Tone = extractTone(text)

	case IntentForwardEmail:
		if err := r.requireSingleTarget(p, cls); err != nil {
			return nil, err
		}
		if len(p.Recipients) == 0 {
			return nil, &ValidationError{Field: "recipients", Reason: "转发需要指定目标邮箱地址"}
		}

	case IntentArchiveEmail:
		// 未指明目标时归档最新一封，与指明文件夹的惯用说法一致
		if !p.HasTarget() {
			p.Latest = true
		}
		p.Folder = r.extractFolder(text)

	case IntentDeleteEmail, IntentSummarizeEmail, IntentAnalyzePriority:
		if err := r.requireSingleTarget(p, cls); err != nil {
			return nil, err
		}

	case IntentMarkEmail:
		if err := r.requireSingleTarget(p, cls); err != nil {
			return nil, err
		}
		p.Status = extractStatus(text)
		if p.Status == "" {
			return nil, &ValidationError{Field: "status", Reason: "标记需要指明已读或未读"}
		}

	case IntentComposeEmail:
		if len(p.Recipients) == 0 {
			return nil, &ValidationError{Field: "recipients", Reason: "撰写邮件需要指定收件人"}
		}
		p.Subject = extractSubject(text)
		p.Prompt = text
		p.Tone = extractTone(text)

	case IntentSearchEmails:
		p.Query = extractQuery(text)
		if p.Query == "" {
			return nil, &ValidationError{Field: "query", Reason: "搜索需要关键词"}
		}

	case IntentListEmails:
		if p.Count == 0 {
			if m := countRe.FindStringSubmatch(text); m != nil {
				p.Count, _ = strconv.Atoi(m[1])
			}
		}
		if p.Count == 0 {
			p.Count = 10
		}
		p.Folder = r.extractFolder(text)

	case IntentBatchArchive, IntentBatchDelete, IntentBatchForward,
		IntentBatchMark, IntentBatchSummarize:
		if err := r.resolveBatch(text, cls.Intent, p); err != nil {
			return nil, err
		}

	case IntentGeneralQuery:
		p.Prompt = text
	}

	return p, nil
}

// extractTargets 提取显式 ID、序号、最新标记
func (r *Resolver) extractTargets(text string, p *Params) {
	var ids []string
	for _, m := range explicitIDRe.FindAllStringSubmatch(text, -1) {
		for _, id := range strings.Split(m[1], ",") {
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	switch len(ids) {
	case 0:
	case 1:
		p.EmailID = ids[0]
	default:
		p.EmailIDs = ids
		p.EmailID = ids[0]
	}

	if m := ordinalRe.FindStringSubmatch(text); m != nil {
		p.Ordinal, _ = strconv.Atoi(m[1])
	} else {
		lower := strings.ToLower(text)
		for word, ord := range englishOrdinals {
			if strings.Contains(lower, word) {
				p.Ordinal = ord
				break
			}
		}
	}

	if latestRe.MatchString(text) {
		p.Latest = true
	}
}

// extractRecipients 提取收件人地址，大小写不敏感去重并保持出现顺序
func (r *Resolver) extractRecipients(text string, p *Params) {
	seen := make(map[string]struct{})
	for _, addr := range emailAddrRe.FindAllString(text, -1) {
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		p.Recipients = append(p.Recipients, addr)
	}
}

// requireSingleTarget 单封意图必须有唯一目标
func (r *Resolver) requireSingleTarget(p *Params, cls Classification) error {
	if len(p.EmailIDs) > 1 {
		// 单封意图出现多个显式 ID，优先级规则无法裁决
		return &AmbiguousReferenceError{
			Reason: cls.Intent.Description() + "只针对一封邮件，但指令包含多个邮件 ID",
		}
	}
	if !p.HasTarget() {
		return &ValidationError{Field: "email_id", Reason: "请指明是哪一封邮件（如 第一封 / 邮件3 / 最新）"}
	}
	return nil
}

// resolveBatch 批量意图需要数量或显式 ID 列表，外加意图各自的必需槽位
func (r *Resolver) resolveBatch(text string, intent Intent, p *Params) error {
	if p.Count == 0 && len(p.EmailIDs) == 0 {
		// 批量 字样但没有 前N封/最近N封 短语时，退而取裸数量
		if m := countRe.FindStringSubmatch(text); m != nil {
			p.Count, _ = strconv.Atoi(m[1])
			p.Scope = ScopeRecent
		}
	}
	if p.Count == 0 && len(p.EmailIDs) == 0 {
		return &ValidationError{Field: "count", Reason: "批量操作需要指定数量或邮件 ID 列表"}
	}
	if p.Count > 0 && p.Scope == "" {
		p.Scope = ScopeRecent
	}

	switch intent {
	case IntentBatchForward:
		if len(p.Recipients) == 0 {
			return &ValidationError{Field: "recipients", Reason: "批量转发需要指定目标邮箱地址"}
		}
	case IntentBatchMark:
		p.Status = extractStatus(text)
		if p.Status == "" {
			return &ValidationError{Field: "status", Reason: "批量标记需要指明已读或未读"}
		}
	case IntentBatchArchive:
		p.Folder = r.extractFolder(text)
	}

	return nil
}

// extractFolder 提取文件夹并经别名表规范化；未命中别名的原样透传，
// 由邮件客户端决定接受或拒绝
func (r *Resolver) extractFolder(text string) string {
	m := folderRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := m[1]
	if canonical, ok := r.folderAliases[name]; ok {
		return canonical
	}
	return name
}

func extractStatus(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(text, "未读") || strings.Contains(lower, "unread"):
		return "unread"
	case strings.Contains(text, "已读") || strings.Contains(lower, "read"):
		return "read"
	}
	return ""
}

func extractTone(text string) string {
	if m := toneRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func extractQuery(text string) string {
	var q string
	if m := queryRe.FindStringSubmatch(text); m != nil {
		q = m[1]
	} else if m := queryEnRe.FindStringSubmatch(text); m != nil {
		q = m[1]
	}
	q = strings.TrimSpace(q)
	q = strings.TrimSuffix(q, "的邮件")
	q = strings.TrimSuffix(q, "邮件")
	return strings.TrimSpace(q)
}

func extractSubject(text string) string {
	if m := subjectRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
