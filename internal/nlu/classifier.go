package nlu

import "regexp"

// Classification 分类结果
type Classification struct {
	Intent Intent `json:"intent"`
	Rule   string `json:"rule,omitempty"` // 命中的规则名，未命中为空
}

// questionRe 问句特征，未命中规则的文本据此路由到自由提问
var questionRe = regexp.MustCompile(`(?i)[？?]|吗$|什么|怎么|怎样|如何|为什么|多少|哪|^(?:what|how|why|when|who|where|which|can|could|is|are|do|does)\b`)

// Classify 将规范化文本映射到闭合意图枚举
// 规则表自上而下求值，先命中者胜；未命中时问句路由到 general_query，
// 其余归为 unknown，由调用方提示改述。
func Classify(n *Normalized) Classification {
	for _, r := range ruleTable {
		if r.pattern.MatchString(n.Text) {
			return Classification{Intent: r.intent, Rule: r.name}
		}
	}

	if questionRe.MatchString(n.Text) {
		return Classification{Intent: IntentGeneralQuery}
	}

	return Classification{Intent: IntentUnknown}
}
