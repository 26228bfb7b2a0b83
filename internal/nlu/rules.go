package nlu

import "regexp"

// rule 分类规则：正则 + 意图，按表序自上而下求值，先命中者胜
type rule struct {
	name    string
	pattern *regexp.Regexp
	intent  Intent
}

// batchShape 批量指令的形态：前N封 / 最近N封 / 批量 / 邮件ID列表
const batchShape = `(?:(?:前|最近)\d+封|批量|邮件\d+(?:,\d+)+)`

// batchPattern 动词与批量形态可以任意先后出现
func batchPattern(verb string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + verb + `.*` + batchShape + `|` + batchShape + `.*` + verb)
}

func singlePattern(verb string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + verb)
}

// ruleTable 有序规则表
// 批量形态的规则必须先于单封规则，否则 归档前5封 会被误读为对某一封的引用；
// 同理 标记前10封为已读 必须先于 mark_email 命中 batch_mark。
var ruleTable = []rule{
	// 批量规则
	{"batch_summarize", batchPattern(`(?:总结|摘要|概括|summar)`), IntentBatchSummarize},
	{"batch_mark", batchPattern(`(?:标记|标为|已读|未读|mark)`), IntentBatchMark},
	{"batch_forward", batchPattern(`(?:转发|转给|forward)`), IntentBatchForward},
	{"batch_archive", batchPattern(`(?:归档|存档|archive)`), IntentBatchArchive},
	{"batch_delete", batchPattern(`(?:删除|删掉|移除|delete|remove)`), IntentBatchDelete},

	// 单封规则
	{"reply_email", singlePattern(`回复|回信|答复|reply`), IntentReplyEmail},
	{"forward_email", singlePattern(`转发|转给|forward`), IntentForwardEmail},
	{"archive_email", singlePattern(`归档|存档|archive`), IntentArchiveEmail},
	{"delete_email", singlePattern(`删除|删掉|移除|delete|remove`), IntentDeleteEmail},
	{"mark_email", singlePattern(`标记|标为|已读|未读|mark`), IntentMarkEmail},
	{"summarize_email", singlePattern(`总结|摘要|概括|summar`), IntentSummarizeEmail},
	{"analyze_priority", singlePattern(`优先级|紧急|重要|priority|urgent`), IntentAnalyzePriority},
	{"compose_email", singlePattern(`写(?:一封)?(?:新)?邮件|发(?:一封)?(?:新)?邮件|新邮件|compose`), IntentComposeEmail},
	{"search_emails", singlePattern(`搜索|查找|search|find`), IntentSearchEmails},
	{"list_emails", singlePattern(`列出|显示|查看.*邮件|list|show`), IntentListEmails},
}
