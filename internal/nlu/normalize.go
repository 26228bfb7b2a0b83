package nlu

import (
	"regexp"
	"strconv"
	"strings"
)

// Scope 数量短语的作用域
type Scope string

const (
	ScopeTop    Scope = "top"    // 前 N 封
	ScopeRecent Scope = "recent" // 最近 N 封
)

// NumeralPhrase 数量短语描述符，如 前5封 / 最近10封
type NumeralPhrase struct {
	Count int
	Scope Scope
}

// Normalized 规范化后的指令文本
type Normalized struct {
	Text   string
	Phrase *NumeralPhrase
}

// 全角数字 → 半角
var fullwidthDigits = strings.NewReplacer(
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
)

// 全角标点 → 半角
var fullwidthPunct = strings.NewReplacer(
	"，", ",", "、", ",", "：", ":", "；", ";", "（", "(", "）", ")",
)

var (
	// 带前缀的中文数词短语，如 第一封 / 前三封 / 最近十封
	chineseNumeralRe = regexp.MustCompile(`(第|前|最近)([一二三四五六七八九十两]+)(封|个|条)`)
	topPhraseRe      = regexp.MustCompile(`前(\d+)封`)
	recentPhraseRe   = regexp.MustCompile(`最近(\d+)封`)
)

// Normalize 清洗并分段原始指令文本
// 仅在输入为空或全空白时失败
func Normalize(raw string) (*Normalized, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "指令不能为空"}
	}

	text = fullwidthDigits.Replace(text)
	text = fullwidthPunct.Replace(text)

	// 去除句尾的陈述性标点，保留问号供问句判断
	text = strings.TrimRight(text, "。！!.，,；; ")

	// 中文数词 → 阿拉伯数字（仅限带量词前缀的短语，避免误伤 最后一封 等固定说法）
	text = chineseNumeralRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := chineseNumeralRe.FindStringSubmatch(m)
		n, ok := chineseToInt(sub[2])
		if !ok {
			return m
		}
		return sub[1] + strconv.Itoa(n) + sub[3]
	})

	n := &Normalized{Text: text}

	if m := topPhraseRe.FindStringSubmatch(text); m != nil {
		count, _ := strconv.Atoi(m[1])
		n.Phrase = &NumeralPhrase{Count: count, Scope: ScopeTop}
	} else if m := recentPhraseRe.FindStringSubmatch(text); m != nil {
		count, _ := strconv.Atoi(m[1])
		n.Phrase = &NumeralPhrase{Count: count, Scope: ScopeRecent}
	}

	return n, nil
}

var chineseDigits = map[rune]int{
	'一': 1, '两': 2, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// chineseToInt 解析 1-99 范围的中文数词
func chineseToInt(s string) (int, bool) {
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10, true
		}
		if d, ok := chineseDigits[runes[0]]; ok {
			return d, true
		}
	case 2:
		// 十X 或 X十
		if runes[0] == '十' {
			if d, ok := chineseDigits[runes[1]]; ok {
				return 10 + d, true
			}
		}
		if runes[1] == '十' {
			if d, ok := chineseDigits[runes[0]]; ok {
				return d * 10, true
			}
		}
	case 3:
		// X十Y
		if runes[1] == '十' {
			tens, ok1 := chineseDigits[runes[0]]
			ones, ok2 := chineseDigits[runes[2]]
			if ok1 && ok2 {
				return tens*10 + ones, true
			}
		}
	}
	return 0, false
}
