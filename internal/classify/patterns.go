package classify

import "regexp"

// controlPatterns detect undo/delete voice commands. Matching any of these
// anywhere in the transcript triggers ActionDeleteLast and suppresses all
// classification.
var controlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`删除上一条`),
	regexp.MustCompile(`删掉上一条`),
	regexp.MustCompile(`删除上一个`),
	regexp.MustCompile(`撤销`),
	regexp.MustCompile(`撤回`),
}

// category holds the direct-matching vocabulary for one issue type.
// Categories are tested in slice order; SafetyTakeover has the highest
// priority.
type category struct {
	typ IssueType

	// canonical is the full spoken label, already in normalized form.
	canonical string

	// synonyms are alternative full labels, normalized.
	synonyms []string

	// keyword is the distinguishing token for the fuzzy fallback: a
	// normalized utterance of at least two characters containing only this
	// token still counts as the category.
	keyword string
}

var categories = []category{
	{typ: SafetyTakeover, canonical: "安全接管", synonyms: []string{"安全问题"}, keyword: "安全"},
	{typ: EfficiencyTakeover, canonical: "效率接管", synonyms: []string{"效率问题"}, keyword: "效率"},
	{typ: ExperienceIssue, canonical: "体验问题", synonyms: []string{"体验不好"}, keyword: "体验"},
}

// subPattern maps one regex to a named sub-issue. Patterns run against the
// raw (non-normalized) transcript; every pattern that matches contributes a
// result, so one utterance can produce several records across categories.
type subPattern struct {
	typ     IssueType
	subType string
	re      *regexp.Regexp
}

var subPatterns = []subPattern{
	// Experience issues.
	{ExperienceIssue, "画龙", regexp.MustCompile(`画龙`)},
	{ExperienceIssue, "重刹", regexp.MustCompile(`重刹|急刹`)},
	{ExperienceIssue, "急加速", regexp.MustCompile(`急加速|猛加速`)},
	{ExperienceIssue, "颠簸", regexp.MustCompile(`颠簸`)},
	{ExperienceIssue, "转向重", regexp.MustCompile(`转向重|方向盘重`)},

	// Efficiency takeovers.
	{EfficiencyTakeover, "卡死", regexp.MustCompile(`卡死不动|卡死`)},
	{EfficiencyTakeover, "速度过慢", regexp.MustCompile(`速度过慢|太慢`)},
	{EfficiencyTakeover, "反应迟钝", regexp.MustCompile(`反应迟钝`)},
	{EfficiencyTakeover, "路径错误", regexp.MustCompile(`路径错误|路线错误`)},
	{EfficiencyTakeover, "效率接管", regexp.MustCompile(`效率接管`)},

	// Safety takeovers.
	{SafetyTakeover, "碰撞风险", regexp.MustCompile(`碰撞风险|要碰撞|差点撞`)},
	{SafetyTakeover, "压线", regexp.MustCompile(`压线`)},
	{SafetyTakeover, "逆行", regexp.MustCompile(`逆行`)},
	{SafetyTakeover, "闯红灯", regexp.MustCompile(`闯红灯`)},
	{SafetyTakeover, "安全接管", regexp.MustCompile(`安全接管`)},
}

// delimiterPatterns recognise the explicit "<类别>-<子项>" dictation form,
// with either the ASCII hyphen or the fullwidth dash. The capture group is
// any run of characters excluding punctuation and whitespace.
var delimiterPatterns = []struct {
	typ IssueType
	re  *regexp.Regexp
}{
	{SafetyTakeover, regexp.MustCompile(`安全接管[-－]([^，。！？、\s,.!?;；\-－]+)`)},
	{EfficiencyTakeover, regexp.MustCompile(`效率接管[-－]([^，。！？、\s,.!?;；\-－]+)`)},
	{ExperienceIssue, regexp.MustCompile(`体验问题[-－]([^，。！？、\s,.!?;；\-－]+)`)},
}

// helpGroup is one family of help-seeking phrases and the answer shown for it.
type helpGroup struct {
	re     *regexp.Regexp
	answer string
}

var helpGroups = []helpGroup{
	{
		re:     regexp.MustCompile(`怎么用|如何使用|怎么使用|使用方法`),
		answer: "直接说出问题即可记录，例如“安全接管”或“体验问题-颠簸”。说“删除上一条”可以撤销。",
	},
	{
		re:     regexp.MustCompile(`有哪些类别|什么类别|哪些类型|什么类型`),
		answer: "支持三个类别：安全接管、效率接管、体验问题。",
	},
	{
		re:     regexp.MustCompile(`怎么开始|如何开始`),
		answer: "点击开始测试后直接说话即可，系统会自动识别并记录。",
	},
	{
		re:     regexp.MustCompile(`怎么说|说什么|怎样描述`),
		answer: "可以直接说类别名，也可以用“类别-描述”的格式，例如“效率接管-卡死”。",
	},
}

// User-facing notices returned through the display side channel.
const (
	noticePromptInput = "没有听清，请再说一遍"
	noticeNoKeyword   = "未识别到关键词"
)
