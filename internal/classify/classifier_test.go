package classify

import (
	"testing"
)

func TestClassify_ControlCommand(t *testing.T) {
	t.Parallel()

	c := New()
	for _, text := range []string{"删除上一条", "删掉上一条", "删除上一个", "撤销", "撤回刚才那条"} {
		out := c.Classify(text)
		if out.Action != ActionDeleteLast {
			t.Errorf("Classify(%q).Action = %v, want ActionDeleteLast", text, out.Action)
		}
		if len(out.Matches) != 0 {
			t.Errorf("Classify(%q) produced matches %v, want none", text, out.Matches)
		}
		if out.Strategy != StrategyControl {
			t.Errorf("Classify(%q).Strategy = %v, want StrategyControl", text, out.Strategy)
		}
	}
}

func TestClassify_DirectCategory(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		text     string
		wantType IssueType
		wantSub  string
	}{
		{"安全接管", SafetyTakeover, "安全接管"},
		{"安全接管。", SafetyTakeover, "安全接管"}, // trailing punctuation stripped
		{"安全问题", SafetyTakeover, "安全接管"},  // synonym maps to canonical
		{"效率接管", EfficiencyTakeover, "效率接管"},
		{"效率问题", EfficiencyTakeover, "效率接管"},
		{"体验问题", ExperienceIssue, "体验问题"},
		{"体验不好", ExperienceIssue, "体验问题"},
		{"安全", SafetyTakeover, "安全接管"}, // fuzzy short token
	}
	for _, tt := range tests {
		out := c.Classify(tt.text)
		if len(out.Matches) != 1 {
			t.Errorf("Classify(%q) = %d matches, want 1", tt.text, len(out.Matches))
			continue
		}
		m := out.Matches[0]
		if m.Type != tt.wantType || m.SubType != tt.wantSub {
			t.Errorf("Classify(%q) = (%v, %q), want (%v, %q)", tt.text, m.Type, m.SubType, tt.wantType, tt.wantSub)
		}
	}
}

func TestClassify_DelimitedPair(t *testing.T) {
	t.Parallel()

	c := New()
	out := c.Classify("安全接管-压线，效率接管-卡死")
	if out.Strategy != StrategyDelimiter {
		t.Fatalf("Strategy = %v, want StrategyDelimiter", out.Strategy)
	}
	if len(out.Matches) != 2 {
		t.Fatalf("got %d matches, want 2: %v", len(out.Matches), out.Matches)
	}
	if out.Matches[0].Type != SafetyTakeover || out.Matches[0].SubType != "压线" {
		t.Errorf("first match = (%v, %q), want (SafetyTakeover, 压线)", out.Matches[0].Type, out.Matches[0].SubType)
	}
	if out.Matches[1].Type != EfficiencyTakeover || out.Matches[1].SubType != "卡死" {
		t.Errorf("second match = (%v, %q), want (EfficiencyTakeover, 卡死)", out.Matches[1].Type, out.Matches[1].SubType)
	}
}

func TestClassify_DelimitedFullwidthDash(t *testing.T) {
	t.Parallel()

	c := New()
	out := c.Classify("体验问题－颠簸得厉害")
	if len(out.Matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(out.Matches))
	}
	if out.Matches[0].Type != ExperienceIssue || out.Matches[0].SubType != "颠簸得厉害" {
		t.Errorf("match = (%v, %q), want (ExperienceIssue, 颠簸得厉害)", out.Matches[0].Type, out.Matches[0].SubType)
	}
}

func TestClassify_MultiPattern(t *testing.T) {
	t.Parallel()

	c := New()
	out := c.Classify("车子画龙又重刹")
	if out.Strategy != StrategyPattern {
		t.Fatalf("Strategy = %v, want StrategyPattern", out.Strategy)
	}
	if len(out.Matches) != 2 {
		t.Fatalf("got %d matches, want 2: %v", len(out.Matches), out.Matches)
	}
	for _, m := range out.Matches {
		if m.Type != ExperienceIssue {
			t.Errorf("match %q has type %v, want ExperienceIssue", m.SubType, m.Type)
		}
	}
	if out.Matches[0].SubType != "画龙" || out.Matches[1].SubType != "重刹" {
		t.Errorf("subtypes = (%q, %q), want (画龙, 重刹)", out.Matches[0].SubType, out.Matches[1].SubType)
	}
}

func TestClassify_PatternAliases(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		text     string
		wantType IssueType
		wantSub  string
	}{
		{"突然急刹车了", ExperienceIssue, "重刹"},
		{"猛加速吓我一跳", ExperienceIssue, "急加速"},
		{"方向盘重得很", ExperienceIssue, "转向重"},
		{"车卡死不动了", EfficiencyTakeover, "卡死"},
		{"开得实在太慢", EfficiencyTakeover, "速度过慢"},
		{"走的路线错误了", EfficiencyTakeover, "路径错误"},
		{"差点撞上护栏", SafetyTakeover, "碰撞风险"},
		{"它又逆行了", SafetyTakeover, "逆行"},
		{"直接闯红灯", SafetyTakeover, "闯红灯"},
	}
	for _, tt := range tests {
		out := c.Classify(tt.text)
		if len(out.Matches) != 1 {
			t.Errorf("Classify(%q) = %d matches, want 1", tt.text, len(out.Matches))
			continue
		}
		m := out.Matches[0]
		if m.Type != tt.wantType || m.SubType != tt.wantSub {
			t.Errorf("Classify(%q) = (%v, %q), want (%v, %q)", tt.text, m.Type, m.SubType, tt.wantType, tt.wantSub)
		}
	}
}

func TestClassify_EmptyInput(t *testing.T) {
	t.Parallel()

	c := New()
	for _, text := range []string{"", "。，", "  ", "！？"} {
		out := c.Classify(text)
		if out.Notice != noticePromptInput {
			t.Errorf("Classify(%q).Notice = %q, want %q", text, out.Notice, noticePromptInput)
		}
		if len(out.Matches) != 0 || out.Action != ActionNone {
			t.Errorf("Classify(%q) produced matches or action, want notice only", text)
		}
	}
}

func TestClassify_HelpQuestions(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		text string
		want string
	}{
		{"这个怎么用", helpGroups[0].answer},
		{"有哪些类别", helpGroups[1].answer},
		{"怎么开始测试", helpGroups[2].answer},
		{"我该怎么说", helpGroups[3].answer},
	}
	for _, tt := range tests {
		out := c.Classify(tt.text)
		if out.Notice != tt.want {
			t.Errorf("Classify(%q).Notice = %q, want %q", tt.text, out.Notice, tt.want)
		}
		if out.Strategy != StrategyHelp {
			t.Errorf("Classify(%q).Strategy = %v, want StrategyHelp", tt.text, out.Strategy)
		}
	}
}

func TestClassify_NoKeyword(t *testing.T) {
	t.Parallel()

	c := New()
	out := c.Classify("今天天气不错")
	if out.Notice != noticeNoKeyword {
		t.Errorf("Notice = %q, want %q", out.Notice, noticeNoKeyword)
	}
	if len(out.Matches) != 0 {
		t.Errorf("got matches %v, want none", out.Matches)
	}
}

func TestClassify_ControlBeatsCategory(t *testing.T) {
	t.Parallel()

	// An utterance carrying both an undo phrase and a category keyword must
	// trigger the undo, never a record.
	c := New()
	out := c.Classify("撤销那条安全接管")
	if out.Action != ActionDeleteLast {
		t.Errorf("Action = %v, want ActionDeleteLast", out.Action)
	}
	if len(out.Matches) != 0 {
		t.Errorf("got matches %v, want none", out.Matches)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"安全 接管。", "安全接管"},
		{"ABC！def", "abcdef"},
		{"。，！？", ""},
		{"效率-接管", "效率接管"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIssueType_Label(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  IssueType
		want string
	}{
		{SafetyTakeover, "安全接管"},
		{EfficiencyTakeover, "效率接管"},
		{ExperienceIssue, "体验问题"},
	}
	for _, tt := range tests {
		if got := tt.typ.Label(); got != tt.want {
			t.Errorf("%v.Label() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
