package classify

// IssueType is the closed set of road-test issue categories.
type IssueType string

const (
	SafetyTakeover     IssueType = "safety_takeover"
	EfficiencyTakeover IssueType = "efficiency_takeover"
	ExperienceIssue    IssueType = "experience_issue"
)

// Label returns the spoken-language category label testers actually say.
func (t IssueType) Label() string {
	switch t {
	case SafetyTakeover:
		return "安全接管"
	case EfficiencyTakeover:
		return "效率接管"
	case ExperienceIssue:
		return "体验问题"
	default:
		return string(t)
	}
}

// IsValid reports whether t is a recognised issue type.
func (t IssueType) IsValid() bool {
	switch t {
	case SafetyTakeover, EfficiencyTakeover, ExperienceIssue:
		return true
	}
	return false
}

// Match is one structured classification result extracted from a transcript.
type Match struct {
	// Type is the issue category.
	Type IssueType

	// SubType is a short free-form label for the specific sub-issue
	// (e.g. "压线", "重刹"). For direct category matches it equals the
	// category label.
	SubType string

	// MatchedText is the verbatim span of the transcript that produced this
	// match.
	MatchedText string
}

// Action signals a control command detected in the transcript.
type Action int

const (
	// ActionNone means no control command was detected.
	ActionNone Action = iota

	// ActionDeleteLast requests removal of the most recently logged record.
	ActionDeleteLast
)

// Strategy identifies which matching stage produced an outcome. Strategies
// run in a fixed precedence order and the first one that fires wins.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyControl
	StrategyDirect
	StrategyPattern
	StrategyDelimiter
	StrategyHelp
)

// String returns the strategy name for logs.
func (s Strategy) String() string {
	switch s {
	case StrategyControl:
		return "control"
	case StrategyDirect:
		return "direct"
	case StrategyPattern:
		return "pattern"
	case StrategyDelimiter:
		return "delimiter"
	case StrategyHelp:
		return "help"
	default:
		return "none"
	}
}

// Outcome is the tagged result of classifying one finalized transcript.
// Exactly one of the following holds:
//
//   - Action == ActionDeleteLast: control command, no matches.
//   - len(Matches) > 0: one or more records to log.
//   - Notice != "": display-only text (help answer, prompt-for-input, or the
//     no-keyword message). Never stored.
type Outcome struct {
	Matches  []Match
	Action   Action
	Notice   string
	Strategy Strategy
}
