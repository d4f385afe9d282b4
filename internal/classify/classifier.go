// Package classify turns noisy finalized transcripts into structured
// road-test issue matches.
//
// Five matching strategies run in a fixed precedence order; the first one
// that produces output wins and the rest are skipped:
//
//  1. control command detection (undo/delete phrases)
//  2. direct category matching on normalized text, with a fuzzy
//     single-token fallback
//  3. delimiter-based "类别-描述" keyword recognition
//  4. multi-pattern sub-issue recognition on raw text (may fire several
//     results from one utterance)
//  5. help/question detection and the prompt-for-input fallback
//
// Pattern tables live in patterns.go so new sub-issues are data additions,
// not code branches.
package classify

import (
	"log/slog"
	"strings"
	"unicode"
)

// Classifier is stateless; one instance serves the whole process.
type Classifier struct{}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify maps one finalized transcript to an Outcome. It never returns an
// error: unrecognised input yields a display-only notice.
func (c *Classifier) Classify(text string) Outcome {
	normalized := normalize(text)

	// Empty or punctuation-only input cannot match anything; prompt the
	// tester to speak again.
	if normalized == "" {
		return Outcome{Notice: noticePromptInput, Strategy: StrategyHelp}
	}

	// 1. Control commands suppress all classification.
	for _, re := range controlPatterns {
		if re.MatchString(text) {
			slog.Debug("classify: control command", "text", text)
			return Outcome{Action: ActionDeleteLast, Strategy: StrategyControl}
		}
	}

	// 2. Direct category matching.
	if m, ok := matchDirect(normalized); ok {
		return Outcome{Matches: []Match{m}, Strategy: StrategyDirect}
	}

	// 3. Delimiter-based keyword recognition. Checked before the pattern
	// table: the explicit "类别-描述" dictation form is more specific, and
	// the bare category names inside it would otherwise fire the generic
	// patterns and bury the dictated subtype.
	if matches := matchDelimited(text); len(matches) > 0 {
		return Outcome{Matches: matches, Strategy: StrategyDelimiter}
	}

	// 4. Multi-pattern sub-issue recognition over the raw text.
	if matches := matchSubPatterns(text); len(matches) > 0 {
		return Outcome{Matches: matches, Strategy: StrategyPattern}
	}

	// 5. Help detection.
	for _, g := range helpGroups {
		if g.re.MatchString(text) {
			return Outcome{Notice: g.answer, Strategy: StrategyHelp}
		}
	}

	slog.Debug("classify: no keyword recognized", "text", text)
	return Outcome{Notice: noticeNoKeyword, Strategy: StrategyNone}
}

// matchDirect tests the normalized utterance against the category
// vocabulary in priority order. The utterance matches when it equals a
// canonical label or synonym, when it is a fragment of the canonical label,
// or — as a fuzzy fallback — when it is a short token containing the
// category keyword. Returns at most one match.
func matchDirect(normalized string) (Match, bool) {
	for _, cat := range categories {
		if normalized == cat.canonical {
			return directMatch(cat), true
		}
		for _, syn := range cat.synonyms {
			if normalized == syn {
				return directMatch(cat), true
			}
		}
		// A fragment of the label, e.g. "安全接" mid-sentence cutoff.
		if len([]rune(normalized)) >= 2 && strings.Contains(cat.canonical, normalized) {
			return directMatch(cat), true
		}
	}
	// Fuzzy fallback: a short single-token utterance carrying the category
	// keyword, e.g. bare "安全".
	for _, cat := range categories {
		runes := []rune(normalized)
		if len(runes) >= 2 && len(runes) <= len([]rune(cat.canonical)) && strings.Contains(normalized, cat.keyword) {
			return directMatch(cat), true
		}
	}
	return Match{}, false
}

func directMatch(cat category) Match {
	return Match{Type: cat.typ, SubType: cat.canonical, MatchedText: cat.canonical}
}

// matchSubPatterns runs the full sub-issue pattern table against the raw
// text. Every pattern that matches anywhere contributes one result.
func matchSubPatterns(text string) []Match {
	var matches []Match
	for _, p := range subPatterns {
		if span := p.re.FindString(text); span != "" {
			matches = append(matches, Match{Type: p.typ, SubType: p.subType, MatchedText: span})
		}
	}
	return matches
}

// matchDelimited scans for the literal "<类别>-<自由文本>" forms. Every
// non-empty capture contributes a result with the captured text as subType.
func matchDelimited(text string) []Match {
	var matches []Match
	for _, d := range delimiterPatterns {
		for _, m := range d.re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 || m[1] == "" {
				continue
			}
			matches = append(matches, Match{Type: d.typ, SubType: m[1], MatchedText: m[0]})
		}
	}
	return matches
}

// normalize strips all whitespace, punctuation and symbol runes and
// lower-cases the rest, so dictation artifacts ("安全 接管。") don't defeat
// direct matching.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
