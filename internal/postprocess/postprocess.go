// Package postprocess removes common LLM artifacts from generated rewrites.
//
// Single-answer output is cleaned with Clean. Multi-answer output is broken
// into individual questions with SplitRewrites, which cleans every line.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes LLM artifacts from text and returns the trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Quote wrapping removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// SplitRewrites splits multi-line output into one rewrite per line. Thinking
// blocks and a leading intro are removed from the whole text first, then
// every line loses its list marker and is passed through Clean. Blank lines
// and exact duplicates are dropped.
func SplitRewrites(text string) []string {
	var out []string
	seen := make(map[string]bool)
	text = removeInstructionEchoes(removeThinkingBlocks(text))
	for _, line := range strings.Split(text, "\n") {
		line = Clean(listMarkerRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}

// listMarkerRe matches "1.", "2)", "-", "*" and "•" list prefixes.
var listMarkerRe = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s+`)

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// RE2 has no backreferences, so each tag pair is listed.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs prepend even when told
// not to. All are anchored to the start; the list intros require a colon.
var echoPatterns = []*regexp.Regexp{
	// "Certainly! / Sure, / Of course."
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]\s*`),
	// "Here are / Here's [the] [N] [different] [rewritten] questions:"
	regexp.MustCompile(`(?i)^here(?:'s| is| are)(?: the)?(?: \d+| some| a few)?(?: different| alternative)?(?: rewritten| reworded| paraphrased)? (?:rewrites?|paraphrases?|questions?|versions?|ways)[^:\n]*:`),
	// "[The] rewritten question[s]:" / "Paraphrases:"
	regexp.MustCompile(`(?i)^(?:the )?(?:rewritten |reworded |paraphrased )?(?:rewrites?|paraphrases?|questions?)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: quote wrapping ---

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them. Supported pairs:
//
//	"…"  '…'  «…»  "…"  '…'
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}
