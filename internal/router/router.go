// Package router classifies user input into an intent category before any
// model call happens. Classification is a pure function over the text:
// keyword lists first, shape heuristics second, a safe default last.
package router

import (
	"strings"
	"unicode/utf8"
)

// Category is the routed intent of one user input.
type Category string

const (
	// LongRunning is recurring or deferred work that belongs to the
	// scheduler ("every morning", "remind me in an hour").
	LongRunning Category = "LONG_RUNNING"
	// ToolTask is a one-shot action request that will need a capability
	// ("send", "post", "remember this").
	ToolTask Category = "TOOL_TASK"
	// ResearchTask needs fresh outside information ("search", "latest").
	ResearchTask Category = "RESEARCH_TASK"
	// SimpleQA is a short direct question answerable from model knowledge.
	SimpleQA Category = "SIMPLE_QA"
	// ComplexReasoning is everything else: long, open-ended, multi-part.
	ComplexReasoning Category = "COMPLEX_REASONING"
)

// simpleQAMaxLen is the longest input still considered a quick question.
const simpleQAMaxLen = 120

// Keyword sets are checked in precedence order. Scheduling phrasing often
// overlaps with tool phrasing ("every day, send a message"), so the
// long-running set is checked first and wins the tie.
var longRunningKeywords = []string{
	"every day", "every morning", "every evening", "every night",
	"every hour", "every week", "every month", "every monday",
	"daily", "weekly", "hourly", "monthly",
	"recurring", "periodically", "schedule", "cron",
	"remind me in", "remind me at", "remind me every",
	"each morning", "each day", "from now on", "keep checking",
}

var toolKeywords = []string{
	"send", "post", "message", "email",
	"remember", "reminder", "remind",
	"note down", "write down", "save this",
	"telegram", "slack", "discord", "whatsapp",
	"set a timer", "add to my",
}

var researchKeywords = []string{
	"search", "look up", "browse", "google", "find out",
	"latest", "current", "recent", "news", "today's",
	"what's happening", "right now", "this week",
	"price of", "weather", "stock",
}

var questionStarters = []string{
	"what", "who", "when", "where", "why", "how", "which", "whose",
	"is", "are", "was", "were", "do", "does", "did",
	"can", "could", "will", "would", "should", "shall",
	"has", "have", "had", "am",
}

// Classify maps input text to its intent category. First match wins.
func Classify(input string) Category {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" {
		return SimpleQA
	}

	if matchesAny(lower, longRunningKeywords) {
		return LongRunning
	}
	if matchesAny(lower, toolKeywords) {
		return ToolTask
	}
	if matchesAny(lower, researchKeywords) {
		return ResearchTask
	}
	if looksLikeQuestion(lower) {
		return SimpleQA
	}
	return ComplexReasoning
}

func matchesAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// looksLikeQuestion reports whether short input reads as a direct question:
// it ends with a question mark or opens with a question word or auxiliary
// verb.
func looksLikeQuestion(lower string) bool {
	if utf8.RuneCountInString(lower) > simpleQAMaxLen {
		return false
	}
	if strings.HasSuffix(lower, "?") {
		return true
	}
	first, _, _ := strings.Cut(lower, " ")
	for _, starter := range questionStarters {
		if first == starter {
			return true
		}
	}
	return false
}
