// Package workspace assembles team and project snapshots for prompt composition.
package workspace

import (
	"strings"
	"unicode"
)

// Level selects how much workspace data a snapshot includes.
type Level string

// Context levels, from cheapest to most complete.
const (
	LevelMinimal    Level = "minimal"
	LevelScheduling Level = "scheduling"
	LevelBacklog    Level = "backlog"
	LevelFull       Level = "full"
)

// Includes reports whether a snapshot at l contains the sections of other.
func (l Level) Includes(other Level) bool {
	if l == LevelFull || l == other || other == LevelMinimal {
		return true
	}
	return false
}

var (
	fullKeywords = []string{
		"everything", "full overview", "full picture", "complete picture",
		"complete overview", "all details", "full report", "whole team",
		"big picture", "status report",
	}
	schedulingKeywords = []string{
		"schedule", "capacity", "availab", "time off", "time-off", "vacation",
		"pto", "holiday", "sprint", "this week", "next week", "deadline",
		"due", "workload", "overload", "calendar", "assign", "bandwidth",
		"who can", "who has time",
	}
	backlogKeywords = []string{
		"backlog", "task", "ticket", "story", "stories", "priorit", "epic",
		"todo", "unassigned", "groom", "refine",
	}
)

// Classify picks the context level a message needs using keyword sets.
// Priority: full > scheduling > backlog > minimal.
func Classify(message string) Level {
	text := normalize(message)
	switch {
	case containsAny(text, fullKeywords):
		return LevelFull
	case containsAny(text, schedulingKeywords):
		return LevelScheduling
	case containsAny(text, backlogKeywords):
		return LevelBacklog
	default:
		return LevelMinimal
	}
}

// normalize lower-cases text and turns punctuation into spaces so keywords
// only match at word starts ("pto" must not match "laptop").
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	b.WriteByte(' ')
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, " "+normalizeKeyword(k)) {
			return true
		}
	}
	return false
}

func normalizeKeyword(k string) string {
	return strings.TrimPrefix(normalize(k), " ")
}
