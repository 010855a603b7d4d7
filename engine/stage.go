package engine

import (
	"strings"

	"github.com/jcqin2022/AIAssistant/core"
)

// Stage markers recognised in the manager's analysis.
const (
	MarkerConfirm  = "[CONFIRM]"
	MarkerTaskList = "[TASK_LIST]"
	MarkerTaskItem = "[TASK]"

	ReasoningStart = "<think>"
	ReasoningEnd   = "</think>"
)

// UnparsedAnswer is returned when the analysis carries neither marker.
const UnparsedAnswer = "Unable to parse a task list from the analysis, please rephrase your question."

// Classifier maps an analysis response to the next stage: StageConfirmNeeded,
// StageDispatch or StageUnparsed.
type Classifier interface {
	Classify(analysis string) core.Stage
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(analysis string) core.Stage

// Classify calls f.
func (f ClassifierFunc) Classify(analysis string) core.Stage { return f(analysis) }

// MarkerClassifier classifies by marker substrings after removing reasoning
// blocks. A confirmation marker wins over a task list.
type MarkerClassifier struct{}

// Classify implements Classifier.
func (MarkerClassifier) Classify(analysis string) core.Stage {
	visible := StripReasoning(analysis)
	switch {
	case strings.Contains(visible, MarkerConfirm):
		return core.StageConfirmNeeded
	case strings.Contains(visible, MarkerTaskList):
		return core.StageDispatch
	default:
		return core.StageUnparsed
	}
}

// StripReasoning removes every <think>...</think> block. An unterminated
// block is removed up to the end of text.
func StripReasoning(text string) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, ReasoningStart)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(ReasoningStart):]

		end := strings.Index(rest, ReasoningEnd)
		if end < 0 {
			break
		}
		rest = rest[end+len(ReasoningEnd):]
	}
	return strings.TrimSpace(b.String())
}

// StripMarkers removes all stage markers from text.
func StripMarkers(text string) string {
	r := strings.NewReplacer(MarkerConfirm, "", MarkerTaskList, "", MarkerTaskItem, "")
	return strings.TrimSpace(r.Replace(text))
}
