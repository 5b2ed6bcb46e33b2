package dag

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// RenderContentDiff renders a unified diff between two file content
// strings, the way the teacher's storage.computeDiff renders the diff
// recorded alongside each commit. Here it is a pure presentation helper
// callers can run over HistoryRow/ConflictRow pairs (e.g. base vs left, or
// successive entries from GetFileHistory) rather than something computed
// and stored at write time.
func RenderContentDiff(previous, current *string) string {
	prevText := derefOr(previous, "")
	currText := derefOr(current, "")
	if prevText == currText {
		return ""
	}

	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(prevText),
		B:        difflib.SplitLines(currText),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}

	res, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return strings.TrimSpace(currText)
	}
	return strings.TrimSpace(res)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
