package engine

import (
	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiff renders the change from the on-disk content to the desired content.
func unifiedDiff(path, current, desired string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(current),
		B:        difflib.SplitLines(desired),
		FromFile: path + " (on disk)",
		ToFile:   path + " (desired)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}
