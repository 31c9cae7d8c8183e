package patch

import (
	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/abdidvp/layerfix/internal/domain"
)

// unifiedDiff renders the change to one file. Created files diff against
// /dev/null.
func unifiedDiff(path string, before, after []byte, created bool) (string, error) {
	from := "a/" + path
	var a []string
	if created {
		from = "/dev/null"
	} else {
		a = difflib.SplitLines(string(before))
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        difflib.SplitLines(string(after)),
		FromFile: from,
		ToFile:   "b/" + path,
		Context:  3,
	})
}

// diffStat counts the lines of a multi-file unified diff.
func diffStat(unified string) domain.DiffStat {
	if unified == "" {
		return domain.DiffStat{}
	}
	files, err := godiff.ParseMultiFileDiff([]byte(unified))
	if err != nil {
		return domain.DiffStat{}
	}
	var st domain.DiffStat
	for _, f := range files {
		s := f.Stat()
		st.Added += int(s.Added)
		st.Changed += int(s.Changed)
		st.Deleted += int(s.Deleted)
	}
	return st
}
