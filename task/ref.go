package task

import (
	"regexp"
	"strconv"
)

var refPattern = regexp.MustCompile(`(?i)TASK-(\d+)`)

// ParseRef extracts the first TASK-<digits> reference from free text such as
// a commit message, branch name or pull request body. Matching ignores case.
// Numbers that do not fit in an int64 are treated as no reference.
func ParseRef(text string) (int64, bool) {
	m := refPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
