package grading

import (
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
)

// Strategy decides whether one user answer satisfies one answer-key entry.
// Strategies are chosen by the shape of the key entry, never of the user answer.
type Strategy interface {
	Match(user, correct answer.Answer) bool
}

var strategies = map[answer.Kind]Strategy{
	answer.KindScalar: scalarStrategy{},
	answer.KindSet:    setStrategy{},
}

// Matches compares a user answer with the correct value for one question.
// A key entry without a value never awards the point.
func Matches(user, correct answer.Answer) bool {
	s, ok := strategies[correct.Kind()]
	if !ok {
		return false
	}
	return s.Match(user, correct)
}

// scalarStrategy compares text case-insensitively. A set given where a scalar
// is expected is compared through its comma-joined text.
type scalarStrategy struct{}

func (scalarStrategy) Match(user, correct answer.Answer) bool {
	if user.IsMissing() {
		return false
	}
	return strings.ToLower(user.Text()) == strings.ToLower(correct.Text())
}

// setStrategy ignores member order but nothing else: members must match
// exactly, including case, and duplicates count. A non-set user answer is
// treated as an empty set.
type setStrategy struct{}

func (setStrategy) Match(user, correct answer.Answer) bool {
	got := user.Items()
	want := correct.Items()
	if len(got) != len(want) {
		return false
	}
	sort.Strings(got)
	sort.Strings(want)
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
