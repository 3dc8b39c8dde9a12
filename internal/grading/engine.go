package grading

import "github.com/mind-engage/mindengage-testroom/internal/answer"

// Results maps each gradable section to its number of correct answers.
// Sections that are not graded are absent, not zero.
type Results map[answer.SectionType]int

// Total sums every section score.
func (r Results) Total() int {
	n := 0
	for _, v := range r {
		n += v
	}
	return n
}

// Grader scores a full answer document against a template's answer key.
type Grader interface {
	Grade(user, key answer.Sheets) Results
}

type defaultGrader struct {
	match func(user, correct answer.Answer) bool
}

// NewDefaultGrader returns a grader that awards one point per key entry matched
// by the user's answer, using Matches.
func NewDefaultGrader() Grader {
	return &defaultGrader{match: Matches}
}

// Grade walks the key, not the user's answers: questions the user answered but
// the key does not list are ignored, and missing sections score zero.
func (g *defaultGrader) Grade(user, key answer.Sheets) Results {
	out := Results{}
	for _, t := range answer.SectionTypes {
		if !t.Gradable() {
			continue
		}
		given := user.Section(t)
		score := 0
		for q, correct := range key.Section(t) {
			if g.match(given[q], correct) {
				score++
			}
		}
		out[t] = score
	}
	return out
}
