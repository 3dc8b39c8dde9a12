package exam

import "time"

// Attemptable reports whether s can be started at now: it must be active and
// now must fall inside [StartTime, EndTime], both ends inclusive.
func Attemptable(s ScheduledTest, now time.Time) bool {
	return s.IsActive && !now.Before(s.StartTime) && !now.After(s.EndTime)
}

// Available filters all down to the schedules attemptable at now, projected to
// the fields needed to choose a test.
func Available(now time.Time, all []ScheduledTest) []ScheduledTestSummary {
	out := make([]ScheduledTestSummary, 0, len(all))
	for _, s := range all {
		if Attemptable(s, now) {
			out = append(out, s.Summary())
		}
	}
	return out
}
