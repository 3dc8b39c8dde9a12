package exam

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptable(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	s := ScheduledTest{ID: "s1", StartTime: start, EndTime: end, IsActive: true}

	cases := []struct {
		name   string
		now    time.Time
		active bool
		want   bool
	}{
		{"before window", start.Add(-time.Second), true, false},
		{"at start", start, true, true},
		{"inside", start.Add(time.Hour), true, true},
		{"at end", end, true, true},
		{"after window", end.Add(time.Second), true, false},
		{"inactive inside window", start.Add(time.Hour), false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s.IsActive = tc.active
			assert.Equal(t, tc.want, Attemptable(s, tc.now))
		})
	}
}

func TestAvailable_ProjectsSummaries(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	info := TemplateInfo{ID: "t1", Title: "Mock", Description: "d"}
	all := []ScheduledTest{
		{ID: "open", TemplateID: "t1", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), IsActive: true, TestTemplate: info},
		{ID: "off", TemplateID: "t1", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), IsActive: false, TestTemplate: info},
		{ID: "past", TemplateID: "t1", StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-2 * time.Hour), IsActive: true, TestTemplate: info},
	}

	got := Available(now, all)
	require.Len(t, got, 1)
	assert.Equal(t, "open", got[0].ID)
	assert.Equal(t, info, got[0].TestTemplate)

	raw, err := json.Marshal(got[0])
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.ElementsMatch(t, []string{"id", "start_time", "end_time", "test_template"}, keys(fields))

	assert.Empty(t, Available(now, nil))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
