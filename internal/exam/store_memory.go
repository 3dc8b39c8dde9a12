package exam

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/grading"
)

type memoryStore struct {
	mu        sync.RWMutex
	templates map[string]TestTemplate
	schedules map[string]ScheduledTest
	attempts  map[string]Attempt
	byPair    map[string]string // userID|scheduleID -> attemptID
}

// NewInMemoryStore returns a Store kept in process memory. A single mutex makes
// every operation atomic, which gives the same guarantees the SQL store gets
// from row locks.
func NewInMemoryStore() Store {
	return &memoryStore{
		templates: map[string]TestTemplate{},
		schedules: map[string]ScheduledTest{},
		attempts:  map[string]Attempt{},
		byPair:    map[string]string{},
	}
}

func pairKey(userID, scheduleID string) string { return userID + "|" + scheduleID }

func (m *memoryStore) CreateTemplate(_ context.Context, t TestTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; ok {
		return invalid("template id already in use")
	}
	m.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (m *memoryStore) ListTemplates(_ context.Context) ([]TestTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TestTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		t.Sections = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryStore) GetTemplate(_ context.Context, id string) (TestTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return TestTemplate{}, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (m *memoryStore) UpdateSection(_ context.Context, templateID string, typ answer.SectionType, p SectionPatch) (Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[templateID]
	if !ok {
		return Section{}, ErrNotFound
	}
	for i, s := range t.Sections {
		if s.Type != typ {
			continue
		}
		if p.Content != nil {
			s.Content = append([]byte(nil), p.Content...)
		}
		if p.Answers != nil {
			s.Answers = p.Answers.Clone()
		}
		t.Sections[i] = s
		m.templates[templateID] = t
		return cloneSection(s), nil
	}
	return Section{}, ErrNotFound
}

func (m *memoryStore) DeleteTemplate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	for sid, s := range m.schedules {
		if s.TemplateID != id {
			continue
		}
		for aid, a := range m.attempts {
			if a.ScheduledTestID == sid {
				delete(m.attempts, aid)
				delete(m.byPair, pairKey(a.UserID, sid))
			}
		}
		delete(m.schedules, sid)
	}
	delete(m.templates, id)
	return nil
}

func (m *memoryStore) GetSectionContent(_ context.Context, templateID string, typ answer.SectionType) (SectionContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[templateID]
	if !ok {
		return SectionContent{}, ErrNotFound
	}
	s, ok := t.Section(typ)
	if !ok {
		return SectionContent{}, ErrNotFound
	}
	return cloneSection(s).StudentView(), nil
}

func (m *memoryStore) CreateSchedule(_ context.Context, s ScheduledTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[s.TemplateID]; !ok {
		return ErrNotFound
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *memoryStore) withTemplate(s ScheduledTest) ScheduledTest {
	if t, ok := m.templates[s.TemplateID]; ok {
		s.TestTemplate = TemplateInfo{ID: t.ID, Title: t.Title, Description: t.Description}
	}
	return s
}

func (m *memoryStore) GetSchedule(_ context.Context, id string) (ScheduledTest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return ScheduledTest{}, ErrNotFound
	}
	return m.withTemplate(s), nil
}

func (m *memoryStore) ListSchedules(_ context.Context) ([]ScheduledTest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ScheduledTest, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, m.withTemplate(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *memoryStore) SetScheduleActive(_ context.Context, id string, active bool) (ScheduledTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return ScheduledTest{}, ErrNotFound
	}
	s.IsActive = active
	m.schedules[id] = s
	return m.withTemplate(s), nil
}

func (m *memoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[a.ScheduledTestID]; !ok {
		return ErrNotFound
	}
	k := pairKey(a.UserID, a.ScheduledTestID)
	if _, ok := m.byPair[k]; ok {
		return ErrDuplicateAttempt
	}
	m.attempts[a.ID] = cloneAttempt(a)
	m.byPair[k] = a.ID
	return nil
}

func (m *memoryStore) FindAttempt(_ context.Context, userID, scheduledTestID string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(userID, scheduledTestID)]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(m.attempts[id]), nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (m *memoryStore) UpdateAnswers(_ context.Context, id string, fn func(a *Attempt) error) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	work := cloneAttempt(cur)
	if err := fn(&work); err != nil {
		return Attempt{}, err
	}
	cur.UserAnswers = cloneSheets(work.UserAnswers)
	m.attempts[id] = cur
	return cloneAttempt(cur), nil
}

func (m *memoryStore) Finalize(_ context.Context, id string, at time.Time, grade GradeFunc) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	if a.Completed() {
		return cloneAttempt(a), nil
	}
	var key answer.Sheets
	if s, ok := m.schedules[a.ScheduledTestID]; ok {
		if t, ok := m.templates[s.TemplateID]; ok {
			key = t.AnswerKey()
		}
	}
	a.Results = grade(a.UserAnswers, key)
	a.Status = StatusCompleted
	a.CompletedAt = &at
	m.attempts[id] = cloneAttempt(a)
	return cloneAttempt(a), nil
}

// summary leaves User empty; the memory store has no users table to join.
func (m *memoryStore) summary(a Attempt) AttemptSummary {
	out := AttemptSummary{Attempt: cloneAttempt(a)}
	if s, ok := m.schedules[a.ScheduledTestID]; ok {
		out.TemplateID = s.TemplateID
		if t, ok := m.templates[s.TemplateID]; ok {
			out.TemplateTitle = t.Title
		}
	}
	return out
}

func (m *memoryStore) ListCompletedAttempts(_ context.Context) ([]AttemptSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AttemptSummary{}
	for _, a := range m.attempts {
		if a.Completed() {
			out = append(out, m.summary(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(*out[j].CompletedAt) })
	return out, nil
}

func (m *memoryStore) GetAttemptSummary(_ context.Context, id string) (AttemptSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return AttemptSummary{}, ErrNotFound
	}
	return m.summary(a), nil
}

// --- copies, so callers never share maps with the store ---

func cloneSheets(s answer.Sheets) answer.Sheets {
	out := make(answer.Sheets, len(s))
	for k, v := range s {
		out[k] = v.Clone()
	}
	return out
}

func cloneResults(r grading.Results) grading.Results {
	if r == nil {
		return nil
	}
	out := make(grading.Results, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func cloneAttempt(a Attempt) Attempt {
	a.UserAnswers = cloneSheets(a.UserAnswers)
	a.Results = cloneResults(a.Results)
	if a.CompletedAt != nil {
		at := *a.CompletedAt
		a.CompletedAt = &at
	}
	return a
}

func cloneSection(s Section) Section {
	s.Content = append([]byte(nil), s.Content...)
	s.Answers = s.Answers.Clone()
	return s
}

func cloneTemplate(t TestTemplate) TestTemplate {
	secs := make([]Section, len(t.Sections))
	for i, s := range t.Sections {
		secs[i] = cloneSection(s)
	}
	t.Sections = secs
	return t
}
