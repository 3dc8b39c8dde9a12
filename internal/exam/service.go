package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/grading"
	"github.com/mind-engage/mindengage-testroom/internal/rbac"
)

// Service runs the attempt lifecycle and the administrative operations on
// templates, schedules and completed attempts. It keeps no attempt state
// between calls; every mutation goes through the Store.
type Service struct {
	store             Store
	grader            grading.Grader
	now               func() time.Time
	bestEffortTimeout time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBestEffortTimeout bounds how long an unload-time submission may take.
func WithBestEffortTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.bestEffortTimeout = d
		}
	}
}

func NewService(store Store, grader grading.Grader, opts ...Option) *Service {
	if grader == nil {
		grader = grading.NewDefaultGrader()
	}
	s := &Service{
		store:             store,
		grader:            grader,
		now:               time.Now,
		bestEffortTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// clock is second-precision UTC, matching what the SQL store can persist.
func (s *Service) clock() time.Time { return s.now().UTC().Truncate(time.Second) }

// ---- test-taker side ----

// ListAvailable returns the schedules that can be started right now.
func (s *Service) ListAvailable(ctx context.Context) ([]ScheduledTestSummary, error) {
	all, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return Available(s.clock(), all), nil
}

// CheckAttemptable fails with ErrNotAvailable when the schedule is inactive or
// outside its window. Callers run it before Start; Start itself does not, so
// an attempt already under way stays completable after the window closes.
func (s *Service) CheckAttemptable(ctx context.Context, scheduleID string) error {
	st, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if !Attemptable(st, s.clock()) {
		return ErrNotAvailable
	}
	return nil
}

// Start returns the caller's attempt for the schedule, creating it if needed.
// created is false when an attempt already existed, including when a
// concurrent Start won the insert.
func (s *Service) Start(ctx context.Context, p rbac.Principal, scheduleID string) (a Attempt, created bool, err error) {
	if !p.Authenticated() {
		return Attempt{}, false, ErrForbidden
	}
	if strings.TrimSpace(scheduleID) == "" {
		return Attempt{}, false, invalid("scheduled test id is required")
	}
	a = Attempt{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		ScheduledTestID: scheduleID,
		Status:          StatusInProgress,
		UserAnswers:     answer.Sheets{},
		StartedAt:       s.clock(),
	}
	err = s.store.CreateAttempt(ctx, a)
	switch {
	case err == nil:
		return a, true, nil
	case errors.Is(err, ErrDuplicateAttempt):
		existing, err := s.store.FindAttempt(ctx, p.UserID, scheduleID)
		if err != nil {
			return Attempt{}, false, fmt.Errorf("re-read attempt: %w", err)
		}
		return existing, false, nil
	default:
		return Attempt{}, false, err
	}
}

// Resume returns the caller's attempt for the schedule without creating one. It
// is how a client gets back to an attempt after the window has closed.
func (s *Service) Resume(ctx context.Context, p rbac.Principal, scheduleID string) (Attempt, error) {
	if !p.Authenticated() {
		return Attempt{}, ErrNotFound
	}
	return s.store.FindAttempt(ctx, p.UserID, scheduleID)
}

// ownedAttempt loads id and hides it from anyone but its owner.
func (s *Service) ownedAttempt(ctx context.Context, p rbac.Principal, id string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	if !p.Authenticated() || a.UserID != p.UserID {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

// GetSection returns the content of one section of the attempt's template.
// The answer key is never part of the result.
func (s *Service) GetSection(ctx context.Context, p rbac.Principal, attemptID, sectionType string) (SectionContent, error) {
	typ, err := answer.ParseSectionType(sectionType)
	if err != nil {
		return SectionContent{}, ErrNotFound
	}
	a, err := s.ownedAttempt(ctx, p, attemptID)
	if err != nil {
		return SectionContent{}, err
	}
	st, err := s.store.GetSchedule(ctx, a.ScheduledTestID)
	if err != nil {
		return SectionContent{}, err
	}
	return s.store.GetSectionContent(ctx, st.TemplateID, typ)
}

// SubmitSection replaces the caller's answers for one section, leaving the
// other sections as they are in the store at write time.
func (s *Service) SubmitSection(ctx context.Context, p rbac.Principal, attemptID, sectionType string, answers answer.Sheet) (Attempt, error) {
	if !p.Authenticated() {
		return Attempt{}, ErrNotFound
	}
	return s.submitSection(ctx, p.UserID, attemptID, sectionType, answers)
}

// SubmitSectionBestEffort is SubmitSection for page-unload delivery. It has no
// caller identity, outlives the request context and never reports failure.
func (s *Service) SubmitSectionBestEffort(ctx context.Context, attemptID, sectionType string, answers answer.Sheet) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.bestEffortTimeout)
	defer cancel()
	if _, err := s.submitSection(ctx, "", attemptID, sectionType, answers); err != nil {
		log.Printf("best-effort submit attempt=%s section=%s: %v", attemptID, sectionType, err)
	}
}

// submitSection checks ownership only when userID is set.
func (s *Service) submitSection(ctx context.Context, userID, attemptID, sectionType string, answers answer.Sheet) (Attempt, error) {
	typ, err := answer.ParseSectionType(sectionType)
	if err != nil {
		return Attempt{}, invalid(err.Error())
	}
	return s.store.UpdateAnswers(ctx, attemptID, func(a *Attempt) error {
		if userID != "" && a.UserID != userID {
			return ErrNotFound
		}
		if a.Completed() {
			return ErrAttemptCompleted
		}
		a.UserAnswers = answer.Merge(a.UserAnswers, typ, answers)
		return nil
	})
}

// SubmitAll replaces the whole answer document in one write.
func (s *Service) SubmitAll(ctx context.Context, p rbac.Principal, attemptID string, all answer.Sheets) (Attempt, error) {
	all = all.Normalize()
	if err := all.Validate(); err != nil {
		return Attempt{}, invalid(err.Error())
	}
	if !p.Authenticated() {
		return Attempt{}, ErrNotFound
	}
	return s.store.UpdateAnswers(ctx, attemptID, func(a *Attempt) error {
		if a.UserID != p.UserID {
			return ErrNotFound
		}
		if a.Completed() {
			return ErrAttemptCompleted
		}
		a.UserAnswers = all
		return nil
	})
}

// Finish grades the attempt and completes it. The store grades the answers it
// holds at commit time, not anything the caller read earlier. Finishing a
// completed attempt returns it unchanged.
func (s *Service) Finish(ctx context.Context, p rbac.Principal, attemptID string) (Attempt, error) {
	// owner never changes, so checking before the transaction is enough
	if _, err := s.ownedAttempt(ctx, p, attemptID); err != nil {
		return Attempt{}, err
	}
	return s.store.Finalize(ctx, attemptID, s.clock(), s.grader.Grade)
}

// GetAttempt returns the attempt with its schedule and section content. Answer
// keys are attached only once the attempt is completed.
func (s *Service) GetAttempt(ctx context.Context, p rbac.Principal, attemptID string) (AttemptDetail, error) {
	a, err := s.ownedAttempt(ctx, p, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	st, err := s.store.GetSchedule(ctx, a.ScheduledTestID)
	if err != nil {
		return AttemptDetail{}, err
	}
	tmpl, err := s.store.GetTemplate(ctx, st.TemplateID)
	if err != nil {
		return AttemptDetail{}, err
	}
	out := AttemptDetail{Attempt: a, ScheduledTest: st.Summary(), Sections: make([]SectionView, 0, len(tmpl.Sections))}
	for _, sec := range tmpl.Sections {
		v := SectionView{ID: sec.ID, Type: sec.Type, Content: sec.Content}
		if a.Completed() {
			v.Answers = sec.Answers
		}
		out.Sections = append(out.Sections, v)
	}
	return out, nil
}

// ---- authoring ----

var sectionShells = map[answer.SectionType]string{
	answer.Listening: `{"audioUrl":"","blocks":[]}`,
	answer.Reading:   `{"passageText":"","blocks":[]}`,
	answer.Writing:   `{"blocks":[]}`,
}

// CreateTemplate creates a template with one empty section per section type.
func (s *Service) CreateTemplate(ctx context.Context, title, description string) (TestTemplate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return TestTemplate{}, invalid("title is required")
	}
	t := TestTemplate{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.clock(),
	}
	for _, typ := range answer.SectionTypes {
		t.Sections = append(t.Sections, Section{
			ID:         uuid.NewString(),
			TemplateID: t.ID,
			Type:       typ,
			Content:    json.RawMessage(sectionShells[typ]),
			Answers:    answer.Sheet{},
		})
	}
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return TestTemplate{}, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]TestTemplate, error) {
	return s.store.ListTemplates(ctx)
}

func (s *Service) GetTemplate(ctx context.Context, id string) (TestTemplate, error) {
	return s.store.GetTemplate(ctx, id)
}

// UpdateSection patches a section's content and/or answer key.
func (s *Service) UpdateSection(ctx context.Context, templateID, sectionType string, p SectionPatch) (Section, error) {
	typ, err := answer.ParseSectionType(sectionType)
	if err != nil {
		return Section{}, invalid(err.Error())
	}
	if p.Content != nil && !json.Valid(p.Content) {
		return Section{}, invalid("content must be valid JSON")
	}
	if p.Content == nil && p.Answers == nil {
		return Section{}, invalid("content or answers is required")
	}
	return s.store.UpdateSection(ctx, templateID, typ, p)
}

// DeleteTemplate removes the template with its schedules and their attempts.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.store.DeleteTemplate(ctx, id)
}

// ---- scheduling ----

// ScheduleTest opens a window in which the template can be attempted. New
// schedules are active.
func (s *Service) ScheduleTest(ctx context.Context, templateID string, start, end time.Time) (ScheduledTest, error) {
	switch {
	case strings.TrimSpace(templateID) == "":
		return ScheduledTest{}, invalid("test template id is required")
	case start.IsZero() || end.IsZero():
		return ScheduledTest{}, invalid("start time and end time are required")
	case end.Before(start):
		return ScheduledTest{}, invalid("end time must not be before start time")
	}
	st := ScheduledTest{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		StartTime:  start.UTC().Truncate(time.Second),
		EndTime:    end.UTC().Truncate(time.Second),
		IsActive:   true,
		CreatedAt:  s.clock(),
	}
	if err := s.store.CreateSchedule(ctx, st); err != nil {
		return ScheduledTest{}, err
	}
	return s.store.GetSchedule(ctx, st.ID)
}

func (s *Service) ListScheduled(ctx context.Context) ([]ScheduledTest, error) {
	return s.store.ListSchedules(ctx)
}

func (s *Service) SetScheduleActive(ctx context.Context, id string, active bool) (ScheduledTest, error) {
	return s.store.SetScheduleActive(ctx, id, active)
}

// ---- review ----

func (s *Service) ListCompletedAttempts(ctx context.Context) ([]AttemptSummary, error) {
	return s.store.ListCompletedAttempts(ctx)
}

// GetAttemptForReview returns any attempt with its template sections, answer
// keys included.
func (s *Service) GetAttemptForReview(ctx context.Context, id string) (AttemptReview, error) {
	sum, err := s.store.GetAttemptSummary(ctx, id)
	if err != nil {
		return AttemptReview{}, err
	}
	tmpl, err := s.store.GetTemplate(ctx, sum.TemplateID)
	if err != nil {
		return AttemptReview{}, err
	}
	return AttemptReview{AttemptSummary: sum, Sections: tmpl.Sections}, nil
}
