package exam

import (
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/grading"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Section is one of a template's three parts. Content is what the test-taker
// sees; Answers is the key and must never reach a test-taker mid-attempt.
type Section struct {
	ID         string             `json:"id"`
	TemplateID string             `json:"test_template_id"`
	Type       answer.SectionType `json:"type"`
	Content    json.RawMessage    `json:"content"`
	Answers    answer.Sheet       `json:"answers"`
}

// SectionContent is the student-safe projection of a Section. It has no
// answers field at all.
type SectionContent struct {
	ID      string             `json:"id"`
	Type    answer.SectionType `json:"type"`
	Content json.RawMessage    `json:"content"`
}

func (s Section) StudentView() SectionContent {
	return SectionContent{ID: s.ID, Type: s.Type, Content: s.Content}
}

// SectionPatch updates a section; nil fields are left unchanged.
type SectionPatch struct {
	Content json.RawMessage `json:"content,omitempty"`
	Answers answer.Sheet    `json:"answers,omitempty"`
}

type TestTemplate struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Sections    []Section `json:"sections,omitempty"`
}

// Section returns the section of type t, if the template has one.
func (t TestTemplate) Section(typ answer.SectionType) (Section, bool) {
	for _, s := range t.Sections {
		if s.Type == typ {
			return s, true
		}
	}
	return Section{}, false
}

// AnswerKey collects every section's key by section type.
func (t TestTemplate) AnswerKey() answer.Sheets {
	key := answer.Sheets{}
	for _, s := range t.Sections {
		key[s.Type] = s.Answers
	}
	return key
}

// TemplateInfo is the part of a template needed to pick a test.
type TemplateInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ScheduledTest struct {
	ID           string       `json:"id"`
	TemplateID   string       `json:"test_template_id"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	TestTemplate TemplateInfo `json:"test_template"`
}

// ScheduledTestSummary is what a test-taker sees when choosing a test.
type ScheduledTestSummary struct {
	ID           string       `json:"id"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      time.Time    `json:"end_time"`
	TestTemplate TemplateInfo `json:"test_template"`
}

func (s ScheduledTest) Summary() ScheduledTestSummary {
	return ScheduledTestSummary{ID: s.ID, StartTime: s.StartTime, EndTime: s.EndTime, TestTemplate: s.TestTemplate}
}

type Attempt struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	ScheduledTestID string          `json:"scheduled_test_id"`
	Status          Status          `json:"status"`
	UserAnswers     answer.Sheets   `json:"user_answers"`
	Results         grading.Results `json:"results,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func (a Attempt) Completed() bool { return a.Status == StatusCompleted }

// SectionView is a section as shown to the attempt owner. Answers is only
// filled once the attempt is completed.
type SectionView struct {
	ID      string             `json:"id"`
	Type    answer.SectionType `json:"type"`
	Content json.RawMessage    `json:"content"`
	Answers answer.Sheet       `json:"answers,omitempty"`
}

type AttemptDetail struct {
	Attempt
	ScheduledTest ScheduledTestSummary `json:"scheduled_test"`
	Sections      []SectionView        `json:"sections"`
}

// UserInfo is the contact data admins see next to an attempt.
type UserInfo struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type AttemptSummary struct {
	Attempt
	User          UserInfo `json:"user"`
	TemplateID    string   `json:"test_template_id"`
	TemplateTitle string   `json:"test_template_title"`
}

// AttemptReview is the admin view of one attempt, answer keys included.
type AttemptReview struct {
	AttemptSummary
	Sections []Section `json:"sections"`
}
