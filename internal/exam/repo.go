package exam

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/grading"
)

// GradeFunc scores an answer document against an answer key.
type GradeFunc func(user, key answer.Sheets) grading.Results

// Store is the persistence boundary. Every attempt mutation is applied to the
// row as it is at write time, inside one atomic store operation.
type Store interface {
	// Templates and sections (authoring).
	CreateTemplate(ctx context.Context, t TestTemplate) error
	ListTemplates(ctx context.Context) ([]TestTemplate, error)
	GetTemplate(ctx context.Context, id string) (TestTemplate, error) // full, answer keys included
	UpdateSection(ctx context.Context, templateID string, typ answer.SectionType, p SectionPatch) (Section, error)
	DeleteTemplate(ctx context.Context, id string) error
	GetSectionContent(ctx context.Context, templateID string, typ answer.SectionType) (SectionContent, error)

	// Schedules.
	CreateSchedule(ctx context.Context, s ScheduledTest) error
	GetSchedule(ctx context.Context, id string) (ScheduledTest, error)
	ListSchedules(ctx context.Context) ([]ScheduledTest, error) // newest start first
	SetScheduleActive(ctx context.Context, id string, active bool) (ScheduledTest, error)

	// Attempts.

	// CreateAttempt inserts a. It returns ErrDuplicateAttempt when the user
	// already has an attempt for the schedule and ErrNotFound when the
	// schedule does not exist.
	CreateAttempt(ctx context.Context, a Attempt) error
	FindAttempt(ctx context.Context, userID, scheduledTestID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)

	// UpdateAnswers locks the attempt, hands the current row to fn and
	// persists fn's changes to UserAnswers. Nothing is written if fn fails.
	UpdateAnswers(ctx context.Context, id string, fn func(a *Attempt) error) (Attempt, error)

	// Finalize grades the latest persisted answers and moves the attempt to
	// COMPLETED with completedAt=at, all in one transaction. An attempt that
	// is already completed is returned unchanged without calling grade.
	Finalize(ctx context.Context, id string, at time.Time, grade GradeFunc) (Attempt, error)

	ListCompletedAttempts(ctx context.Context) ([]AttemptSummary, error)
	GetAttemptSummary(ctx context.Context, id string) (AttemptSummary, error)
}
