package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/db"
	syncx "github.com/mind-engage/mindengage-testroom/internal/sync"
)

// SQLStore keeps templates, schedules and attempts in sqlite or postgres.
// Answer documents and results are JSON text columns so new question keys need
// no migration.
type SQLStore struct {
	db     *sql.DB
	driver db.Driver
	events *syncx.EventRepo // optional
}

func NewSQLStore(conn *sql.DB, driver db.Driver, events *syncx.EventRepo) *SQLStore {
	return &SQLStore{db: conn, driver: driver, events: events}
}

// forUpdate locks the selected row on postgres. SQLite transactions are opened
// IMMEDIATE (see db.SQLiteDSN) and already hold the write lock.
func (s *SQLStore) forUpdate() string {
	if s.driver == db.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) record(ctx context.Context, tx *sql.Tx, typ, key string, payload any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Record(ctx, tx, typ, key, payload)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// ---- templates ----

func (s *SQLStore) CreateTemplate(ctx context.Context, t TestTemplate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO test_templates (id,title,description,created_at) VALUES ($1,$2,$3,$4)`,
			t.ID, t.Title, t.Description, t.CreatedAt.Unix()); err != nil {
			if db.IsUniqueViolation(err) {
				return invalid("template id already in use")
			}
			return err
		}
		for _, sec := range t.Sections {
			aj, err := json.Marshal(sec.Answers)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sections (id,template_id,type,content_json,answers_json) VALUES ($1,$2,$3,$4,$5)`,
				sec.ID, t.ID, string(sec.Type), string(sec.Content), string(aj)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]TestTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title,description,created_at FROM test_templates ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TestTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(r rowScanner) (TestTemplate, error) {
	var t TestTemplate
	var created int64
	if err := r.Scan(&t.ID, &t.Title, &t.Description, &created); err != nil {
		return TestTemplate{}, noRows(err)
	}
	t.CreatedAt = time.Unix(created, 0).UTC()
	return t, nil
}

func (s *SQLStore) GetTemplate(ctx context.Context, id string) (TestTemplate, error) {
	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT id,title,description,created_at FROM test_templates WHERE id=$1`, id))
	if err != nil {
		return TestTemplate{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,template_id,type,content_json,answers_json FROM sections WHERE template_id=$1`, id)
	if err != nil {
		return TestTemplate{}, err
	}
	defer rows.Close()
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return TestTemplate{}, err
		}
		t.Sections = append(t.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return TestTemplate{}, err
	}
	sort.Slice(t.Sections, func(i, j int) bool {
		return sectionOrder(t.Sections[i].Type) < sectionOrder(t.Sections[j].Type)
	})
	return t, nil
}

func sectionOrder(t answer.SectionType) int {
	for i, v := range answer.SectionTypes {
		if v == t {
			return i
		}
	}
	return len(answer.SectionTypes)
}

func scanSection(r rowScanner) (Section, error) {
	var sec Section
	var typ, content, answers string
	if err := r.Scan(&sec.ID, &sec.TemplateID, &typ, &content, &answers); err != nil {
		return Section{}, noRows(err)
	}
	sec.Type = answer.SectionType(typ)
	sec.Content = json.RawMessage(content)
	if err := json.Unmarshal([]byte(answers), &sec.Answers); err != nil {
		return Section{}, fmt.Errorf("section %s answers: %w", sec.ID, err)
	}
	if sec.Answers == nil {
		sec.Answers = answer.Sheet{}
	}
	return sec, nil
}

func (s *SQLStore) UpdateSection(ctx context.Context, templateID string, typ answer.SectionType, p SectionPatch) (Section, error) {
	var out Section
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sec, err := scanSection(tx.QueryRowContext(ctx,
			`SELECT id,template_id,type,content_json,answers_json FROM sections
			 WHERE template_id=$1 AND type=$2`+s.forUpdate(), templateID, string(typ)))
		if err != nil {
			return err
		}
		if p.Content != nil {
			sec.Content = append([]byte(nil), p.Content...)
		}
		if p.Answers != nil {
			sec.Answers = p.Answers.Clone()
		}
		aj, err := json.Marshal(sec.Answers)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sections SET content_json=$1, answers_json=$2 WHERE id=$3`,
			string(sec.Content), string(aj), sec.ID); err != nil {
			return err
		}
		out = sec
		return nil
	})
	return out, err
}

// DeleteTemplate removes dependents first so it does not rely on cascades.
func (s *SQLStore) DeleteTemplate(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE scheduled_test_id IN
			(SELECT id FROM scheduled_tests WHERE template_id=$1)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_tests WHERE template_id=$1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE template_id=$1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM test_templates WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLStore) GetSectionContent(ctx context.Context, templateID string, typ answer.SectionType) (SectionContent, error) {
	var out SectionContent
	var t, content string
	err := s.db.QueryRowContext(ctx,
		`SELECT id,type,content_json FROM sections WHERE template_id=$1 AND type=$2`,
		templateID, string(typ)).Scan(&out.ID, &t, &content)
	if err != nil {
		return SectionContent{}, noRows(err)
	}
	out.Type = answer.SectionType(t)
	out.Content = json.RawMessage(content)
	return out, nil
}

// ---- schedules ----

func (s *SQLStore) CreateSchedule(ctx context.Context, st ScheduledTest) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM test_templates WHERE id=$1`, st.TemplateID).Scan(&one); err != nil {
			return noRows(err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scheduled_tests (id,template_id,start_time,end_time,is_active,created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			st.ID, st.TemplateID, st.StartTime.Unix(), st.EndTime.Unix(), st.IsActive, st.CreatedAt.Unix())
		return err
	})
}

const scheduleSelect = `SELECT st.id, st.template_id, st.start_time, st.end_time, st.is_active, st.created_at,
	t.title, t.description
	FROM scheduled_tests st JOIN test_templates t ON t.id = st.template_id`

func scanSchedule(r rowScanner) (ScheduledTest, error) {
	var st ScheduledTest
	var start, end, created int64
	if err := r.Scan(&st.ID, &st.TemplateID, &start, &end, &st.IsActive, &created,
		&st.TestTemplate.Title, &st.TestTemplate.Description); err != nil {
		return ScheduledTest{}, noRows(err)
	}
	st.StartTime = time.Unix(start, 0).UTC()
	st.EndTime = time.Unix(end, 0).UTC()
	st.CreatedAt = time.Unix(created, 0).UTC()
	st.TestTemplate.ID = st.TemplateID
	return st, nil
}

func (s *SQLStore) GetSchedule(ctx context.Context, id string) (ScheduledTest, error) {
	return scanSchedule(s.db.QueryRowContext(ctx, scheduleSelect+` WHERE st.id=$1`, id))
}

func (s *SQLStore) ListSchedules(ctx context.Context) ([]ScheduledTest, error) {
	rows, err := s.db.QueryContext(ctx, scheduleSelect+` ORDER BY st.start_time DESC, st.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ScheduledTest{}
	for rows.Next() {
		st, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetScheduleActive(ctx context.Context, id string, active bool) (ScheduledTest, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_tests SET is_active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return ScheduledTest{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ScheduledTest{}, ErrNotFound
	}
	return s.GetSchedule(ctx, id)
}

// ---- attempts ----

const attemptCols = `a.id, a.user_id, a.scheduled_test_id, a.status, a.user_answers_json, a.results_json, a.started_at, a.completed_at`

func scanAttempt(r rowScanner, extra ...any) (Attempt, error) {
	var a Attempt
	var status, answersJSON string
	var resultsJSON sql.NullString
	var started int64
	var completed sql.NullInt64
	dest := append([]any{&a.ID, &a.UserID, &a.ScheduledTestID, &status, &answersJSON, &resultsJSON, &started, &completed}, extra...)
	if err := r.Scan(dest...); err != nil {
		return Attempt{}, noRows(err)
	}
	a.Status = Status(status)
	a.StartedAt = time.Unix(started, 0).UTC()
	if err := json.Unmarshal([]byte(answersJSON), &a.UserAnswers); err != nil {
		return Attempt{}, fmt.Errorf("attempt %s answers: %w", a.ID, err)
	}
	if a.UserAnswers == nil {
		a.UserAnswers = answer.Sheets{}
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &a.Results); err != nil {
			return Attempt{}, fmt.Errorf("attempt %s results: %w", a.ID, err)
		}
	}
	if completed.Valid {
		at := time.Unix(completed.Int64, 0).UTC()
		a.CompletedAt = &at
	}
	return a, nil
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	aj, err := json.Marshal(a.UserAnswers)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM scheduled_tests WHERE id=$1`, a.ScheduledTestID).Scan(&one); err != nil {
			return noRows(err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attempts (id,user_id,scheduled_test_id,status,user_answers_json,started_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			a.ID, a.UserID, a.ScheduledTestID, string(a.Status), string(aj), a.StartedAt.Unix())
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateAttempt
			}
			return err
		}
		return s.record(ctx, tx, syncx.EventAttemptStarted, a.ID, map[string]any{
			"user_id":           a.UserID,
			"scheduled_test_id": a.ScheduledTestID,
		})
	})
}

func (s *SQLStore) FindAttempt(ctx context.Context, userID, scheduledTestID string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts a WHERE a.user_id=$1 AND a.scheduled_test_id=$2`,
		userID, scheduledTestID))
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts a WHERE a.id=$1`, id))
}

func (s *SQLStore) lockAttempt(ctx context.Context, tx *sql.Tx, id string) (Attempt, error) {
	return scanAttempt(tx.QueryRowContext(ctx,
		`SELECT `+attemptCols+` FROM attempts a WHERE a.id=$1`+s.forUpdate(), id))
}

func (s *SQLStore) UpdateAnswers(ctx context.Context, id string, fn func(a *Attempt) error) (Attempt, error) {
	var out Attempt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := s.lockAttempt(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		aj, err := json.Marshal(a.UserAnswers)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE attempts SET user_answers_json=$1 WHERE id=$2`, string(aj), id); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *SQLStore) Finalize(ctx context.Context, id string, at time.Time, grade GradeFunc) (Attempt, error) {
	var out Attempt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		a, err := s.lockAttempt(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Completed() {
			out = a
			return nil
		}
		key, err := answerKey(ctx, tx, a.ScheduledTestID)
		if err != nil {
			return err
		}
		a.Results = grade(a.UserAnswers, key)
		a.Status = StatusCompleted
		a.CompletedAt = &at
		rj, err := json.Marshal(a.Results)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE attempts SET status=$1, completed_at=$2, results_json=$3 WHERE id=$4 AND status=$5`,
			string(StatusCompleted), at.Unix(), string(rj), id, string(StatusInProgress))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("finalize attempt %s: %d rows updated", id, n)
		}
		if err := s.record(ctx, tx, syncx.EventAttemptCompleted, id, map[string]any{
			"user_id":      a.UserID,
			"results":      a.Results,
			"completed_at": at.Unix(),
		}); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// answerKey loads every section key of the template behind a schedule.
func answerKey(ctx context.Context, tx *sql.Tx, scheduleID string) (answer.Sheets, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT sec.type, sec.answers_json FROM sections sec
		 JOIN scheduled_tests st ON st.template_id = sec.template_id
		 WHERE st.id=$1`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	key := answer.Sheets{}
	for rows.Next() {
		var typ, aj string
		if err := rows.Scan(&typ, &aj); err != nil {
			return nil, err
		}
		var sh answer.Sheet
		if err := json.Unmarshal([]byte(aj), &sh); err != nil {
			return nil, fmt.Errorf("answer key %s: %w", typ, err)
		}
		key[answer.SectionType(typ)] = sh
	}
	return key, rows.Err()
}

const summarySelect = `SELECT ` + attemptCols + `,
	COALESCE(u.first_name,''), COALESCE(u.last_name,''), COALESCE(u.email,''), COALESCE(u.phone_number,''),
	st.template_id, t.title
	FROM attempts a
	JOIN scheduled_tests st ON st.id = a.scheduled_test_id
	JOIN test_templates t ON t.id = st.template_id
	LEFT JOIN users u ON u.id = a.user_id`

func scanSummary(r rowScanner) (AttemptSummary, error) {
	var sum AttemptSummary
	a, err := scanAttempt(r,
		&sum.User.FirstName, &sum.User.LastName, &sum.User.Email, &sum.User.PhoneNumber,
		&sum.TemplateID, &sum.TemplateTitle)
	if err != nil {
		return AttemptSummary{}, err
	}
	sum.Attempt = a
	return sum, nil
}

func (s *SQLStore) ListCompletedAttempts(ctx context.Context) ([]AttemptSummary, error) {
	rows, err := s.db.QueryContext(ctx, summarySelect+` WHERE a.status=$1 ORDER BY a.completed_at DESC, a.id`,
		string(StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AttemptSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetAttemptSummary(ctx context.Context, id string) (AttemptSummary, error) {
	return scanSummary(s.db.QueryRowContext(ctx, summarySelect+` WHERE a.id=$1`, id))
}
