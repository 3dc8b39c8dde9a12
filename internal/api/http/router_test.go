package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/mindengage-testroom/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testroom/internal/db"
	"github.com/mind-engage/mindengage-testroom/internal/exam"
	"github.com/mind-engage/mindengage-testroom/internal/grading"
	"github.com/mind-engage/mindengage-testroom/internal/storage"
	syncx "github.com/mind-engage/mindengage-testroom/internal/sync"
	"github.com/mind-engage/mindengage-testroom/internal/users"
)

type server struct {
	h     http.Handler
	admin string // bearer token
	users *users.Store
}

func newServer(t *testing.T, register bool, opts ...exam.Option) *server {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, db.SQLiteDSN(filepath.Join(t.TempDir(), "api.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	us := users.NewStore(conn, users.WithBcryptCost(bcrypt.MinCost))
	hash, err := bcrypt.GenerateFromPassword([]byte("Boot#strap1"), bcrypt.MinCost)
	require.NoError(t, err)
	admin, err := us.EnsureAdmin(ctx, "ROOT", string(hash), "")
	require.NoError(t, err)

	authSvc := auth.NewAuthService("test-secret", time.Hour)
	tok, err := authSvc.IssueJWT(admin)
	require.NoError(t, err)

	svc := exam.NewService(
		exam.NewSQLStore(conn, db.DriverSQLite, syncx.NewEventRepo(conn, "test")),
		grading.NewDefaultGrader(),
		opts...,
	)
	return &server{
		h: NewRouter(Deps{
			Exams:    svc,
			Users:    us,
			Auth:     authSvc,
			Blobs:    blobs,
			Ready:    conn.PingContext,
			Origins:  []string{"http://localhost:3000"},
			Register: register,
		}),
		admin: tok,
		users: us,
	}
}

func (s *server) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// student registers, gets USER from the admin and logs in.
func (s *server) student(t *testing.T, name string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", users.Registration{
		Email: name + "@example.com", Username: name, Password: "Secret#123",
		FirstName: name, LastName: "Doe", PersonalID: "PID-" + name, PhoneNumber: "555-0100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	u := decode[users.User](t, rec)

	rec = s.do(t, http.MethodPost, "/api/admin/assign-role", s.admin, map[string]string{"user_id": u.ID, "role_name": "user"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"personal_id": "PID-" + name, "password": "Secret#123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["access_token"]
}

func TestAttemptFlow(t *testing.T) {
	s := newServer(t, true)
	stu := s.student(t, "ana")

	rec := s.do(t, http.MethodPost, "/api/admin/tests/templates", s.admin, map[string]string{"title": "Mock", "description": "d"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tmplID := decode[exam.TestTemplate](t, rec).ID

	rec = s.do(t, http.MethodPatch, "/api/admin/tests/templates/"+tmplID+"/sections/listening", s.admin,
		`{"content":{"blocks":[]},"answers":{"q1":"A","q2":["x","y"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPatch, "/api/admin/tests/templates/"+tmplID+"/sections/READING", s.admin,
		`{"answers":{"r1":"B","r2":"C"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// audio upload rewrites the listening content
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "track.MP3")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("ID3-audio"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/admin/tests/templates/"+tmplID+"/audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.admin)
	rec = httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	audioURL := decode[map[string]any](t, rec)["url"].(string)
	assert.True(t, strings.HasPrefix(audioURL, "/assets/templates/"+tmplID+"/listening/"))
	assert.True(t, strings.HasSuffix(audioURL, ".mp3"))

	now := time.Now().UTC()
	rec = s.do(t, http.MethodPost, "/api/admin/tests/schedule", s.admin, map[string]any{
		"test_template_id": tmplID,
		"start_time":       now.Add(-time.Hour).Format(time.RFC3339),
		"end_time":         now.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	schedID := decode[exam.ScheduledTest](t, rec).ID

	rec = s.do(t, http.MethodGet, "/api/tests/available", stu, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[[]exam.ScheduledTestSummary](t, rec)
	require.Len(t, avail, 1)
	assert.Equal(t, schedID, avail[0].ID)

	rec = s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", stu, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	attempt := decode[exam.Attempt](t, rec)
	rec = s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", stu, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, attempt.ID, decode[exam.Attempt](t, rec).ID)

	base := "/api/tests/attempts/" + attempt.ID
	rec = s.do(t, http.MethodGet, base+"/section/listening", stu, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"answers"`)
	assert.Contains(t, rec.Body.String(), audioURL)

	rec = s.do(t, http.MethodPost, base+"/submit-section", stu, `{"section_type":"listening","answers":{"q1":"a","q2":["y","x"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// beacon carries no token
	rec = s.do(t, http.MethodPost, base+"/beacon", "", `{"section_type":"READING","answers":{"r1":"B"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/finish", stu, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[exam.Attempt](t, rec)
	assert.Equal(t, exam.StatusCompleted, done.Status)
	assert.Equal(t, 2, done.Results["LISTENING"])
	assert.Equal(t, 1, done.Results["READING"])

	rec = s.do(t, http.MethodPost, base+"/submit-section", stu, `{"section_type":"READING","answers":{"r2":"C"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, http.MethodPost, base+"/beacon", "", `{"section_type":"READING","answers":{"r2":"C"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, base, stu, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[exam.AttemptDetail](t, rec)
	assert.Equal(t, 1, detail.Results["READING"])
	require.NotEmpty(t, detail.Sections)
	for _, sec := range detail.Sections {
		if sec.Type == "LISTENING" {
			assert.Len(t, sec.Answers, 2)
		}
	}

	rec = s.do(t, http.MethodGet, audioURL, stu, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ID3-audio", rec.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/assets/templates", stu, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/assets/templates/"+tmplID+"/listening", s.admin, nil).Code)

	rec = s.do(t, http.MethodGet, "/api/admin/attempts", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]exam.AttemptSummary](t, rec), 1)
	rec = s.do(t, http.MethodGet, "/api/admin/attempts/"+attempt.ID, s.admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAttempt_OtherUsersGetNotFound(t *testing.T) {
	s := newServer(t, true)
	ana, bob := s.student(t, "ana"), s.student(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/admin/tests/templates", s.admin, map[string]string{"title": "T"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tmplID := decode[exam.TestTemplate](t, rec).ID
	now := time.Now().UTC()
	rec = s.do(t, http.MethodPost, "/api/admin/tests/schedule", s.admin, map[string]any{
		"test_template_id": tmplID,
		"start_time":       now.Add(-time.Hour).Format(time.RFC3339),
		"end_time":         now.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	schedID := decode[exam.ScheduledTest](t, rec).ID

	rec = s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", ana, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[exam.Attempt](t, rec).ID

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/tests/attempts/"+id, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/tests/attempts/"+id+"/finish", bob, nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodPost, "/api/tests/attempts/"+id+"/submit-section", ana, `{"section_type":"SPEAKING","answers":{}}`).Code)

	// a deactivated schedule cannot be started
	rec = s.do(t, http.MethodPatch, "/api/admin/tests/scheduled/"+schedID, s.admin, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", bob, nil).Code)
}

func TestStart_ResumesAfterWindowCloses(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	s := newServer(t, true, exam.WithClock(func() time.Time { return now }))
	ana, bob := s.student(t, "ana"), s.student(t, "bob")

	rec := s.do(t, http.MethodPost, "/api/admin/tests/templates", s.admin, map[string]string{"title": "T"})
	require.Equal(t, http.StatusCreated, rec.Code)
	tmplID := decode[exam.TestTemplate](t, rec).ID
	rec = s.do(t, http.MethodPost, "/api/admin/tests/schedule", s.admin, map[string]any{
		"test_template_id": tmplID,
		"start_time":       now.Add(-time.Hour).Format(time.RFC3339),
		"end_time":         now.Add(time.Minute).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	schedID := decode[exam.ScheduledTest](t, rec).ID

	rec = s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", ana, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[exam.Attempt](t, rec)

	now = now.Add(time.Hour)

	rec = s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", ana, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, started.ID, decode[exam.Attempt](t, rec).ID)

	// nobody can begin a new attempt once the window is over
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/tests/"+schedID+"/start", bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/tests/missing/start", ana, nil).Code)

	rec = s.do(t, http.MethodPost, "/api/tests/attempts/"+started.ID+"/finish", ana, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, exam.StatusCompleted, decode[exam.Attempt](t, rec).Status)
}

func TestAuthGuards(t *testing.T) {
	s := newServer(t, true)
	stu := s.student(t, "ana")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/tests/available", "", http.StatusForbidden},
		{"bad token", http.MethodGet, "/api/tests/available", "garbage", http.StatusUnauthorized},
		{"student on admin route", http.MethodGet, "/api/admin/users", stu, http.StatusForbidden},
		{"student lists tests", http.MethodGet, "/api/tests/available", stu, http.StatusOK},
		{"admin lists users", http.MethodGet, "/api/admin/users", s.admin, http.StatusOK},
		{"assets need a token", http.MethodGet, "/assets/x.mp3", "", http.StatusForbidden},
		{"missing asset", http.MethodGet, "/assets/x.mp3", stu, http.StatusNotFound},
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"ready", http.MethodGet, "/readyz", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.do(t, tc.method, tc.path, tc.token, nil).Code)
		})
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"personal_id": "PID-ana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsersAdmin(t *testing.T) {
	s := newServer(t, true)
	s.student(t, "ana")

	rec := s.do(t, http.MethodGet, "/api/admin/users", s.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]users.User](t, rec)
	require.Len(t, list, 2)

	var ana, root users.User
	for _, u := range list {
		if u.PersonalID == "ROOT" {
			root = u
		} else {
			ana = u
		}
	}

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", users.Registration{
		Email: "ana@example.com", Username: "ana2", Password: "Secret#123",
		FirstName: "A", LastName: "B", PersonalID: "PID-x", PhoneNumber: "1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/admin/users/"+ana.ID+"/roles/USER", s.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/admin/users/"+ana.ID+"/roles/USER", s.admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/admin/users/"+root.ID, s.admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/admin/users/"+ana.ID, s.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/admin/users/"+ana.ID, s.admin, nil).Code)
}

func TestRegistrationDisabled(t *testing.T) {
	s := newServer(t, false)
	rec := s.do(t, http.MethodPost, "/api/auth/register", "", users.Registration{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{exam.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", users.ErrNotFound), http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{exam.ErrAttemptCompleted, http.StatusConflict},
		{exam.ErrNotAvailable, http.StatusConflict},
		{users.ErrConflict, http.StatusConflict},
		{&exam.ValidationError{Msg: "bad"}, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{users.ErrSelfDelete, http.StatusForbidden},
		{users.ErrInvalidCredentials, http.StatusUnauthorized},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("secret dsn in message"))
	assert.NotContains(t, rec.Body.String(), "secret")
}
