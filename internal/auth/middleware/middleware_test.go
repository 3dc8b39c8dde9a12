package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testroom/internal/rbac"
	"github.com/mind-engage/mindengage-testroom/internal/users"
)

type fakeAccounts struct {
	user users.User
	pass string
	err  error
}

func (f *fakeAccounts) Authenticate(_ context.Context, personalID, password string) (users.User, error) {
	if f.err != nil {
		return users.User{}, f.err
	}
	if personalID != f.user.PersonalID || password != f.pass {
		return users.User{}, users.ErrInvalidCredentials
	}
	return f.user, nil
}

var ana = users.User{ID: "u-1", PersonalID: "P1", FirstName: "Ana", Roles: []string{rbac.RoleUser}}

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	tok, err := a.IssueJWT(ana)
	require.NoError(t, err)

	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.UserID)
	assert.Equal(t, "P1", c.PersonalID)
	assert.Equal(t, "Ana", c.FirstName)
	assert.Equal(t, rbac.Principal{UserID: "u-1", Roles: []string{rbac.RoleUser}}, c.Principal())

	_, err = NewAuthService("other", time.Hour).Parse(tok)
	assert.Error(t, err)
}

func TestParse_RejectsExpiredAndForeignAlg(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           "u-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	s, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = a.Parse(s)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u-1"})
	s, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Parse(s)
	assert.Error(t, err)
}

func TestLoginHandler(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	h := LoginHandler(a, &fakeAccounts{user: ana, pass: "Secret#123"})

	cases := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"personal_id":"P1","password":"Secret#123"}`, http.StatusOK},
		{"wrong password", `{"personal_id":"P1","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"personal_id":"P9","password":"Secret#123"}`, http.StatusUnauthorized},
		{"missing fields", `{"personal_id":""}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				var out map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
				c, err := a.Parse(out["access_token"])
				require.NoError(t, err)
				assert.Equal(t, "u-1", c.UserID)
			}
		})
	}

	rec := httptest.NewRecorder()
	LoginHandler(a, &fakeAccounts{err: errors.New("db down")})(rec,
		httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"personal_id":"P1","password":"x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestJWTMiddleware(t *testing.T) {
	a := NewAuthService("s3cret", time.Hour)
	tok, err := a.IssueJWT(ana)
	require.NoError(t, err)

	var seen rbac.Principal
	h := JWTMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = rbac.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusForbidden},
		{"not bearer", "Basic abc", http.StatusForbidden},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "u-1", seen.UserID)
}
