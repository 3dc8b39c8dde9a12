package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/mind-engage/mindengage-testroom/internal/exam"
	"github.com/mind-engage/mindengage-testroom/internal/rbac"
	"github.com/mind-engage/mindengage-testroom/internal/storage"
	"github.com/mind-engage/mindengage-testroom/internal/users"
)

const maxBody = 1 << 20

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON reads a bounded JSON body into v and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func principal(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}

// writeError maps domain errors to status codes. Anything unclassified is
// logged and reported as an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var examInvalid *exam.ValidationError
	var userInvalid *users.ValidationError
	switch {
	case errors.Is(err, exam.ErrNotFound), errors.Is(err, users.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, exam.ErrAttemptCompleted), errors.Is(err, exam.ErrNotAvailable),
		errors.Is(err, exam.ErrDuplicateAttempt), errors.Is(err, users.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &examInvalid), errors.As(err, &userInvalid), errors.Is(err, storage.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, exam.ErrForbidden), errors.Is(err, users.ErrSelfDelete):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, users.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
