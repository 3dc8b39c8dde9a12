package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testroom/internal/exam"
)

// GET /api/admin/attempts  -> completed attempts, most recently completed first
func ListCompletedAttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListCompletedAttempts(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// GET /api/admin/attempts/{attemptID}  -> any attempt, with answer keys
func GetAttemptReviewHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rev, err := svc.GetAttemptForReview(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, rev)
	}
}
