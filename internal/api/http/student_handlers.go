package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/exam"
)

// GET /api/tests/available
func AvailableTestsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAvailable(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// POST /api/tests/{testID}/start  -> 201 with a new attempt, 200 with the existing one
// (also once the window has closed); 409 when nothing can be started
func StartAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		if err := svc.CheckAttemptable(r.Context(), testID); err != nil {
			// an attempt already under way stays reachable after the window
			if errors.Is(err, exam.ErrNotAvailable) {
				a, rerr := svc.Resume(r.Context(), principal(r), testID)
				if rerr == nil {
					respondJSON(w, http.StatusOK, a)
					return
				}
				if !errors.Is(rerr, exam.ErrNotFound) {
					err = rerr
				}
			}
			writeError(w, r, err)
			return
		}
		a, created, err := svc.Start(r.Context(), principal(r), testID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		respondJSON(w, status, a)
	}
}

// GET /api/tests/attempts/{attemptID}/section/{sectionType}
func GetSectionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sec, err := svc.GetSection(r.Context(), principal(r),
			chi.URLParam(r, "attemptID"), chi.URLParam(r, "sectionType"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sec)
	}
}

type sectionSubmission struct {
	SectionType string       `json:"section_type"`
	Answers     answer.Sheet `json:"answers"`
}

// POST /api/tests/attempts/{attemptID}/submit-section  { "section_type": "LISTENING", "answers": {...} }
func SubmitSectionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sectionSubmission
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := svc.SubmitSection(r.Context(), principal(r), chi.URLParam(r, "attemptID"), req.SectionType, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// POST /api/tests/attempts/{attemptID}/beacon
// Sent with navigator.sendBeacon on page unload: no bearer token, any content
// type, and always 200.
func BeaconHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sectionSubmission
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err == nil {
			svc.SubmitSectionBestEffort(r.Context(), chi.URLParam(r, "attemptID"), req.SectionType, req.Answers)
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// POST /api/tests/attempts/{attemptID}/submit  { "answers": { "LISTENING": {...}, ... } }
func SubmitAllHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Answers answer.Sheets `json:"answers"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := svc.SubmitAll(r.Context(), principal(r), chi.URLParam(r, "attemptID"), req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// POST /api/tests/attempts/{attemptID}/finish
func FinishAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Finish(r.Context(), principal(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// GET /api/tests/attempts/{attemptID}
func GetAttemptHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.GetAttempt(r.Context(), principal(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, d)
	}
}
