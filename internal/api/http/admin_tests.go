package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testroom/internal/answer"
	"github.com/mind-engage/mindengage-testroom/internal/exam"
	"github.com/mind-engage/mindengage-testroom/internal/storage"
)

// POST /api/admin/tests/templates  { "title": "...", "description": "..." }
func CreateTemplateHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		t, err := svc.CreateTemplate(r.Context(), req.Title, req.Description)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, t)
	}
}

func ListTemplatesHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListTemplates(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func GetTemplateHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, t)
	}
}

func DeleteTemplateHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteTemplate(r.Context(), chi.URLParam(r, "templateID")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// PATCH /api/admin/tests/templates/{templateID}/sections/{sectionType}  { "content": {...}, "answers": {...} }
func UpdateSectionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p exam.SectionPatch
		if !decodeJSON(w, r, &p) {
			return
		}
		sec, err := svc.UpdateSection(r.Context(), chi.URLParam(r, "templateID"), chi.URLParam(r, "sectionType"), p)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sec)
	}
}

// POST /api/admin/tests/templates/{templateID}/audio  multipart file=
// Stores the file and points the listening section's audioUrl at it.
func UploadListeningAudioHandler(svc *exam.Service, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "templateID")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		t, err := svc.GetTemplate(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		key, err := bs.Put(r.Context(), storage.ListeningAudioKey(id, hdr.Filename), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		url := "/assets/" + key

		content := map[string]json.RawMessage{}
		if sec, ok := t.Section(answer.Listening); ok {
			_ = json.Unmarshal(sec.Content, &content)
		}
		content["audioUrl"], _ = json.Marshal(url)
		raw, err := json.Marshal(content)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sec, err := svc.UpdateSection(r.Context(), id, string(answer.Listening), exam.SectionPatch{Content: raw})
		if err != nil {
			_ = bs.Delete(r.Context(), key)
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"key": key, "url": url, "section": sec})
	}
}

// POST /api/admin/tests/schedule  { "test_template_id": "...", "start_time": RFC3339, "end_time": RFC3339 }
func ScheduleTestHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TemplateID string    `json:"test_template_id"`
			StartTime  time.Time `json:"start_time"`
			EndTime    time.Time `json:"end_time"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		st, err := svc.ScheduleTest(r.Context(), req.TemplateID, req.StartTime, req.EndTime)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, st)
	}
}

func ListScheduledHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListScheduled(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// PATCH /api/admin/tests/scheduled/{scheduleID}  { "is_active": false }
func SetScheduleActiveHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IsActive *bool `json:"is_active"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.IsActive == nil {
			http.Error(w, "is_active required", http.StatusBadRequest)
			return
		}
		st, err := svc.SetScheduleActive(r.Context(), chi.URLParam(r, "scheduleID"), *req.IsActive)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}
