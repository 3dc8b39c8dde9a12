package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-testroom/internal/auth/middleware"
	"github.com/mind-engage/mindengage-testroom/internal/exam"
	"github.com/mind-engage/mindengage-testroom/internal/rbac"
	"github.com/mind-engage/mindengage-testroom/internal/storage"
)

// UserDirectory is everything the router needs from the user store.
type UserDirectory interface {
	Accounts
	auth.Authenticator
}

type Deps struct {
	Exams    *exam.Service
	Users    UserDirectory
	Auth     *auth.AuthService
	Blobs    storage.BlobStore
	Ready    func(ctx context.Context) error // nil means always ready
	Timeout  time.Duration
	Origins  []string
	Register bool
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if d.Timeout > 0 {
		r.Use(middleware.Timeout(d.Timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Post("/api/auth/register", RegisterHandler(d.Users, d.Register))
	r.Post("/api/auth/login", auth.LoginHandler(d.Auth, d.Users))

	r.Route("/assets", func(ar chi.Router) {
		// admins preview uploaded audio too
		ar.Use(auth.JWTMiddleware(d.Auth), rbac.RequireAny(rbac.PermAssetsView, rbac.PermTemplatesManage))
		MountAssets(ar, d.Blobs)
	})

	r.Route("/api/tests", func(tr chi.Router) {
		// sendBeacon cannot carry a bearer token
		tr.Post("/attempts/{attemptID}/beacon", BeaconHandler(d.Exams))

		tr.Group(func(g chi.Router) {
			g.Use(auth.JWTMiddleware(d.Auth))
			g.With(rbac.Require(rbac.PermTestsAvailable)).Get("/available", AvailableTestsHandler(d.Exams))
			g.With(rbac.Require(rbac.PermAttemptStart)).Post("/{testID}/start", StartAttemptHandler(d.Exams))
			g.With(rbac.Require(rbac.PermAttemptViewOwn)).Get("/attempts/{attemptID}", GetAttemptHandler(d.Exams))
			g.With(rbac.Require(rbac.PermAttemptSection)).Get("/attempts/{attemptID}/section/{sectionType}", GetSectionHandler(d.Exams))
			g.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/attempts/{attemptID}/submit-section", SubmitSectionHandler(d.Exams))
			g.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/attempts/{attemptID}/submit", SubmitAllHandler(d.Exams))
			g.With(rbac.Require(rbac.PermAttemptFinish)).Post("/attempts/{attemptID}/finish", FinishAttemptHandler(d.Exams))
		})
	})

	r.Route("/api/admin", func(ad chi.Router) {
		ad.Use(auth.JWTMiddleware(d.Auth))

		ad.Group(func(g chi.Router) {
			g.Use(rbac.Require(rbac.PermTemplatesManage))
			g.Post("/tests/templates", CreateTemplateHandler(d.Exams))
			g.Get("/tests/templates", ListTemplatesHandler(d.Exams))
			g.Get("/tests/templates/{templateID}", GetTemplateHandler(d.Exams))
			g.Delete("/tests/templates/{templateID}", DeleteTemplateHandler(d.Exams))
			g.Patch("/tests/templates/{templateID}/sections/{sectionType}", UpdateSectionHandler(d.Exams))
			g.Post("/tests/templates/{templateID}/audio", UploadListeningAudioHandler(d.Exams, d.Blobs))
		})

		ad.Group(func(g chi.Router) {
			g.Use(rbac.Require(rbac.PermScheduleManage))
			g.Post("/tests/schedule", ScheduleTestHandler(d.Exams))
			g.Get("/tests/scheduled", ListScheduledHandler(d.Exams))
			g.Patch("/tests/scheduled/{scheduleID}", SetScheduleActiveHandler(d.Exams))
		})

		ad.Group(func(g chi.Router) {
			g.Use(rbac.Require(rbac.PermUsersManage))
			g.Get("/users", ListUsersHandler(d.Users))
			g.Post("/assign-role", AssignRoleHandler(d.Users))
			g.Delete("/users/{userID}", DeleteUserHandler(d.Users))
			g.Delete("/users/{userID}/roles/{roleName}", RevokeRoleHandler(d.Users))
		})

		ad.With(rbac.Require(rbac.PermAttemptsReview)).Get("/attempts", ListCompletedAttemptsHandler(d.Exams))
		ad.With(rbac.Require(rbac.PermAttemptsReview)).Get("/attempts/{attemptID}", GetAttemptReviewHandler(d.Exams))
	})

	return r
}
