package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-testroom/internal/users"
)

// Accounts is the user directory the handlers need.
type Accounts interface {
	Register(ctx context.Context, r users.Registration) (users.User, error)
	List(ctx context.Context) ([]users.User, error)
	AssignRole(ctx context.Context, userID, role string) error
	RevokeRole(ctx context.Context, userID, role string) error
	Delete(ctx context.Context, id, actingUserID string) error
}

// POST /api/auth/register
func RegisterHandler(accounts Accounts, enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !enabled {
			http.Error(w, "registration disabled", http.StatusForbidden)
			return
		}
		var req users.Registration
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := accounts.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, u)
	}
}

func ListUsersHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := accounts.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// POST /api/admin/assign-role  { "user_id": "...", "role_name": "USER" }
func AssignRoleHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID   string `json:"user_id"`
			RoleName string `json:"role_name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := accounts.AssignRole(r.Context(), req.UserID, req.RoleName); err != nil {
			writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID, "role_name": req.RoleName})
	}
}

// DELETE /api/admin/users/{userID}/roles/{roleName}
func RevokeRoleHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := accounts.RevokeRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleName")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DELETE /api/admin/users/{userID}
func DeleteUserHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := accounts.Delete(r.Context(), chi.URLParam(r, "userID"), principal(r).UserID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
