package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-testroom/internal/rbac"
	"github.com/mind-engage/mindengage-testroom/internal/users"
)

type AuthService struct {
	hmac []byte
	ttl  time.Duration
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl}
}

type Claims struct {
	UserID     string   `json:"userId"`
	PersonalID string   `json:"personalId"`
	Roles      []string `json:"roles"`
	FirstName  string   `json:"firstName"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() rbac.Principal {
	return rbac.Principal{UserID: c.UserID, Roles: c.Roles}
}

func (a *AuthService) IssueJWT(u users.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:     u.ID,
		PersonalID: u.PersonalID,
		Roles:      u.Roles,
		FirstName:  u.FirstName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mindengage-testroom",
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

var errBadToken = errors.New("invalid token")

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.UserID == "" {
		return nil, errBadToken
	}
	return c, nil
}

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, personalID, password string) (users.User, error)
}

// POST /api/auth/login  { "personal_id": "...", "password": "..." }
func LoginHandler(a *AuthService, accounts Authenticator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PersonalID string `json:"personal_id"`
			Password   string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.PersonalID) == "" || req.Password == "" {
			http.Error(w, "personal id and password are required", http.StatusBadRequest)
			return
		}
		u, err := accounts.Authenticate(r.Context(), req.PersonalID, req.Password)
		if errors.Is(err, users.ErrInvalidCredentials) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Printf("login: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		tok, err := a.IssueJWT(u)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok})
	}
}

// JWTMiddleware puts the token's principal into the request context. A missing
// token is 403 and a bad one is 401.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "no token provided", http.StatusForbidden)
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), c.Principal())))
		})
	}
}
