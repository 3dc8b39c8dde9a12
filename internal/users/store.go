package users

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-testroom/internal/db"
	"github.com/mind-engage/mindengage-testroom/internal/rbac"
)

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	PersonalID  string    `json:"personal_id"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	Roles       []string  `json:"roles"`
}

// Principal is the identity a token is issued for.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{UserID: u.ID, Roles: u.Roles}
}

type Registration struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PersonalID  string `json:"personal_id"`
	PhoneNumber string `json:"phone_number"`
}

func (r Registration) validate() error {
	for _, f := range []string{r.Email, r.Username, r.Password, r.FirstName, r.LastName, r.PersonalID, r.PhoneNumber} {
		if strings.TrimSpace(f) == "" {
			return invalid("all fields are required")
		}
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return invalid("email is not valid")
	}
	return ValidatePassword(r.Password)
}

// Store keeps users and their role grants.
type Store struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

type Option func(*Store)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

func NewStore(conn *sql.DB, opts ...Option) *Store {
	s := &Store{db: conn, cost: 12, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register creates a user without roles.
func (s *Store) Register(ctx context.Context, r Registration) (User, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.Username = strings.TrimSpace(r.Username)
	r.PersonalID = strings.TrimSpace(r.PersonalID)
	if err := r.validate(); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), s.cost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:          uuid.NewString(),
		Email:       r.Email,
		Username:    r.Username,
		FirstName:   strings.TrimSpace(r.FirstName),
		LastName:    strings.TrimSpace(r.LastName),
		PersonalID:  r.PersonalID,
		PhoneNumber: strings.TrimSpace(r.PhoneNumber),
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		Roles:       []string{},
	}
	if err := s.insert(ctx, s.db, u, string(hash)); err != nil {
		return User{}, err
	}
	return u, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, ex execer, u User, hash string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO users (id,email,username,password_hash,first_name,last_name,personal_id,phone_number,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, u.Username, hash, u.FirstName, u.LastName, u.PersonalID, u.PhoneNumber, u.CreatedAt.Unix())
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

const userCols = `id,email,username,first_name,last_name,personal_id,phone_number,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner, extra ...any) (User, error) {
	var u User
	var created int64
	dest := append([]any{&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PersonalID, &u.PhoneNumber, &created}, extra...)
	if err := r.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *Store) roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_name FROM user_roles WHERE user_id=$1 ORDER BY role_name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Authenticate checks a personal ID and password. Unknown users and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Store) Authenticate(ctx context.Context, personalID, password string) (User, error) {
	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userCols+`,password_hash FROM users WHERE personal_id=$1`, strings.TrimSpace(personalID)), &hash)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	if u.Roles, err = s.roles(ctx, u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id))
	if err != nil {
		return User{}, err
	}
	if u.Roles, err = s.roles(ctx, u.ID); err != nil {
		return User{}, err
	}
	return u, nil
}

// List returns every user, newest first, with role names.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at DESC, username`)
	if err != nil {
		return nil, err
	}
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		u.Roles = []string{}
		out = append(out, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grants, err := s.db.QueryContext(ctx, `SELECT user_id, role_name FROM user_roles ORDER BY role_name`)
	if err != nil {
		return nil, err
	}
	defer grants.Close()
	byID := make(map[string][]string, len(out))
	for grants.Next() {
		var uid, role string
		if err := grants.Scan(&uid, &role); err != nil {
			return nil, err
		}
		byID[uid] = append(byID[uid], role)
	}
	for i := range out {
		if r, ok := byID[out[i].ID]; ok {
			out[i].Roles = r
		}
	}
	return out, grants.Err()
}

// AssignRole grants role to the user. Unknown users or roles are ErrNotFound;
// a role already held is ErrConflict.
func (s *Store) AssignRole(ctx context.Context, userID, role string) error {
	role = strings.ToUpper(strings.TrimSpace(role))
	if userID == "" || role == "" {
		return invalid("user id and role name are required")
	}
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=$1`, userID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM roles WHERE name=$1`, role).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ($1,$2)`, userID, role)
	if db.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) RevokeRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=$1 AND role_name=$2`,
		userID, strings.ToUpper(strings.TrimSpace(role)))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user together with their role grants and attempts. Admins
// cannot delete themselves.
func (s *Store) Delete(ctx context.Context, id, actingUserID string) (err error) {
	if id == actingUserID {
		return ErrSelfDelete
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM attempts WHERE user_id=$1`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=$1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureAdmin makes sure a user with personalID exists and holds ADMIN. A new
// user gets passHash, an existing bcrypt hash, as password.
func (s *Store) EnsureAdmin(ctx context.Context, personalID, passHash, email string) (u User, err error) {
	if personalID == "" || passHash == "" {
		return User{}, invalid("personal id and password hash are required")
	}
	if _, err := bcrypt.Cost([]byte(passHash)); err != nil {
		return User{}, invalid("password hash is not a bcrypt hash")
	}
	if email == "" {
		email = personalID + "@localhost"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return User{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	u, err = scanUser(tx.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE personal_id=$1`, personalID))
	switch {
	case errors.Is(err, ErrNotFound):
		u = User{
			ID:         uuid.NewString(),
			Email:      email,
			Username:   personalID,
			FirstName:  "Admin",
			PersonalID: personalID,
			CreatedAt:  s.now().UTC().Truncate(time.Second),
		}
		if err = s.insert(ctx, tx, u, passHash); err != nil {
			return User{}, err
		}
	case err != nil:
		return User{}, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_name) VALUES ($1,$2) ON CONFLICT (user_id, role_name) DO NOTHING`,
		u.ID, rbac.RoleAdmin); err != nil {
		return User{}, err
	}
	u.Roles = []string{rbac.RoleAdmin}
	return u, nil
}
