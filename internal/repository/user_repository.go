package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/contacts-api/internal/utils"
)

// Role values stored in users.role.  New accounts default to RoleUser.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// User mirrors the 'users' table.  Avatar and RefreshToken are nullable:
// the avatar is only set when Gravatar enrichment or an upload succeeded,
// and the refresh token is cleared on forced logout.
type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	Avatar       sql.NullString
	RefreshToken sql.NullString
	Role         string
	Confirmed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,avatar,refresh_token,role,confirmed,created_at,updated_at"

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Avatar,
		&u.RefreshToken, &u.Role, &u.Confirmed, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts a user with a hashed password and returns the full row.
// The avatar may be empty when Gravatar enrichment failed; that failure is
// the caller's to swallow, never this method's to produce.
func (r *UserRepo) Create(ctx context.Context, username, email, password string, cost int, avatar string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return User{}, err
	}
	var av sql.NullString
	if avatar != "" {
		av = sql.NullString{String: avatar, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, avatar, role) VALUES (?,?,?,?,?)",
		username, email, hash, av, RoleUser)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return User{}, ErrEmailExists
		}
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// UpdateRefreshToken overwrites the stored refresh token.  A nil token
// clears the column, which invalidates the previous token at the equality
// check performed during refresh.
func (r *UserRepo) UpdateRefreshToken(ctx context.Context, userID uint64, token *string) error {
	var t sql.NullString
	if token != nil {
		t = sql.NullString{String: *token, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET refresh_token=?, updated_at=CURRENT_TIMESTAMP WHERE id=?",
		t, userID)
	return err
}

// MarkConfirmed flips the confirmed flag for the given email.
// Returns ErrUserNotFound when no row is affected.
func (r *UserRepo) MarkConfirmed(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET confirmed=1, updated_at=CURRENT_TIMESTAMP WHERE email=?", email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateAvatar stores a new avatar URL and returns the updated row.
func (r *UserRepo) UpdateAvatar(ctx context.Context, email, url string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET avatar=?, updated_at=CURRENT_TIMESTAMP WHERE email=?", url, email)
	if err != nil {
		return User{}, err
	}
	return r.GetByEmail(ctx, email)
}

// List returns users ordered by id.  Used by the admin listing endpoint.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Avatar,
			&u.RefreshToken, &u.Role, &u.Confirmed, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
