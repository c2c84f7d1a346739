package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/auth"
	"github.com/iliyamo/contacts-api/internal/config"
	"github.com/iliyamo/contacts-api/internal/queue"
	"github.com/iliyamo/contacts-api/internal/repository"
	"github.com/iliyamo/contacts-api/internal/utils"
)

// UserStore is the slice of the user directory the auth endpoints need.
// *repository.UserRepo satisfies it.
type UserStore interface {
	Create(ctx context.Context, username, email, password string, cost int, avatar string) (repository.User, error)
	GetByEmail(ctx context.Context, email string) (repository.User, error)
	GetByID(ctx context.Context, id uint64) (repository.User, error)
	UpdateRefreshToken(ctx context.Context, userID uint64, token *string) error
	MarkConfirmed(ctx context.Context, email string) error
}

// TokenIssuer issues and validates the three token kinds.  Implemented by
// auth.TokenService.
type TokenIssuer interface {
	IssueAccess(userID uint64, role string) (string, time.Time, error)
	IssueRefresh(userID uint64) (string, time.Time, error)
	IssueEmailToken(email string) (string, error)
	Validate(raw, scope string) (string, error)
}

// ConfirmationPublisher hands confirmation events to the broker.
// Implemented by service.EmailPublisher; may be nil when no broker is
// configured.
type ConfirmationPublisher interface {
	PublishEmailConfirmation(ctx context.Context, ev queue.EmailConfirmationEvent) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenIssuer
	Mail   ConfirmationPublisher
}

func NewAuthHandler(cfg config.Config, users UserStore, tokens TokenIssuer, mail ConfirmationPublisher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Tokens: tokens, Mail: mail}
}

// ----- DTOs -----

type signupReq struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type requestEmailReq struct {
	Email string `json:"email" validate:"required,email"`
}

type userResp struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func userRespFrom(u repository.User) userResp {
	return userResp{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar.String,
		Role:     u.Role,
	}
}

// Signup creates an unconfirmed account and queues a confirmation mail.
// The Gravatar lookup is best-effort; a miss leaves the avatar empty.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	avatar := utils.Gravatar(req.Email)

	u, err := h.Users.Create(ctx, req.Username, req.Email, req.Password, h.Cfg.BcryptCost, avatar)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "account already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	h.queueConfirmation(u)

	return c.JSON(http.StatusCreated, userRespFrom(u))
}

// Login verifies credentials submitted as an OAuth2 password form
// (username carries the email) and returns a fresh token pair.  The new
// refresh token overwrites the stored one, invalidating its predecessor.
func (h *AuthHandler) Login(c echo.Context) error {
	email := strings.ToLower(strings.TrimSpace(c.FormValue("username")))
	password := c.FormValue("password")
	if email == "" || password == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "username/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !u.Confirmed {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "email not confirmed"})
	}

	return h.issuePair(c, ctx, u)
}

// RefreshToken exchanges a valid refresh token (sent as the bearer token)
// for a new pair.  The presented token must equal the stored one; on
// mismatch the stored token is cleared so a stolen predecessor cannot be
// retried.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	sub, err := h.Tokens.Validate(raw, auth.ScopeRefresh)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
	}
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if !u.RefreshToken.Valid || u.RefreshToken.String != raw {
		_ = h.Users.UpdateRefreshToken(ctx, u.ID, nil)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	return h.issuePair(c, ctx, u)
}

// ConfirmEmail flips the confirmed flag for the address carried by a valid
// email token.
func (h *AuthHandler) ConfirmEmail(c echo.Context) error {
	email, err := h.Tokens.Validate(c.Param("token"), auth.ScopeEmail)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid token for email verification"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "verification error"})
	}
	if u.Confirmed {
		return c.JSON(http.StatusOK, echo.Map{"message": "your email is already confirmed"})
	}
	if err := h.Users.MarkConfirmed(ctx, email); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "confirmation failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email confirmed"})
}

// RequestEmail re-sends the confirmation mail.  The response is the same
// whether or not the address belongs to an account, so the endpoint cannot
// be used to enumerate users.
func (h *AuthHandler) RequestEmail(c echo.Context) error {
	var req requestEmailReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if u, err := h.Users.GetByEmail(ctx, req.Email); err == nil && !u.Confirmed {
		h.queueConfirmation(u)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "check your email for confirmation"})
}

// issuePair mints an access/refresh pair, persists the refresh token and
// writes the token response.
func (h *AuthHandler) issuePair(c echo.Context, ctx context.Context, u repository.User) error {
	access, _, err := h.Tokens.IssueAccess(u.ID, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, _, err := h.Tokens.IssueRefresh(u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	if err := h.Users.UpdateRefreshToken(ctx, u.ID, &refresh); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}
	return c.JSON(http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

// queueConfirmation publishes the confirmation event in the background.
// Publish failures are logged by the publisher and never fail the request.
func (h *AuthHandler) queueConfirmation(u repository.User) {
	if h.Mail == nil {
		return
	}
	token, err := h.Tokens.IssueEmailToken(u.Email)
	if err != nil {
		return
	}
	ev := queue.EmailConfirmationEvent{
		Email:       u.Email,
		Username:    u.Username,
		Token:       token,
		BaseURL:     h.Cfg.BaseURL,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.Mail.PublishEmailConfirmation(ctx, ev)
	}()
}
