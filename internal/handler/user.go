package handler

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/auth"
	"github.com/iliyamo/contacts-api/internal/middleware"
	"github.com/iliyamo/contacts-api/internal/repository"
)

// AvatarUploader pushes an image to external storage and returns its URL.
// *service.AvatarService satisfies it.
type AvatarUploader interface {
	Upload(ctx context.Context, file multipart.File, publicID string) (string, error)
}

// UserDirectory is the slice of the user repository the profile handlers
// need.  *repository.UserRepo satisfies it.
type UserDirectory interface {
	UpdateAvatar(ctx context.Context, email, url string) (repository.User, error)
	List(ctx context.Context, limit, offset int) ([]repository.User, error)
}

// SnapshotWriter refreshes the cached profile after a mutation.
type SnapshotWriter interface {
	Set(ctx context.Context, snap auth.UserSnapshot)
}

// UserHandler serves the authenticated profile endpoints.
type UserHandler struct {
	Users   UserDirectory
	Avatars AvatarUploader
	Cache   SnapshotWriter
}

func NewUserHandler(users UserDirectory, avatars AvatarUploader, cache SnapshotWriter) *UserHandler {
	return &UserHandler{Users: users, Avatars: avatars, Cache: cache}
}

// Me handles GET /api/users/me from the snapshot the access gate already
// resolved; no extra lookup.
func (h *UserHandler) Me(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, userResp{
		ID:       snap.ID,
		Username: snap.Username,
		Email:    snap.Email,
		Avatar:   snap.Avatar,
		Role:     snap.Role,
	})
}

// UpdateAvatar handles PATCH /api/users/avatar with a multipart "file"
// part.  The stored image keeps a stable public id derived from the email
// so re-uploads overwrite instead of piling up.
func (h *UserHandler) UpdateAvatar(c echo.Context) error {
	snap, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if h.Avatars == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "avatar storage not configured"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "file is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "could not read file"})
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	publicID := avatarPublicID(snap.Email)
	url, err := h.Avatars.Upload(ctx, src, publicID)
	if err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "avatar upload failed"})
	}
	u, err := h.Users.UpdateAvatar(ctx, snap.Email, url)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not save avatar"})
	}

	fresh := auth.SnapshotFromUser(u)
	if h.Cache != nil {
		h.Cache.Set(ctx, fresh)
	}
	return c.JSON(http.StatusOK, userResp{
		ID:       fresh.ID,
		Username: fresh.Username,
		Email:    fresh.Email,
		Avatar:   fresh.Avatar,
		Role:     fresh.Role,
	})
}

// List handles GET /api/users for admins and moderators.
func (h *UserHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}

	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, userResp{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			Avatar:   u.Avatar.String,
			Role:     u.Role,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// avatarPublicID turns an email into a storage key.  The whole address is
// flattened, e.g. "jane.doe@x.io" -> "jane_doe_x_io"; keeping the domain
// in the key stops same-named users on different domains from overwriting
// each other's image.
func avatarPublicID(email string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, email)
}
