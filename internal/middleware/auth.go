package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/auth"
	"github.com/iliyamo/contacts-api/internal/repository"
)

// TokenValidator validates a raw token against an expected scope and
// returns its subject.  Implemented by auth.TokenService.
type TokenValidator interface {
	Validate(raw, scope string) (string, error)
}

// SnapshotCache is the session cache consulted before the database.
// Implemented by auth.UserCache.
type SnapshotCache interface {
	Get(ctx context.Context, userID uint64) (auth.UserSnapshot, bool)
	Set(ctx context.Context, snap auth.UserSnapshot)
}

// UserSource loads a user when the cache misses.  Implemented by
// repository.UserRepo.
type UserSource interface {
	GetByID(ctx context.Context, id uint64) (repository.User, error)
}

// Authenticate returns the access gate for protected routes.  It extracts
// the bearer token, validates it with the access scope, resolves the acting
// user through the session cache with a database fallback, and stores the
// resulting snapshot in the request context under "user" (plus "user_id"
// and "role" for downstream middleware).  Every failure mode is a 401;
// the gate never degrades to an anonymous request.
func Authenticate(tokens TokenValidator, cache SnapshotCache, users UserSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			sub, err := tokens.Validate(raw, auth.ScopeAccess)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
			}
			userID, err := strconv.ParseUint(sub, 10, 64)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
			}

			ctx := c.Request().Context()
			snap, ok := cache.Get(ctx, userID)
			if !ok {
				u, err := users.GetByID(ctx, userID)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "could not validate credentials"})
				}
				snap = auth.SnapshotFromUser(u)
				cache.Set(ctx, snap)
			}

			c.Set("user", snap)
			c.Set("user_id", strconv.FormatUint(snap.ID, 10))
			c.Set("role", snap.Role)
			return next(c)
		}
	}
}

// CurrentUser returns the snapshot stored by Authenticate.  The second
// return value is false when the route was not behind the gate.
func CurrentUser(c echo.Context) (auth.UserSnapshot, bool) {
	snap, ok := c.Get("user").(auth.UserSnapshot)
	return snap, ok
}
