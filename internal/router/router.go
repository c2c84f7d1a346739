package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-api/internal/handler"
	"github.com/iliyamo/contacts-api/internal/middleware"
	"github.com/iliyamo/contacts-api/internal/repository"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the account lifecycle endpoints under /auth.
// None of them require an access token; refresh and confirm carry their
// own token in the request instead.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/auth")
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.GET("/refresh_token", a.RefreshToken)
	g.GET("/confirmed_email/:token", a.ConfirmEmail)
	g.POST("/request_email", a.RequestEmail)
}

// APIDeps bundles what the protected route tree needs: the access gate,
// the handlers behind it and an optional rate limiter for the profile
// endpoints that fan out to external storage.
type APIDeps struct {
	Authenticate echo.MiddlewareFunc
	Contacts     *handler.ContactHandler
	Users        *handler.UserHandler
	RateLimiter  echo.MiddlewareFunc
}

// RegisterAPI registers everything under /api.  The whole group sits
// behind the access token gate; every role may manage its own contacts,
// while the user listing is reserved for admins and moderators.
func RegisterAPI(e *echo.Echo, d APIDeps) {
	api := e.Group("/api")
	api.Use(d.Authenticate)
	api.Use(middleware.RequireRole(repository.RoleAdmin, repository.RoleModerator, repository.RoleUser))

	contacts := api.Group("/contacts")
	contacts.POST("", d.Contacts.Create)
	contacts.GET("", d.Contacts.List)
	contacts.GET("/search/", d.Contacts.Search)
	contacts.GET("/upcoming/birthdays", d.Contacts.UpcomingBirthdays)
	contacts.GET("/:id", d.Contacts.Get)
	contacts.PUT("/:id", d.Contacts.Update)
	contacts.DELETE("/:id", d.Contacts.Delete)

	users := api.Group("/users")
	if d.RateLimiter != nil {
		users.Use(d.RateLimiter)
	}
	users.GET("/me", d.Users.Me)
	users.PATCH("/avatar", d.Users.UpdateAvatar)

	api.GET("/users", d.Users.List, middleware.RequireRole(repository.RoleAdmin, repository.RoleModerator))
}
