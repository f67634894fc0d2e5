package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	workspaceHeader = "X-Workspace-Id"

	sessionContextKey   = "auth.session"
	workspaceContextKey = "auth.workspace"
)

// Middleware returns an echo middleware that authorizes every request with
// the bearer token from the Authorization header and the workspace from the
// X-Workspace-Id header. The session and workspace land in the request
// context for handlers to pick up via SessionFrom and WorkspaceFrom.
func (a *Authorizer) Middleware(globalScope bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request().Header.Get("Authorization"))
			workspace := c.Request().Header.Get(workspaceHeader)

			session, err := a.Authorize(c.Request().Context(), token, workspace, globalScope)
			if err != nil {
				return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
			}

			c.Set(sessionContextKey, session)
			c.Set(workspaceContextKey, workspace)
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNoToken), errors.Is(err, ErrSessionMissing):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNoWorkspace):
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// SessionFrom returns the session stored by the middleware, if any.
func SessionFrom(c echo.Context) *Session {
	session, _ := c.Get(sessionContextKey).(*Session)
	return session
}

// WorkspaceFrom returns the workspace id stored by the middleware.
func WorkspaceFrom(c echo.Context) string {
	workspace, _ := c.Get(workspaceContextKey).(string)
	return workspace
}
