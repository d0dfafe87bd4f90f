package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Vr3n/crown-vitality-research/internal/session"
)

const identityKey = "identity"

// Session resolves the request's identity through gate and stores it on the
// echo context. Requests without credentials pass through anonymously; a
// presented but invalid token is rejected with 401.
func Session(gate session.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			who, err := gate.Identify(c.Request())
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid token"})
			}
			if who != nil {
				c.Set(identityKey, who)
				c.Set("user_id", who.ID)
			}
			return next(c)
		}
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if Identity(c) == nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
		}
		return next(c)
	}
}

// Identity returns the identity set by Session, or nil.
func Identity(c echo.Context) *session.Identity {
	who, _ := c.Get(identityKey).(*session.Identity)
	return who
}

// userID is the identity's id, or "anon" for anonymous requests.
func userID(c echo.Context) string {
	if who := Identity(c); who != nil && who.ID != "" {
		return who.ID
	}
	return "anon"
}
