package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// contextKey is the type for context keys to avoid collisions.
type contextKey string

// authenticatedUserIDKey is the echo context key holding the caller's user id.
const authenticatedUserIDKey contextKey = "authenticated_user_id"

// UserIDHeader carries the user id when token checks are disabled.
const UserIDHeader = "X-User-ID"

// Verifier turns a bearer token into a user id.
type Verifier interface {
	Verify(token string) (string, error)
}

// Config configures Middleware.
type Config struct {
	// Verifier checks bearer tokens. Required unless TrustHeader is set.
	Verifier Verifier

	// TrustHeader takes the user id from the X-User-ID header without any
	// check. Development only.
	TrustHeader bool

	// Skipper lets requests through unauthenticated, e.g. health checks.
	Skipper middleware.Skipper
}

// Middleware authenticates requests and stores the user id in the echo
// context for UserID.
//
// Requests without valid credentials get 401 with a JSON error body:
//
//	{"error": {"code": "unauthorized", "message": "..."}}
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = middleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			var userID string
			if cfg.TrustHeader {
				userID = c.Request().Header.Get(UserIDHeader)
				if err := ValidateUserID(userID); err != nil {
					return unauthorized(c, "missing or invalid "+UserIDHeader+" header")
				}
			} else {
				token, ok := bearerToken(c.Request())
				if !ok {
					return unauthorized(c, "missing bearer token")
				}
				id, err := cfg.Verifier.Verify(token)
				if err != nil {
					return unauthorized(c, "invalid bearer token")
				}
				userID = id
			}

			c.Set(string(authenticatedUserIDKey), userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id of the request.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get(string(authenticatedUserIDKey)).(string)
	return id, ok && id != ""
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for EventSource clients that cannot set
// headers.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		token = strings.TrimSpace(token)
		return token, token != ""
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"code":    "unauthorized",
			"message": "authentication failed: " + msg,
		},
	})
}
