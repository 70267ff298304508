package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/logging"
	"github.com/fyrsmithlabs/skatepedia/internal/media"
	"github.com/fyrsmithlabs/skatepedia/internal/posts"
	"github.com/fyrsmithlabs/skatepedia/internal/screens"
	"github.com/fyrsmithlabs/skatepedia/internal/users"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// ErrorBody is the JSON error envelope, shared with the auth middleware.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps a service error onto a status and a stable error code.
// More specific kinds are checked first: an oversized upload is also a
// validation error.
func errorStatus(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, codeForStatus(he.Code)
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, feed.ErrValidation):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, feed.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, posts.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, posts.ErrRateLimited), errors.Is(err, screens.ErrTooManyScreens):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, users.ErrExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, screens.ErrWrongKind):
		return http.StatusConflict, "wrong_kind"
	case errors.Is(err, feed.ErrClosed):
		return http.StatusConflict, "closed"
	case errors.Is(err, feed.ErrConnection), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status >= 500 {
		return "internal"
	}
	return "error"
}

// handleError writes err as an ErrorBody. Internal errors are logged and
// their message is not exposed.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code := errorStatus(err)

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(he.Code)
		}
	}
	if status >= 500 {
		ctx := c.Request().Context()
		logging.FromContext(ctx).Error(ctx, "request failed", zap.String("route", c.Path()), zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}

	body := ErrorBody{Error: ErrorDetail{Code: code, Message: msg}}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		s.logger.Warn("writing error response", zap.Error(werr))
	}
}
