package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/users"
)

// ProfileResponse is another user's public profile. Email is only shown to
// its owner through /v1/users/me.
type ProfileResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// handleCreateUser creates the caller's profile.
func (s *Server) handleCreateUser(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req users.NewUser
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := s.svc.Users.Create(c.Request().Context(), uid, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (s *Server) handleGetMe(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	u, err := s.svc.Users.Get(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) handleGetUser(c echo.Context) error {
	id := c.Param("id")
	name, err := s.svc.Users.Username(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ProfileResponse{UserID: id, Username: name})
}

// handleDeleteMe removes every trick item, post and the profile of the
// caller. Open screens are left to expire.
func (s *Server) handleDeleteMe(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	report, err := s.svc.Users.DeleteData(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// handleCatalog lists the trick catalog sections.
func (s *Server) handleCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Catalog.Sections())
}

// handleMedia streams a stored video. Media URLs are handed to video players
// directly, so this route is not authenticated.
func (s *Server) handleMedia(c echo.Context) error {
	path := c.Param("*")
	rc, info, err := s.svc.Media.Open(c.Request().Context(), path)
	if err != nil {
		return err
	}
	defer rc.Close()

	h := c.Response().Header()
	if info.Size > 0 {
		h.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	h.Set("Cache-Control", "private, max-age=3600")
	contentType := info.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	if err := c.Stream(http.StatusOK, contentType, rc); err != nil {
		s.logger.Debug("media stream interrupted", zap.String("path", path), zap.Error(err))
	}
	return nil
}
