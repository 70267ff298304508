package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// ProRequest is the request body for POST /v1/pros.
type ProRequest struct {
	Name   string `json:"name"`
	Stance string `json:"stance"`
}

func (s *Server) handleListPros(c echo.Context) error {
	list, err := s.svc.Pros.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleAddPro(c echo.Context) error {
	var req ProRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	pro, err := s.svc.Pros.Add(c.Request().Context(), req.Name, req.Stance)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pro)
}

func (s *Server) handleProByName(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return feed.ValidationError("pro lookup", "name query parameter is required")
	}
	pro, err := s.svc.Pros.ByName(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pro)
}

func (s *Server) handleGetPro(c echo.Context) error {
	pro, err := s.svc.Pros.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pro)
}

func (s *Server) handleProVideo(c echo.Context) error {
	v, err := s.svc.Pros.Video(c.Request().Context(), c.Param("id"), c.Param("trick"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) handleUploadProVideo(c echo.Context) error {
	video, contentType, err := formVideo(c)
	if err != nil {
		return err
	}
	defer video.Close()

	v, err := s.svc.Pros.UploadVideo(c.Request().Context(), c.Param("id"), c.Param("trick"), video, contentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (s *Server) handleRegisterProVideo(c echo.Context) error {
	v, err := s.svc.Pros.RegisterVideo(c.Request().Context(), c.Param("id"), c.Param("trick"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}
