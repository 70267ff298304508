package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/skatepedia/internal/tricks"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// NotesRequest is the request body for PATCH /v1/trick-items/:id.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// NotesResponse reports whether the notes were written.
type NotesResponse struct {
	Updated bool `json:"updated"`
}

// handleAddTrickItem logs a trick attempt from a multipart form with
// trick_id, notes, progress and a video file.
func (s *Server) handleAddTrickItem(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	in := tricks.NewItem{
		TrickID: c.FormValue("trick_id"),
		Notes:   c.FormValue("notes"),
	}
	if p := c.FormValue("progress"); p != "" {
		in.Progress, err = strconv.Atoi(p)
		if err != nil {
			return feed.ValidationError("add trick item", "progress %q is not a number", p)
		}
	}
	video, contentType, err := formVideo(c)
	if err != nil {
		return err
	}
	defer video.Close()

	item, err := s.svc.Tricks.Add(c.Request().Context(), uid, in, video, contentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

func (s *Server) handleListTrickItems(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	items, err := s.svc.Tricks.List(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetTrickItem(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	item, err := s.svc.Tricks.Get(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (s *Server) handleUpdateNotes(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req NotesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	updated, err := s.svc.Tricks.UpdateNotes(c.Request().Context(), uid, c.Param("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NotesResponse{Updated: updated})
}

func (s *Server) handleDeleteTrickItem(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Tricks.Delete(c.Request().Context(), uid, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleCompare pairs a trick item with the clip of the pro named by the
// "pro" query parameter.
func (s *Server) handleCompare(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	pro := c.QueryParam("pro")
	if pro == "" {
		return feed.ValidationError("compare", "pro query parameter is required")
	}
	cmp, err := s.svc.Pros.Compare(c.Request().Context(), uid, c.Param("id"), pro)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cmp)
}
