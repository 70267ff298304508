package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/skatepedia/internal/posts"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// CountResponse carries a like or comment count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// CommentRequest is the request body for POST /v1/posts/:id/comments.
type CommentRequest struct {
	Content string `json:"content"`
}

// formVideo opens the "video" file of a multipart request.
func formVideo(c echo.Context) (io.ReadCloser, string, error) {
	fh, err := c.FormFile("video")
	if err != nil {
		return nil, "", feed.ValidationError("upload", "a video file is required: %v", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", feed.ValidationError("upload", "reading video: %v", err)
	}
	return f, fh.Header.Get(echo.HeaderContentType), nil
}

// handleCreatePost creates a post from a multipart form with trick_name,
// notes and a video file.
func (s *Server) handleCreatePost(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	video, contentType, err := formVideo(c)
	if err != nil {
		return err
	}
	defer video.Close()

	in := posts.NewPost{
		TrickName: c.FormValue("trick_name"),
		Notes:     c.FormValue("notes"),
	}
	post, err := s.svc.Posts.Create(c.Request().Context(), uid, in, video, contentType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, post)
}

func (s *Server) handleGetPost(c echo.Context) error {
	post, err := s.svc.Posts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (s *Server) handleDeletePost(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Posts.Delete(c.Request().Context(), uid, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLike(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	likes, err := s.svc.Posts.Like(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: likes})
}

func (s *Server) handleLikeCount(c echo.Context) error {
	likes, err := s.svc.Posts.LikeCount(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: likes})
}

func (s *Server) handleAddComment(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req CommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	comment, err := s.svc.Posts.AddComment(c.Request().Context(), uid, c.Param("id"), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}

func (s *Server) handleCommentCount(c echo.Context) error {
	n, err := s.svc.Posts.CommentCount(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CountResponse{Count: int64(n)})
}

func (s *Server) handleUserPosts(c echo.Context) error {
	list, err := s.svc.Posts.ListByUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}
