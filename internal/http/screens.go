package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skatepedia/internal/logging"
	"github.com/fyrsmithlabs/skatepedia/internal/screens"
	"github.com/fyrsmithlabs/skatepedia/pkg/feed"
)

// OpenScreenRequest is the request body for POST /v1/screens.
//
// Kind selects the list: "posts" uses Mine, "comments" needs PostID and
// "tricks" needs TrickID.
type OpenScreenRequest struct {
	Kind    screens.Kind `json:"kind"`
	Mine    bool         `json:"mine,omitempty"`
	PostID  string       `json:"post_id,omitempty"`
	TrickID string       `json:"trick_id,omitempty"`
}

// SwitchRequest is the request body for PUT /v1/screens/:id/filter.
type SwitchRequest struct {
	Mine bool `json:"mine"`
}

// LoadMoreRequest is the request body for POST /v1/screens/:id/more. Filter
// must be the filter of the screen's latest view.
type LoadMoreRequest struct {
	Filter feed.Filter `json:"filter"`
	Count  int         `json:"count,omitempty"`
}

// LoadMoreResponse carries the page that was appended.
type LoadMoreResponse struct {
	Items    any `json:"items"`
	Appended int `json:"appended"`
}

func (s *Server) handleOpenScreen(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req OpenScreenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	var scr *screens.Screen
	switch req.Kind {
	case screens.KindPosts:
		scr, err = s.svc.Screens.OpenPosts(ctx, uid, req.Mine)
	case screens.KindComments:
		scr, err = s.svc.Screens.OpenComments(ctx, uid, req.PostID)
	case screens.KindTricks:
		if _, lerr := s.svc.Catalog.Trick(req.TrickID); lerr != nil {
			return feed.ValidationError("open screen", "%w", lerr)
		}
		scr, err = s.svc.Screens.OpenTricks(ctx, uid, req.TrickID)
	default:
		return feed.ValidationError("open screen", "unknown screen kind %q", req.Kind)
	}
	if err != nil {
		return err
	}
	tagScreen(c, scr)
	return c.JSON(http.StatusCreated, scr.Current())
}

func (s *Server) handleGetScreen(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	scr, err := s.svc.Screens.Get(uid, c.Param("id"))
	if err != nil {
		return err
	}
	tagScreen(c, scr)
	return c.JSON(http.StatusOK, scr.Current())
}

func (s *Server) handleSwitchScreen(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req SwitchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.svc.Screens.SwitchPosts(c.Request().Context(), uid, c.Param("id"), req.Mine); err != nil {
		return err
	}
	scr, err := s.svc.Screens.Get(uid, c.Param("id"))
	if err != nil {
		return err
	}
	tagScreen(c, scr)
	return c.JSON(http.StatusOK, scr.Current())
}

// handleLoadMore appends the next page. A filter that no longer matches the
// screen (the client missed a switch) is rejected with 400, and a page
// raced by a switch is discarded with 409.
func (s *Server) handleLoadMore(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req LoadMoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Count < 0 {
		return feed.ValidationError("load more", "count cannot be negative")
	}
	items, n, err := s.svc.Screens.LoadMore(c.Request().Context(), uid, c.Param("id"), req.Filter, req.Count)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoadMoreResponse{Items: items, Appended: n})
}

func (s *Server) handleCloseScreen(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Screens.Close(uid, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleScreenEvents streams a screen as server-sent events: one "view"
// event with the current list, then one per change, with comment
// heartbeats in between. A "closed" event ends the stream when the screen
// is closed. A screen serves one stream at a time.
func (s *Server) handleScreenEvents(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	scr, err := s.svc.Screens.Get(uid, c.Param("id"))
	if err != nil {
		return err
	}
	tagScreen(c, scr)
	detach := s.svc.Screens.Attach(scr)
	defer detach()

	w := c.Response()
	h := w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := logging.WithScreenID(c.Request().Context(), scr.ID)
	logger := logging.FromContext(ctx)
	if err := writeEvent(w, "view", scr.Current()); err != nil {
		logger.Debug(ctx, "sse write failed", zap.Error(err))
		return nil
	}

	heartbeat := time.NewTicker(s.config.Heartbeat)
	defer heartbeat.Stop()

	views := scr.Views()
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-views:
			if !ok {
				_ = writeEvent(w, "closed", map[string]string{"screen_id": scr.ID})
				return nil
			}
			if err := writeEvent(w, "view", scr.Stamp(v)); err != nil {
				logger.Debug(ctx, "sse write failed", zap.Error(err))
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// writeEvent writes one SSE event with a JSON payload. View events carry
// their version as the event id.
func writeEvent(w *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if v, ok := payload.(screens.View); ok && v.Version > 0 {
		if _, err := fmt.Fprintf(w, "id: %s\n", strconv.FormatUint(v.Version, 10)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
