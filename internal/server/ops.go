package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/adpilot-bot/adpilot/internal/action"
	"github.com/adpilot-bot/adpilot/internal/store"
	"github.com/adpilot-bot/adpilot/internal/worker"
)

func (s *Server) registerOps(g *echo.Group) {
	g.POST("/jobs/report", s.enqueueReport)
	g.POST("/jobs/sync", s.enqueueSync)
	g.GET("/actions", s.listActions)
	g.POST("/actions/:id/approve", s.approveAction)
	g.POST("/actions/:id/reject", s.rejectAction)
}

type reportRequest struct {
	Kind   string `json:"kind"` // daily|weekly|evening
	Notify bool   `json:"notify"`
}

// enqueueReport publishes a report job; the worker picks it up.
func (s *Server) enqueueReport(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	var event string
	switch req.Kind {
	case "daily", "":
		event = worker.EventDailyReport
	case "weekly":
		event = worker.EventWeeklyReport
	case "evening":
		event = worker.EventEveningPulse
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be daily, weekly or evening")
	}
	id, err := s.deps.Publisher.PublishJSON(c.Request().Context(), s.queues.ReportStream, event, worker.ReportJob{Notify: req.Notify})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"event": event, "message_id": id})
}

type syncRequest struct {
	Mode string `json:"mode"` // full|recent
}

func (s *Server) enqueueSync(c echo.Context) error {
	var req syncRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Mode == "" {
		req.Mode = "recent"
	}
	if req.Mode != "full" && req.Mode != "recent" {
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be full or recent")
	}
	id, err := s.deps.Publisher.PublishJSON(c.Request().Context(), s.queues.SystemStream, worker.EventSync, worker.SyncJob{Mode: req.Mode})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"event": worker.EventSync, "message_id": id})
}

func (s *Server) listActions(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		status = store.ActionStatusPending
	}
	actions, err := s.deps.Store.ListActionsByStatus(c.Request().Context(), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"actions": actions})
}

func (s *Server) approveAction(c echo.Context) error {
	res, err := s.deps.Actions.Execute(c.Request().Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, action.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "action not found")
		case errors.Is(err, action.ErrExpired):
			return echo.NewHTTPError(http.StatusConflict, "action expired")
		default:
			return err
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":           res.Action.Status,
		"already_terminal": res.AlreadyTerminal,
	})
}

func (s *Server) rejectAction(c echo.Context) error {
	res, err := s.deps.Actions.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, action.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "action not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":           res.Action.Status,
		"already_terminal": res.AlreadyTerminal,
	})
}
