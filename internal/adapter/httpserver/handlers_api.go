package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/sessionpulse/internal/app"
	"github.com/pscheid92/sessionpulse/internal/domain"
	apperrors "github.com/pscheid92/sessionpulse/internal/platform/errors"
)

const maxAnonymousIDLength = 128

func (s *Server) registerAPIRoutes() {
	limiter := newRateLimiter(s.config.TrackRatePerSecond, s.config.TrackRateBurst)

	s.echo.POST("/api/sessions/track", s.handleTrackSession, limiter)
	s.echo.POST("/api/actions", s.handleTrackAction, limiter)
	s.echo.GET("/api/sessions/active", s.handleActiveSessions)
	s.echo.POST("/api/sessions/cleanup", s.handleCleanup)
}

// --- Wire types (timestamps are milliseconds since epoch) ---

type sessionRefResponse struct {
	ID          string `json:"id"`
	AnonymousID string `json:"anonymousId"`
	CreatedAt   int64  `json:"createdAt"`
	LastActive  int64  `json:"lastActive"`
}

type actionResponse struct {
	Action     string          `json:"action"`
	Timestamp  int64           `json:"timestamp"`
	ResourceID string          `json:"resourceId,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitzero"`
}

type sessionResponse struct {
	sessionRefResponse
	Actions []actionResponse `json:"actions"`
}

func toSessionRef(s *domain.Session) sessionRefResponse {
	return sessionRefResponse{
		ID:          s.ID.String(),
		AnonymousID: s.AnonymousID,
		CreatedAt:   s.CreatedAt.UnixMilli(),
		LastActive:  s.LastActive.UnixMilli(),
	}
}

func toSessionResponse(s *domain.Session) sessionResponse {
	actions := make([]actionResponse, len(s.Actions))
	for i, a := range s.Actions {
		actions[i] = actionResponse{
			Action:     a.Name,
			Timestamp:  a.Timestamp.UnixMilli(),
			ResourceID: a.ResourceID,
			Metadata:   a.Metadata,
		}
	}
	return sessionResponse{sessionRefResponse: toSessionRef(s), Actions: actions}
}

// --- Handlers ---

func (s *Server) handleTrackSession(c echo.Context) error {
	var req struct {
		AnonymousID string `json:"anonymousId"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateAnonymousID(req.AnonymousID); err != nil {
		return err
	}

	session, err := s.app.TrackSession(c.Request().Context(), req.AnonymousID)
	if err != nil {
		return apperrors.InternalError("failed to track session", err).WithField("anonymous_id", req.AnonymousID)
	}

	if err := c.JSON(http.StatusOK, toSessionRef(session)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleTrackAction(c echo.Context) error {
	var req struct {
		AnonymousID string          `json:"anonymousId"`
		Action      string          `json:"action"`
		ResourceID  string          `json:"resourceId"`
		Metadata    domain.Metadata `json:"metadata"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateAnonymousID(req.AnonymousID); err != nil {
		return err
	}
	if req.Action == "" {
		return apperrors.ValidationError("action is required")
	}

	err := s.app.TrackAction(c.Request().Context(), req.AnonymousID, req.Action, req.ResourceID, req.Metadata)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return apperrors.NotFoundError("no session for anonymous ID").WithField("anonymous_id", req.AnonymousID)
	}
	if err != nil {
		return apperrors.InternalError("failed to track action", err).WithField("anonymous_id", req.AnonymousID)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleActiveSessions(c echo.Context) error {
	window := s.config.ActiveWindow
	if raw := c.QueryParam("minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return apperrors.ValidationError("minutes must be a positive integer").WithField("minutes", raw)
		}
		window = time.Duration(minutes) * time.Minute
	}

	sessions, err := s.app.ActiveSessions(c.Request().Context(), window)
	if err != nil {
		return apperrors.InternalError("failed to query active sessions", err)
	}

	payload := make([]sessionResponse, len(sessions))
	for i := range sessions {
		payload[i] = toSessionResponse(&sessions[i])
	}

	if err := c.JSON(http.StatusOK, map[string]any{"sessions": payload}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCleanup(c echo.Context) error {
	var req struct {
		DaysInactive *int `json:"daysInactive"`
	}
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	days := app.DefaultRetentionDays
	if req.DaysInactive != nil {
		if *req.DaysInactive < 0 {
			return apperrors.ValidationError("daysInactive must not be negative").WithField("days_inactive", *req.DaysInactive)
		}
		days = *req.DaysInactive
	}

	result, err := s.app.Cleanup(c.Request().Context(), days)
	if err != nil {
		return apperrors.InternalError("failed to clean up sessions", err)
	}

	response := map[string]any{
		"deletedCount":    result.DeletedCount,
		"cutoffTimestamp": result.Cutoff.UnixMilli(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func validateAnonymousID(id string) error {
	if id == "" {
		return apperrors.ValidationError("anonymousId is required")
	}
	if len(id) > maxAnonymousIDLength {
		return apperrors.ValidationError("anonymousId too long").WithField("length", len(id))
	}
	return nil
}
