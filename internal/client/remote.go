package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/sessionpulse/internal/domain"
)

const defaultRequestTimeout = 10 * time.Second

// SessionRef is a session as the server reports it.
type SessionRef struct {
	ID          string
	AnonymousID string
	CreatedAt   time.Time
	LastActive  time.Time
}

// Session is a session ref together with its recorded actions.
type Session struct {
	SessionRef
	Actions []Action
}

// Action is one recorded event on a session.
type Action struct {
	Name       string
	Timestamp  time.Time
	ResourceID string
	Metadata   domain.Metadata
}

// CleanupSummary reports one remote cleanup invocation.
type CleanupSummary struct {
	DeletedCount int64
	Cutoff       time.Time
}

// APIClient talks to the sessionpulse HTTP API. It does not retry: the
// heartbeat's next tick covers transient failures for liveness calls, and
// action-tracking retry policy belongs to the caller.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient creates a client for the server at baseURL. A nil httpClient
// falls back to a default with a request timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// TrackSession creates or refreshes the server session for anonymousID.
func (c *APIClient) TrackSession(ctx context.Context, anonymousID string) (*SessionRef, error) {
	body := map[string]string{"anonymousId": anonymousID}

	var wire wireSessionRef
	if err := c.postJSON(ctx, "/api/sessions/track", body, &wire); err != nil {
		return nil, err
	}

	ref := wire.toSessionRef()
	return &ref, nil
}

// TrackAction records a named action against an existing session. A missing
// session surfaces as domain.ErrSessionNotFound.
func (c *APIClient) TrackAction(ctx context.Context, anonymousID, action, resourceID string, metadata domain.Metadata) error {
	body := map[string]any{
		"anonymousId": anonymousID,
		"action":      action,
	}
	if resourceID != "" {
		body["resourceId"] = resourceID
	}
	if !metadata.IsZero() {
		body["metadata"] = metadata
	}

	return c.postJSON(ctx, "/api/actions", body, nil)
}

// ActiveSessions lists sessions active within window. A non-positive window
// leaves the choice to the server default.
func (c *APIClient) ActiveSessions(ctx context.Context, window time.Duration) ([]Session, error) {
	path := "/api/sessions/active"
	if window > 0 {
		minutes := int(window / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		path += "?minutes=" + url.QueryEscape(strconv.Itoa(minutes))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var wire struct {
		Sessions []wireSession `json:"sessions"`
	}
	if err := c.do(req, &wire); err != nil {
		return nil, err
	}

	sessions := make([]Session, len(wire.Sessions))
	for i, ws := range wire.Sessions {
		sessions[i] = ws.toSession()
	}
	return sessions, nil
}

// Cleanup asks the server to evict sessions idle for more than days days.
func (c *APIClient) Cleanup(ctx context.Context, days int) (CleanupSummary, error) {
	body := map[string]int{"daysInactive": days}

	var wire struct {
		DeletedCount    int64 `json:"deletedCount"`
		CutoffTimestamp int64 `json:"cutoffTimestamp"`
	}
	if err := c.postJSON(ctx, "/api/sessions/cleanup", body, &wire); err != nil {
		return CleanupSummary{}, err
	}

	return CleanupSummary{
		DeletedCount: wire.DeletedCount,
		Cutoff:       time.UnixMilli(wire.CutoffTimestamp),
	}, nil
}

func (c *APIClient) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return domain.ErrSessionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("request to %s failed with status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(message)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// --- Wire types (timestamps are milliseconds since epoch) ---

type wireSessionRef struct {
	ID          string `json:"id"`
	AnonymousID string `json:"anonymousId"`
	CreatedAt   int64  `json:"createdAt"`
	LastActive  int64  `json:"lastActive"`
}

func (w wireSessionRef) toSessionRef() SessionRef {
	return SessionRef{
		ID:          w.ID,
		AnonymousID: w.AnonymousID,
		CreatedAt:   time.UnixMilli(w.CreatedAt),
		LastActive:  time.UnixMilli(w.LastActive),
	}
}

type wireAction struct {
	Action     string          `json:"action"`
	Timestamp  int64           `json:"timestamp"`
	ResourceID string          `json:"resourceId"`
	Metadata   domain.Metadata `json:"metadata"`
}

type wireSession struct {
	wireSessionRef
	Actions []wireAction `json:"actions"`
}

func (w wireSession) toSession() Session {
	actions := make([]Action, len(w.Actions))
	for i, wa := range w.Actions {
		actions[i] = Action{
			Name:       wa.Action,
			Timestamp:  time.UnixMilli(wa.Timestamp),
			ResourceID: wa.ResourceID,
			Metadata:   wa.Metadata,
		}
	}
	return Session{SessionRef: w.wireSessionRef.toSessionRef(), Actions: actions}
}
