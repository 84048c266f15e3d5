package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/sessionpulse/internal/app"
	"github.com/pscheid92/sessionpulse/internal/domain"
)

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func TestTrackSessionReturnsSessionRef(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	svc := &mockAppService{
		trackSessionFn: func(_ context.Context, anonymousID string) (*domain.Session, error) {
			return &domain.Session{ID: id, AnonymousID: anonymousID, CreatedAt: created, LastActive: created}, nil
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodPost, "/api/sessions/track", `{"anonymousId":"abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionRefResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id.String(), resp.ID)
	assert.Equal(t, "abc", resp.AnonymousID)
	assert.Equal(t, created.UnixMilli(), resp.CreatedAt)
	assert.Equal(t, created.UnixMilli(), resp.LastActive)
}

func TestTrackSessionRejectsMissingID(t *testing.T) {
	srv := newTestServer(&mockAppService{})

	rec := doJSON(srv, http.MethodPost, "/api/sessions/track", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "anonymousId is required")
}

func TestTrackSessionRejectsOverlongID(t *testing.T) {
	srv := newTestServer(&mockAppService{})

	longID := strings.Repeat("x", maxAnonymousIDLength+1)
	rec := doJSON(srv, http.MethodPost, "/api/sessions/track", `{"anonymousId":"`+longID+`"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackActionForwardsPayload(t *testing.T) {
	var got struct {
		anonymousID, name, resourceID string
		metadata                      domain.Metadata
	}
	svc := &mockAppService{
		trackActionFn: func(_ context.Context, anonymousID, name, resourceID string, metadata domain.Metadata) error {
			got.anonymousID, got.name, got.resourceID, got.metadata = anonymousID, name, resourceID, metadata
			return nil
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodPost, "/api/actions",
		`{"anonymousId":"abc","action":"click","resourceId":"doc-1","metadata":{"page":"/home"}}`)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc", got.anonymousID)
	assert.Equal(t, "click", got.name)
	assert.Equal(t, "doc-1", got.resourceID)

	expected := domain.MapMetadata(map[string]domain.Metadata{"page": domain.StringMetadata("/home")})
	assert.True(t, expected.Equal(got.metadata))
}

func TestTrackActionMissingSessionIs404(t *testing.T) {
	svc := &mockAppService{
		trackActionFn: func(context.Context, string, string, string, domain.Metadata) error {
			return domain.ErrSessionNotFound
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodPost, "/api/actions", `{"anonymousId":"ghost","action":"click"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"not_found"`)
}

func TestTrackActionRequiresActionName(t *testing.T) {
	srv := newTestServer(&mockAppService{})

	rec := doJSON(srv, http.MethodPost, "/api/actions", `{"anonymousId":"abc"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "action is required")
}

func TestActiveSessionsDefaultsToServiceWindow(t *testing.T) {
	var gotWindow time.Duration
	svc := &mockAppService{
		activeSessionsFn: func(_ context.Context, window time.Duration) ([]domain.Session, error) {
			gotWindow = window
			return []domain.Session{}, nil
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodGet, "/api/sessions/active", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, gotWindow)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())
}

func TestActiveSessionsParsesMinutes(t *testing.T) {
	var gotWindow time.Duration
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockAppService{
		activeSessionsFn: func(_ context.Context, window time.Duration) ([]domain.Session, error) {
			gotWindow = window
			return []domain.Session{{
				ID:          uuid.New(),
				AnonymousID: "abc",
				CreatedAt:   now.Add(-time.Hour),
				LastActive:  now,
				Actions: []domain.Action{
					{Name: "click", Timestamp: now, ResourceID: "doc-1"},
				},
			}}, nil
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodGet, "/api/sessions/active?minutes=30", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30*time.Minute, gotWindow)

	var resp struct {
		Sessions []sessionResponse `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 1)
	require.Len(t, resp.Sessions[0].Actions, 1)
	assert.Equal(t, "click", resp.Sessions[0].Actions[0].Action)
	assert.Equal(t, now.UnixMilli(), resp.Sessions[0].Actions[0].Timestamp)
}

func TestActiveSessionsRejectsBadMinutes(t *testing.T) {
	srv := newTestServer(&mockAppService{})

	for _, raw := range []string{"abc", "-5", "0"} {
		rec := doJSON(srv, http.MethodGet, "/api/sessions/active?minutes="+raw, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "minutes=%s", raw)
	}
}

func TestCleanupDefaultsRetention(t *testing.T) {
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	var gotDays int
	svc := &mockAppService{
		cleanupFn: func(_ context.Context, days int) (app.CleanupResult, error) {
			gotDays = days
			return app.CleanupResult{DeletedCount: 5, Cutoff: cutoff}, nil
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodPost, "/api/sessions/cleanup", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.DefaultRetentionDays, gotDays)

	var resp struct {
		DeletedCount    int64 `json:"deletedCount"`
		CutoffTimestamp int64 `json:"cutoffTimestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.DeletedCount)
	assert.Equal(t, cutoff.UnixMilli(), resp.CutoffTimestamp)
}

func TestCleanupAcceptsZeroDays(t *testing.T) {
	var gotDays int
	svc := &mockAppService{
		cleanupFn: func(_ context.Context, days int) (app.CleanupResult, error) {
			gotDays = days
			return app.CleanupResult{}, nil
		},
	}
	srv := newTestServer(svc)

	rec := doJSON(srv, http.MethodPost, "/api/sessions/cleanup", `{"daysInactive":0}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, gotDays)
}

func TestCleanupRejectsNegativeDays(t *testing.T) {
	srv := newTestServer(&mockAppService{})

	rec := doJSON(srv, http.MethodPost, "/api/sessions/cleanup", `{"daysInactive":-1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
