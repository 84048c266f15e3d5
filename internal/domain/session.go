package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session tracks one anonymous client's activity window and action history.
// AnonymousID is unique among live sessions; CreatedAt is set once and never
// changes; LastActive never regresses.
type Session struct {
	ID          uuid.UUID `json:"id"`
	AnonymousID string    `json:"anonymousId"`
	CreatedAt   time.Time `json:"createdAt"`
	LastActive  time.Time `json:"lastActive"`
	Actions     []Action  `json:"actions"`
}

// Action is a discrete named event recorded against a session. ResourceID and
// Metadata are optional; an empty ResourceID means absent.
type Action struct {
	Name       string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	ResourceID string    `json:"resourceId,omitempty"`
	Metadata   Metadata  `json:"metadata,omitzero"`
}

// SessionRepository owns the session collection.
type SessionRepository interface {
	// Upsert atomically finds or creates the session for anonymousID and bumps
	// LastActive to now (never backwards). The returned session carries no
	// actions; it is a reference, not a full read.
	Upsert(ctx context.Context, anonymousID string, now time.Time) (*Session, error)

	// AppendAction appends one action and bumps LastActive in a single
	// transactional unit. Returns ErrSessionNotFound if no session exists for
	// anonymousID; nothing is created in that case.
	AppendAction(ctx context.Context, anonymousID, name, resourceID string, metadata Metadata, now time.Time) error

	// QueryActive returns all sessions with LastActive >= now - window,
	// boundary inclusive, actions populated. Order is unspecified.
	QueryActive(ctx context.Context, window time.Duration, now time.Time) ([]Session, error)

	// CountStale reports how many sessions Evict would delete for cutoff,
	// without deleting anything.
	CountStale(ctx context.Context, cutoff time.Time) (int64, error)

	// Evict deletes every session with LastActive strictly before cutoff and
	// returns the number of sessions actually deleted. Idempotent and safe
	// under concurrent invocation.
	Evict(ctx context.Context, cutoff time.Time) (int64, error)
}
