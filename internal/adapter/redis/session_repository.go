package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/sessionpulse/internal/domain"
)

const scanCount = 100

// Lua scripts keep each repository operation a single atomic unit, matching
// the transactional guarantees of the Postgres adapter.

// upsertScript creates the session hash if absent, otherwise bumps
// last_active without ever moving it backwards.
// KEYS: [1]=session hash. ARGV: [1]=now_ms, [2]=candidate session id (used on create).
var upsertScript = goredis.NewScript(`
local created = redis.call('HGET', KEYS[1], 'created_at')
if not created then
  redis.call('HSET', KEYS[1], 'id', ARGV[2], 'created_at', ARGV[1], 'last_active', ARGV[1])
  return {ARGV[2], ARGV[1], ARGV[1]}
end
local id = redis.call('HGET', KEYS[1], 'id')
local last = tonumber(redis.call('HGET', KEYS[1], 'last_active'))
if tonumber(ARGV[1]) > last then
  redis.call('HSET', KEYS[1], 'last_active', ARGV[1])
  last = tonumber(ARGV[1])
end
return {id, created, tostring(last)}
`)

// appendActionScript appends one action entry and bumps last_active, but only
// if the session exists. Returns 0 for a missing session.
// KEYS: [1]=session hash, [2]=actions list. ARGV: [1]=now_ms, [2]=action JSON.
var appendActionScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
local last = tonumber(redis.call('HGET', KEYS[1], 'last_active'))
if tonumber(ARGV[1]) > last then
  redis.call('HSET', KEYS[1], 'last_active', ARGV[1])
end
return 1
`)

// evictSessionScript deletes one session and its actions, guarded by the
// staleness check so a session that became active mid-scan survives.
// KEYS: [1]=session hash, [2]=actions list. ARGV: [1]=cutoff_ms.
var evictSessionScript = goredis.NewScript(`
local last = redis.call('HGET', KEYS[1], 'last_active')
if not last then
  return 0
end
if tonumber(last) < tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1], KEYS[2])
  return 1
end
return 0
`)

// SessionRepo implements domain.SessionRepository backed by Redis.
type SessionRepo struct {
	rdb *goredis.Client
}

func NewSessionRepo(rdb *goredis.Client) *SessionRepo {
	return &SessionRepo{rdb: rdb}
}

// wireAction is the JSON layout of one entry in the actions list.
type wireAction struct {
	Action     string          `json:"action"`
	Timestamp  int64           `json:"timestamp"`
	ResourceID string          `json:"resourceId,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitzero"`
}

func (r *SessionRepo) Upsert(ctx context.Context, anonymousID string, now time.Time) (*domain.Session, error) {
	candidate := uuid.New()

	reply, err := upsertScript.Run(ctx, r.rdb,
		[]string{sessionKey(anonymousID)},
		strconv.FormatInt(now.UnixMilli(), 10),
		candidate.String(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("upsert script failed: %w", err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("upsert script returned %d values, want 3", len(reply))
	}

	idStr, ok := reply[0].(string)
	if !ok {
		return nil, fmt.Errorf("upsert script returned %T for session id, want string", reply[0])
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid session id in redis: %w", err)
	}
	createdAt, err := parseMillis(reply[1])
	if err != nil {
		return nil, err
	}
	lastActive, err := parseMillis(reply[2])
	if err != nil {
		return nil, err
	}

	return &domain.Session{
		ID:          id,
		AnonymousID: anonymousID,
		CreatedAt:   createdAt,
		LastActive:  lastActive,
	}, nil
}

func (r *SessionRepo) AppendAction(ctx context.Context, anonymousID, name, resourceID string, metadata domain.Metadata, now time.Time) error {
	entry, err := json.Marshal(wireAction{
		Action:     name,
		Timestamp:  now.UnixMilli(),
		ResourceID: resourceID,
		Metadata:   metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}

	result, err := appendActionScript.Run(ctx, r.rdb,
		[]string{sessionKey(anonymousID), actionsKey(anonymousID)},
		strconv.FormatInt(now.UnixMilli(), 10),
		string(entry),
	).Int()
	if err != nil {
		return fmt.Errorf("append action script failed: %w", err)
	}
	if result == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepo) QueryActive(ctx context.Context, window time.Duration, now time.Time) ([]domain.Session, error) {
	threshold := now.Add(-window).UnixMilli()

	sessions := make([]domain.Session, 0)
	err := r.scanSessions(ctx, func(key string) error {
		session, ok, err := r.readSession(ctx, key)
		if err != nil || !ok {
			return err
		}
		if session.LastActive.UnixMilli() < threshold {
			return nil
		}

		actions, err := r.readActions(ctx, session.AnonymousID)
		if err != nil {
			return err
		}
		session.Actions = actions
		sessions = append(sessions, *session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepo) Evict(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := strconv.FormatInt(cutoff.UnixMilli(), 10)

	var deleted int64
	err := r.scanSessions(ctx, func(key string) error {
		anonymousID := strings.TrimPrefix(key, sessionKeyPrefix)
		n, err := evictSessionScript.Run(ctx, r.rdb,
			[]string{key, actionsKey(anonymousID)},
			cutoffMs,
		).Int64()
		if err != nil {
			return fmt.Errorf("evict script failed for %s: %w", key, err)
		}
		deleted += n
		return nil
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (r *SessionRepo) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UnixMilli()

	var stale int64
	err := r.scanSessions(ctx, func(key string) error {
		val, err := r.rdb.HGet(ctx, key, "last_active").Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		last, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			slog.Warn("Skipping session with invalid last_active", "key", key, "value", val)
			return nil
		}
		if last < cutoffMs {
			stale++
		}
		return nil
	})
	return stale, err
}

// scanSessions iterates all session keys, checking ctx before every SCAN page
// so a timed-out cleanup does not run unbounded.
func (r *SessionRepo) scanSessions(ctx context.Context, visit func(key string) error) error {
	var cursor uint64
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("session scan cancelled: %w", ctx.Err())
		default:
		}

		keys, nextCursor, err := r.rdb.Scan(ctx, cursor, sessionKeyPrefix+"*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("session scan failed: %w", err)
		}

		for _, key := range keys {
			if err := visit(key); err != nil {
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

func (r *SessionRepo) readSession(ctx context.Context, key string) (*domain.Session, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(fields) == 0 {
		// Deleted between SCAN and read.
		return nil, false, nil
	}

	id, err := uuid.Parse(fields["id"])
	if err != nil {
		slog.Warn("Skipping session with invalid id", "key", key, "error", err)
		return nil, false, nil
	}
	createdAt, err := parseMillis(fields["created_at"])
	if err != nil {
		slog.Warn("Skipping session with invalid created_at", "key", key, "error", err)
		return nil, false, nil
	}
	lastActive, err := parseMillis(fields["last_active"])
	if err != nil {
		slog.Warn("Skipping session with invalid last_active", "key", key, "error", err)
		return nil, false, nil
	}

	return &domain.Session{
		ID:          id,
		AnonymousID: strings.TrimPrefix(key, sessionKeyPrefix),
		CreatedAt:   createdAt,
		LastActive:  lastActive,
	}, true, nil
}

func (r *SessionRepo) readActions(ctx context.Context, anonymousID string) ([]domain.Action, error) {
	entries, err := r.rdb.LRange(ctx, actionsKey(anonymousID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read actions for %s: %w", anonymousID, err)
	}

	actions := make([]domain.Action, 0, len(entries))
	for _, entry := range entries {
		var wa wireAction
		if err := json.Unmarshal([]byte(entry), &wa); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action for %s: %w", anonymousID, err)
		}
		actions = append(actions, domain.Action{
			Name:       wa.Action,
			Timestamp:  time.UnixMilli(wa.Timestamp).UTC(),
			ResourceID: wa.ResourceID,
			Metadata:   wa.Metadata,
		})
	}
	return actions, nil
}

// --- Key helpers ---

const (
	sessionKeyPrefix = "session:"
	actionsKeyPrefix = "actions:"
)

func sessionKey(anonymousID string) string { return sessionKeyPrefix + anonymousID }
func actionsKey(anonymousID string) string { return actionsKeyPrefix + anonymousID }

func parseMillis(v any) (time.Time, error) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case int64:
		return time.UnixMilli(val).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}

	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid millisecond timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
