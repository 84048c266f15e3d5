package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/sessionpulse/internal/domain"
)

// SessionRepo implements domain.SessionRepository backed by PostgreSQL.
// All multi-step operations run in a single transaction; the find-or-create
// upsert relies on the unique constraint on anonymous_id instead of a
// check-then-insert sequence.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Upsert(ctx context.Context, anonymousID string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (anonymous_id, created_at, last_active)
		VALUES ($1, $2, $2)
		ON CONFLICT (anonymous_id) DO UPDATE
			SET last_active = GREATEST(sessions.last_active, EXCLUDED.last_active)
		RETURNING id, anonymous_id, created_at, last_active
	`, anonymousID, now).Scan(&s.ID, &s.AnonymousID, &s.CreatedAt, &s.LastActive)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepo) AppendAction(ctx context.Context, anonymousID, name, resourceID string, metadata domain.Metadata, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var sessionID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE sessions
		SET last_active = GREATEST(last_active, $2)
		WHERE anonymous_id = $1
		RETURNING id
	`, anonymousID, now).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to bump session activity: %w", err)
	}

	var resource *string
	if resourceID != "" {
		resource = &resourceID
	}

	var metadataJSON []byte
	if !metadata.IsNull() {
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal action metadata: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO actions (session_id, name, occurred_at, resource_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, sessionID, name, now, resource, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SessionRepo) QueryActive(ctx context.Context, window time.Duration, now time.Time) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, anonymous_id, created_at, last_active
		FROM sessions
		WHERE last_active >= $1
	`, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	index := make(map[uuid.UUID]int)
	ids := make([]uuid.UUID, 0)

	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.AnonymousID, &s.CreatedAt, &s.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Actions = []domain.Action{}
		index[s.ID] = len(sessions)
		ids = append(ids, s.ID)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active sessions: %w", err)
	}

	if len(sessions) == 0 {
		return sessions, nil
	}

	if err := r.loadActions(ctx, ids, index, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// loadActions populates the action history for the given sessions, ordered by
// insertion (the actions primary key), never by timestamp.
func (r *SessionRepo) loadActions(ctx context.Context, ids []uuid.UUID, index map[uuid.UUID]int, sessions []domain.Session) error {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, name, occurred_at, resource_id, metadata
		FROM actions
		WHERE session_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID    uuid.UUID
			action       domain.Action
			resource     *string
			metadataJSON []byte
		)
		if err := rows.Scan(&sessionID, &action.Name, &action.Timestamp, &resource, &metadataJSON); err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}
		if resource != nil {
			action.ResourceID = *resource
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &action.Metadata); err != nil {
				return fmt.Errorf("failed to unmarshal action metadata: %w", err)
			}
		}

		i, ok := index[sessionID]
		if !ok {
			continue
		}
		sessions[i].Actions = append(sessions[i].Actions, action)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read actions: %w", err)
	}
	return nil
}

func (r *SessionRepo) Evict(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE last_active < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to evict stale sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepo) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE last_active < $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stale sessions: %w", err)
	}
	return count, nil
}
