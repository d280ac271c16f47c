package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/strideworks/formsync/internal/model"
)

const sessionColumns = `id, user_id, sport, difficulty, drill_pattern,
	room_width, room_height, room_area, ceiling_height, is_flat, aspect_ratio,
	baseline_distance, room_center, scale_factor,
	safety_score, obstacle_count, lighting_conditions, reflective_surfaces,
	platform, average_fps, tracking_quality,
	status, total_score, incident_count, last_incident_severity,
	created_at, updated_at, completed_at`

// CreateRoomSession inserts a new room session with status=active and returns it.
func (db *DB) CreateRoomSession(ctx context.Context, req model.CreateRoomSessionRequest) (model.RoomSession, error) {
	now := time.Now().UTC()
	s := model.RoomSession{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Sport:        req.Sport,
		Difficulty:   req.Difficulty,
		DrillPattern: req.DrillPattern,
		Room:         req.Room,
		Calibration:  req.Calibration,
		SafetyScore:  req.SafetyScore,
		Platform:     req.Platform,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := db.EnsureUser(ctx, req.UserID); err != nil {
		return model.RoomSession{}, err
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO room_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5,
		         $6, $7, $8, $9, $10, $11,
		         $12, $13, $14,
		         $15, $16, $17, $18,
		         $19, $20, $21,
		         $22, $23, $24, $25,
		         $26, $27, $28)`,
		s.ID, s.UserID, s.Sport, s.Difficulty, s.DrillPattern,
		s.Room.Width, s.Room.Height, s.Room.Area, s.Room.CeilingHeight, s.Room.IsFlat, s.Room.AspectRatio,
		s.Calibration.BaselineDistance, s.Calibration.RoomCenter, s.Calibration.ScaleFactor,
		s.SafetyScore, s.ObstacleCount, s.LightingConditions, s.ReflectiveSurfaces,
		string(s.Platform), s.AverageFPS, s.TrackingQuality,
		string(s.Status), s.TotalScore, s.IncidentCount, nil,
		s.CreatedAt, s.UpdatedAt, s.CompletedAt,
	)
	if err != nil {
		return model.RoomSession{}, fmt.Errorf("storage: create room session: %w", err)
	}
	return s, nil
}

// GetRoomSession retrieves a session by ID.
func (db *DB) GetRoomSession(ctx context.Context, id uuid.UUID) (model.RoomSession, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM room_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RoomSession{}, ErrNotFound
		}
		return model.RoomSession{}, fmt.Errorf("storage: get room session: %w", err)
	}
	return s, nil
}

// UpdateRoomSession writes the mutable, sync-merged fields of a session.
// The caller (the room coordinator) holds the per-session lock and has
// already applied the merge policy; this is a plain write.
func (db *DB) UpdateRoomSession(ctx context.Context, s model.RoomSession) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE room_sessions SET
			drill_pattern = $2,
			room_center = $3, scale_factor = $4,
			safety_score = $5, obstacle_count = $6,
			lighting_conditions = $7, reflective_surfaces = $8,
			platform = $9, average_fps = $10, tracking_quality = $11,
			updated_at = $12
		 WHERE id = $1`,
		s.ID,
		s.DrillPattern,
		s.Calibration.RoomCenter, s.Calibration.ScaleFactor,
		s.SafetyScore, s.ObstacleCount,
		s.LightingConditions, s.ReflectiveSurfaces,
		string(s.Platform), s.AverageFPS, s.TrackingQuality,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: update room session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResumeSession transitions a paused session back to active.
func (db *DB) ResumeSession(ctx context.Context, id uuid.UUID) (model.RoomSession, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE room_sessions SET status = 'active', updated_at = now()
		 WHERE id = $1 AND status = 'paused'`, id)
	if err != nil {
		return model.RoomSession{}, fmt.Errorf("storage: resume session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.RoomSession{}, db.transitionFailure(ctx, id)
	}
	return db.GetRoomSession(ctx, id)
}

// CompleteSession records the final score and transitions the session to completed.
func (db *DB) CompleteSession(ctx context.Context, id uuid.UUID, totalScore float64) (model.RoomSession, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE room_sessions
		 SET status = 'completed', total_score = $2, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ('active', 'paused')`, id, totalScore)
	if err != nil {
		return model.RoomSession{}, fmt.Errorf("storage: complete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.RoomSession{}, db.transitionFailure(ctx, id)
	}
	return db.GetRoomSession(ctx, id)
}

// FailSession marks an abandoned session failed. Used by the reaper.
func (db *DB) FailSession(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE room_sessions SET status = 'failed', updated_at = now()
		 WHERE id = $1 AND status IN ('active', 'paused')`, id)
	if err != nil {
		return fmt.Errorf("storage: fail session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.transitionFailure(ctx, id)
	}
	return nil
}

// ListStaleSessions returns sessions still active or paused whose last update
// is older than the cutoff. Capped at limit rows per sweep.
func (db *DB) ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id FROM room_sessions
		 WHERE status IN ('active', 'paused') AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan stale session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListRoomSessionsByUser returns all sessions for a user, newest first.
func (db *DB) ListRoomSessionsByUser(ctx context.Context, userID string) ([]model.RoomSession, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM room_sessions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list room sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.RoomSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan room session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListCompletedSessionStats returns the trend inputs for a user's completed
// sessions, most recent first.
func (db *DB) ListCompletedSessionStats(ctx context.Context, userID string) ([]model.SessionStats, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT total_score, incident_count, completed_at
		 FROM room_sessions
		 WHERE user_id = $1 AND status = 'completed' AND total_score IS NOT NULL
		 ORDER BY completed_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list completed stats: %w", err)
	}
	defer rows.Close()

	var stats []model.SessionStats
	for rows.Next() {
		var st model.SessionStats
		if err := rows.Scan(&st.TotalScore, &st.IncidentCount, &st.CompletedAt); err != nil {
			return nil, fmt.Errorf("storage: scan session stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// transitionFailure distinguishes a missing session from an illegal transition
// after a guarded UPDATE touched zero rows.
func (db *DB) transitionFailure(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_sessions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("storage: check session existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// scanSession reads one session row in sessionColumns order.
func scanSession(row pgx.Row) (model.RoomSession, error) {
	var (
		s        model.RoomSession
		platform string
		status   string
		lastSev  *string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Sport, &s.Difficulty, &s.DrillPattern,
		&s.Room.Width, &s.Room.Height, &s.Room.Area, &s.Room.CeilingHeight, &s.Room.IsFlat, &s.Room.AspectRatio,
		&s.Calibration.BaselineDistance, &s.Calibration.RoomCenter, &s.Calibration.ScaleFactor,
		&s.SafetyScore, &s.ObstacleCount, &s.LightingConditions, &s.ReflectiveSurfaces,
		&platform, &s.AverageFPS, &s.TrackingQuality,
		&status, &s.TotalScore, &s.IncidentCount, &lastSev,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt,
	)
	if err != nil {
		return model.RoomSession{}, err
	}
	s.Platform = model.Platform(platform)
	s.Status = model.SessionStatus(status)
	if lastSev != nil {
		sev := model.Severity(*lastSev)
		s.LastIncidentSeverity = &sev
	}
	return s, nil
}
