package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strideworks/formsync/internal/model"
)

// AppendSnapshot inserts a performance metric snapshot for a session.
// Fails with ErrNotFound if the session does not exist (FK violation is
// translated rather than leaked).
func (db *DB) AppendSnapshot(ctx context.Context, sessionID uuid.UUID, req model.RecordSnapshotRequest) (model.PerformanceSnapshot, error) {
	snap := model.PerformanceSnapshot{
		ID:                    uuid.New(),
		SessionID:             sessionID,
		AdaptationScore:       req.AdaptationScore,
		SpaceUtilizationScore: req.SpaceUtilizationScore,
		SafetyComplianceScore: req.SafetyComplianceScore,
		RecordedAt:            time.Now().UTC(),
	}

	// Cheap existence check first: a missing session is a caller error,
	// not a storage failure.
	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM room_sessions WHERE id = $1)`, sessionID,
	).Scan(&exists); err != nil {
		return model.PerformanceSnapshot{}, fmt.Errorf("storage: check session: %w", err)
	}
	if !exists {
		return model.PerformanceSnapshot{}, ErrNotFound
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO performance_snapshots (id, session_id, adaptation_score, space_utilization_score, safety_compliance_score, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.SessionID, snap.AdaptationScore, snap.SpaceUtilizationScore, snap.SafetyComplianceScore, snap.RecordedAt,
	)
	if err != nil {
		return model.PerformanceSnapshot{}, fmt.Errorf("storage: insert snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a session's performance snapshots in chronological order.
func (db *DB) ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]model.PerformanceSnapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, adaptation_score, space_utilization_score, safety_compliance_score, recorded_at
		 FROM performance_snapshots
		 WHERE session_id = $1
		 ORDER BY recorded_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.PerformanceSnapshot
	for rows.Next() {
		var s model.PerformanceSnapshot
		if err := rows.Scan(
			&s.ID, &s.SessionID, &s.AdaptationScore, &s.SpaceUtilizationScore, &s.SafetyComplianceScore, &s.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
