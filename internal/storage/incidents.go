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

// AppendIncident inserts a safety incident and updates the owning session's
// incident counters in one transaction. When the incident is critical and the
// session is currently active, the session is paused and the incident is
// recorded with triggered_pause=true; a critical incident against an
// already-paused session records triggered_pause=false, so the pause side
// effect fires exactly once.
func (db *DB) AppendIncident(ctx context.Context, sessionID uuid.UUID, typ model.IncidentType, severity model.Severity, message string, userPosition []float64) (model.SafetyIncident, bool, error) {
	var (
		inc    model.SafetyIncident
		paused bool
	)
	// Concurrent incident reports and lifecycle transitions contend on the
	// session row; deadlocks are transient, so retry the whole transaction.
	err := WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		var err error
		inc, paused, err = db.appendIncidentTx(ctx, sessionID, typ, severity, message, userPosition)
		return err
	})
	return inc, paused, err
}

func (db *DB) appendIncidentTx(ctx context.Context, sessionID uuid.UUID, typ model.IncidentType, severity model.Severity, message string, userPosition []float64) (model.SafetyIncident, bool, error) {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.SafetyIncident{}, false, fmt.Errorf("storage: begin incident tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the session row so the pause decision and the counter update are
	// consistent under concurrent incident reports.
	var status string
	err = tx.QueryRow(ctx,
		`SELECT status FROM room_sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SafetyIncident{}, false, ErrNotFound
		}
		return model.SafetyIncident{}, false, fmt.Errorf("storage: lock session: %w", err)
	}

	paused := severity == model.SeverityCritical && model.SessionStatus(status) == model.StatusActive

	inc := model.SafetyIncident{
		ID:             uuid.New(),
		SessionID:      sessionID,
		Type:           typ,
		Severity:       severity,
		Message:        message,
		UserPosition:   userPosition,
		TriggeredPause: paused,
		OccurredAt:     time.Now().UTC(),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO safety_incidents (id, session_id, type, severity, message, user_position, triggered_pause, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inc.ID, inc.SessionID, string(inc.Type), string(inc.Severity),
		inc.Message, inc.UserPosition, inc.TriggeredPause, inc.OccurredAt,
	)
	if err != nil {
		return model.SafetyIncident{}, false, fmt.Errorf("storage: insert incident: %w", err)
	}

	newStatus := status
	if paused {
		newStatus = string(model.StatusPaused)
	}
	_, err = tx.Exec(ctx,
		`UPDATE room_sessions
		 SET incident_count = incident_count + 1,
		     last_incident_severity = $2,
		     status = $3,
		     updated_at = $4
		 WHERE id = $1`,
		sessionID, string(severity), newStatus, inc.OccurredAt,
	)
	if err != nil {
		return model.SafetyIncident{}, false, fmt.Errorf("storage: update incident counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.SafetyIncident{}, false, fmt.Errorf("storage: commit incident tx: %w", err)
	}
	return inc, paused, nil
}

// ListIncidents returns a session's incidents in chronological order.
func (db *DB) ListIncidents(ctx context.Context, sessionID uuid.UUID) ([]model.SafetyIncident, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, type, severity, message, user_position, triggered_pause, occurred_at
		 FROM safety_incidents
		 WHERE session_id = $1
		 ORDER BY occurred_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []model.SafetyIncident
	for rows.Next() {
		var (
			inc      model.SafetyIncident
			typ, sev string
		)
		if err := rows.Scan(
			&inc.ID, &inc.SessionID, &typ, &sev, &inc.Message,
			&inc.UserPosition, &inc.TriggeredPause, &inc.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan incident: %w", err)
		}
		inc.Type = model.IncidentType(typ)
		inc.Severity = model.Severity(sev)
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}
