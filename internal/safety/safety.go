// Package safety enforces the incident-driven pause state machine for room
// sessions. Incidents are append-only; the first critical incident against an
// active session pauses it, and that side effect fires exactly once.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/strideworks/formsync/internal/model"
)

// IncidentStore is the slice of the storage layer the monitor needs.
type IncidentStore interface {
	AppendIncident(ctx context.Context, sessionID uuid.UUID, typ model.IncidentType, severity model.Severity, message string, userPosition []float64) (model.SafetyIncident, bool, error)
	ListIncidents(ctx context.Context, sessionID uuid.UUID) ([]model.SafetyIncident, error)
}

// Notifier publishes incident events for server-sent-event subscribers.
type Notifier interface {
	Notify(ctx context.Context, channel, payload string) error
}

// Monitor validates, normalizes, and records safety incidents.
type Monitor struct {
	store    IncidentStore
	notifier Notifier
	channel  string
	logger   *slog.Logger
}

// New creates a Monitor. notifier may be nil, in which case incident events
// are recorded but not broadcast.
func New(store IncidentStore, notifier Notifier, channel string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: store, notifier: notifier, channel: channel, logger: logger}
}

// incidentEvent is the payload broadcast when an incident is recorded.
type incidentEvent struct {
	IncidentID     uuid.UUID      `json:"incident_id"`
	SessionID      uuid.UUID      `json:"session_id"`
	Type           string         `json:"type"`
	Severity       model.Severity `json:"severity"`
	TriggeredPause bool           `json:"triggered_pause"`
}

// LogIncident records one incident against a session. The raw severity is
// normalized onto the canonical info/warning/critical scale before storage.
// Returns the stored incident and whether it paused the session.
func (m *Monitor) LogIncident(ctx context.Context, sessionID uuid.UUID, req model.LogIncidentRequest) (model.SafetyIncident, bool, error) {
	if err := req.Validate(); err != nil {
		return model.SafetyIncident{}, false, err
	}
	severity, err := model.NormalizeSeverity(req.Severity)
	if err != nil {
		return model.SafetyIncident{}, false, err
	}

	inc, paused, err := m.store.AppendIncident(ctx, sessionID, model.IncidentType(req.Type), severity, req.Message, req.UserPosition)
	if err != nil {
		return model.SafetyIncident{}, false, err
	}

	if paused {
		m.logger.Warn("critical incident paused session",
			"session_id", sessionID,
			"incident_id", inc.ID,
			"type", inc.Type,
		)
	}

	m.broadcast(ctx, inc)
	return inc, paused, nil
}

// ListIncidents returns a session's incidents in chronological order.
func (m *Monitor) ListIncidents(ctx context.Context, sessionID uuid.UUID) ([]model.SafetyIncident, error) {
	return m.store.ListIncidents(ctx, sessionID)
}

func (m *Monitor) broadcast(ctx context.Context, inc model.SafetyIncident) {
	if m.notifier == nil {
		return
	}
	payload, err := json.Marshal(incidentEvent{
		IncidentID:     inc.ID,
		SessionID:      inc.SessionID,
		Type:           string(inc.Type),
		Severity:       inc.Severity,
		TriggeredPause: inc.TriggeredPause,
	})
	if err != nil {
		m.logger.Error("marshal incident event", "error", err)
		return
	}
	// Broadcast is best-effort: a notify failure must not fail the write.
	if err := m.notifier.Notify(ctx, m.channel, string(payload)); err != nil {
		m.logger.Error("notify incident event", "error", fmt.Errorf("safety: %w", err))
	}
}
