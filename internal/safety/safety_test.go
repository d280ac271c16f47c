package safety

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/formsync/internal/model"
)

// fakeStore mimics the storage pause semantics: the first critical incident
// against an active session pauses it, later criticals do not.
type fakeStore struct {
	status    model.SessionStatus
	incidents []model.SafetyIncident
	appendErr error
}

func (f *fakeStore) AppendIncident(_ context.Context, sessionID uuid.UUID, typ model.IncidentType, severity model.Severity, message string, userPosition []float64) (model.SafetyIncident, bool, error) {
	if f.appendErr != nil {
		return model.SafetyIncident{}, false, f.appendErr
	}
	paused := severity == model.SeverityCritical && f.status == model.StatusActive
	if paused {
		f.status = model.StatusPaused
	}
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
	f.incidents = append(f.incidents, inc)
	return inc, paused, nil
}

func (f *fakeStore) ListIncidents(_ context.Context, _ uuid.UUID) ([]model.SafetyIncident, error) {
	return f.incidents, nil
}

type fakeNotifier struct {
	payloads []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ string, payload string) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestLogIncidentNormalizesSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Severity
	}{
		{"info", model.SeverityInfo},
		{"low", model.SeverityInfo},
		{"warning", model.SeverityWarning},
		{"medium", model.SeverityWarning},
		{"high", model.SeverityWarning},
		{"critical", model.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			store := &fakeStore{status: model.StatusActive}
			m := New(store, nil, "incidents", discardLogger())

			inc, _, err := m.LogIncident(context.Background(), uuid.New(), model.LogIncidentRequest{
				Type:     model.IncidentWallProximity,
				Severity: tt.raw,
				Message:  "too close to wall",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, inc.Severity)
		})
	}
}

func TestLogIncidentRejectsBadInput(t *testing.T) {
	store := &fakeStore{status: model.StatusActive}
	m := New(store, nil, "incidents", discardLogger())

	_, _, err := m.LogIncident(context.Background(), uuid.New(), model.LogIncidentRequest{
		Type:     "meteor_strike",
		Severity: "critical",
	})
	assert.Error(t, err)

	_, _, err = m.LogIncident(context.Background(), uuid.New(), model.LogIncidentRequest{
		Type:     model.IncidentCollisionRisk,
		Severity: "catastrophic",
	})
	assert.Error(t, err)

	// A rejected incident leaves no trace.
	assert.Empty(t, store.incidents)
}

func TestCriticalIncidentPausesOnce(t *testing.T) {
	store := &fakeStore{status: model.StatusActive}
	m := New(store, nil, "incidents", discardLogger())
	sessionID := uuid.New()

	req := model.LogIncidentRequest{
		Type:         model.IncidentCollisionRisk,
		Severity:     "critical",
		Message:      "obstacle in path",
		UserPosition: []float64{0.5, 0, 1.2},
	}

	first, paused, err := m.LogIncident(context.Background(), sessionID, req)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.True(t, first.TriggeredPause)

	second, paused, err := m.LogIncident(context.Background(), sessionID, req)
	require.NoError(t, err)
	assert.False(t, paused)
	assert.False(t, second.TriggeredPause)

	assert.Equal(t, model.StatusPaused, store.status)
	assert.Len(t, store.incidents, 2)
}

func TestLogIncidentBroadcasts(t *testing.T) {
	store := &fakeStore{status: model.StatusActive}
	notifier := &fakeNotifier{}
	m := New(store, notifier, "incidents", discardLogger())

	_, _, err := m.LogIncident(context.Background(), uuid.New(), model.LogIncidentRequest{
		Type:     model.IncidentBoundaryViolation,
		Severity: "high",
		Message:  "stepped outside play area",
	})
	require.NoError(t, err)
	require.Len(t, notifier.payloads, 1)

	var event struct {
		Type           string `json:"type"`
		Severity       string `json:"severity"`
		TriggeredPause bool   `json:"triggered_pause"`
	}
	require.NoError(t, json.Unmarshal([]byte(notifier.payloads[0]), &event))
	assert.Equal(t, "boundary_violation", event.Type)
	assert.Equal(t, "warning", event.Severity)
	assert.False(t, event.TriggeredPause)
}
