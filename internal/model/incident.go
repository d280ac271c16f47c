package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity is the canonical incident severity scale.
//
// Clients report on two different scales depending on platform: the web
// estimator sends info/warning/critical, the native AR kit sends
// low/medium/high/critical. NormalizeSeverity folds both onto this scale.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severityAliases maps every accepted input severity onto the canonical scale.
var severityAliases = map[string]Severity{
	"info":     SeverityInfo,
	"low":      SeverityInfo,
	"warning":  SeverityWarning,
	"medium":   SeverityWarning,
	"high":     SeverityWarning,
	"critical": SeverityCritical,
}

// NormalizeSeverity maps a client-reported severity onto the canonical scale.
// Unknown values are a validation error, not a silent downgrade.
func NormalizeSeverity(raw string) (Severity, error) {
	if s, ok := severityAliases[raw]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown severity %q", raw)
}

// IncidentType classifies a safety incident.
type IncidentType string

const (
	IncidentBoundaryViolation   IncidentType = "boundary_violation"
	IncidentCollisionRisk       IncidentType = "collision_risk"
	IncidentPoseUnsafe          IncidentType = "pose_unsafe"
	IncidentTrackingLost        IncidentType = "tracking_lost"
	IncidentCeilingCollision    IncidentType = "ceiling_collision"
	IncidentWallProximity       IncidentType = "wall_proximity"
	IncidentFloorHazard         IncidentType = "floor_hazard"
	IncidentMovementRestriction IncidentType = "movement_restriction"
)

var validIncidentTypes = map[IncidentType]bool{
	IncidentBoundaryViolation:   true,
	IncidentCollisionRisk:       true,
	IncidentPoseUnsafe:          true,
	IncidentTrackingLost:        true,
	IncidentCeilingCollision:    true,
	IncidentWallProximity:       true,
	IncidentFloorHazard:         true,
	IncidentMovementRestriction: true,
}

// ValidateIncidentType rejects unknown incident types.
func ValidateIncidentType(t IncidentType) error {
	if !validIncidentTypes[t] {
		return fmt.Errorf("unknown incident type %q", t)
	}
	return nil
}

// SafetyIncident is an append-only log entry tied to a room session.
// Never mutated after creation.
type SafetyIncident struct {
	ID             uuid.UUID    `json:"id"`
	SessionID      uuid.UUID    `json:"session_id"`
	Type           IncidentType `json:"type"`
	Severity       Severity     `json:"severity"`
	Message        string       `json:"message"`
	UserPosition   []float64    `json:"user_position,omitempty"` // 3-vector, meters
	TriggeredPause bool         `json:"triggered_pause"`
	OccurredAt     time.Time    `json:"occurred_at"`
}

// LogIncidentRequest is the payload for POST /v1/rooms/{id}/incidents.
// Severity is the raw client string; it is normalized before storage.
type LogIncidentRequest struct {
	Type         IncidentType `json:"type"`
	Severity     string       `json:"severity"`
	Message      string       `json:"message"`
	UserPosition []float64    `json:"user_position,omitempty"`
}

// Validate checks the incident payload. A malformed incident is rejected
// wholesale with no side effect on session state.
func (r LogIncidentRequest) Validate() error {
	if err := ValidateIncidentType(r.Type); err != nil {
		return err
	}
	if _, err := NormalizeSeverity(r.Severity); err != nil {
		return err
	}
	if len(r.UserPosition) != 0 && len(r.UserPosition) != 3 {
		return fmt.Errorf("user_position must be a 3-vector")
	}
	return nil
}
