// Package model defines the core domain types for FormSync.
//
// All types correspond directly to database tables and wire payloads.
// Types use strong typing (UUIDs, time.Time, enums) and avoid
// interface{} wherever possible.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a room session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// validStatuses is the closed set of session states.
var validStatuses = map[SessionStatus]bool{
	StatusActive:    true,
	StatusPaused:    true,
	StatusCompleted: true,
	StatusFailed:    true,
}

// IsTerminal reports whether s admits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the status transition from -> to is legal.
// completed and failed are terminal; paused -> active is the only backward edge.
func CanTransition(from, to SessionStatus) bool {
	if !validStatuses[from] || !validStatuses[to] || from == to {
		return false
	}
	if from.IsTerminal() {
		return false
	}
	// From active or paused, any of the other three states is reachable.
	return true
}

// Platform identifies which client type reported a room session update.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformNativeAR Platform = "native_ar"
)

// ValidatePlatform rejects unknown platform identifiers.
func ValidatePlatform(p Platform) error {
	if p != PlatformWeb && p != PlatformNativeAR {
		return fmt.Errorf("unknown platform %q (expected %q or %q)", p, PlatformWeb, PlatformNativeAR)
	}
	return nil
}

// RoomGeometry describes the measured training space.
type RoomGeometry struct {
	Width         float64  `json:"width"`
	Height        float64  `json:"height"`
	Area          float64  `json:"area"`
	CeilingHeight *float64 `json:"ceiling_height,omitempty"`
	IsFlat        bool     `json:"is_flat"`
	AspectRatio   float64  `json:"aspect_ratio"`
}

// Validate checks the geometry constraints. Aspect ratio consistency with
// width/height is deliberately not enforced — the caller is trusted there.
func (g RoomGeometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("room width and height must be positive")
	}
	if g.Area <= 0 {
		return fmt.Errorf("room area must be positive")
	}
	if g.CeilingHeight != nil && *g.CeilingHeight <= 0 {
		return fmt.Errorf("ceiling height must be positive when set")
	}
	return nil
}

// Calibration holds the spatial calibration reported by a tracking client.
type Calibration struct {
	BaselineDistance float64   `json:"baseline_distance"`
	RoomCenter       []float64 `json:"room_center,omitempty"` // 3-vector, meters
	ScaleFactor      float64   `json:"scale_factor"`
}

// RoomSession is the single authoritative record for one confined-space
// training attempt. It is created once and updated in place by sync calls
// from either platform; incidents and metric snapshots hang off it as
// append-only history.
type RoomSession struct {
	ID           uuid.UUID    `json:"id"`
	UserID       string       `json:"user_id"`
	Sport        string       `json:"sport"`
	Difficulty   string       `json:"difficulty"`
	DrillPattern string       `json:"drill_pattern"`
	Room         RoomGeometry `json:"room"`
	Calibration  Calibration  `json:"calibration"`

	SafetyScore        float64 `json:"safety_score"` // 0-100
	ObstacleCount      int     `json:"obstacle_count"`
	LightingConditions string  `json:"lighting_conditions"`
	ReflectiveSurfaces bool    `json:"reflective_surfaces"`

	Platform        Platform `json:"platform"` // most recent reporter; audit only
	AverageFPS      float64  `json:"average_fps"`
	TrackingQuality float64  `json:"tracking_quality"` // 0-100

	Status               SessionStatus `json:"status"`
	TotalScore           *float64      `json:"total_score,omitempty"` // set on completion
	IncidentCount        int           `json:"incident_count"`
	LastIncidentSeverity *Severity     `json:"last_incident_severity,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateRoomSessionRequest is the payload for POST /v1/rooms.
type CreateRoomSessionRequest struct {
	UserID       string       `json:"user_id"`
	Sport        string       `json:"sport"`
	Difficulty   string       `json:"difficulty"`
	DrillPattern string       `json:"drill_pattern"`
	Room         RoomGeometry `json:"room"`
	Calibration  Calibration  `json:"calibration"`
	Platform     Platform     `json:"platform"`
	SafetyScore  float64      `json:"safety_score"`
}

// Validate checks the create payload.
func (r CreateRoomSessionRequest) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Sport == "" {
		return fmt.Errorf("sport is required")
	}
	if err := ValidatePlatform(r.Platform); err != nil {
		return err
	}
	if err := r.Room.Validate(); err != nil {
		return err
	}
	if r.SafetyScore < 0 || r.SafetyScore > 100 {
		return fmt.Errorf("safety_score must be in [0,100]")
	}
	if len(r.Calibration.RoomCenter) != 0 && len(r.Calibration.RoomCenter) != 3 {
		return fmt.Errorf("room_center must be a 3-vector")
	}
	return nil
}

// SyncRoomSessionRequest is a partial update from one platform.
// Nil fields were omitted from the payload and leave the stored value
// untouched; the merge rules per field live in the room coordinator.
type SyncRoomSessionRequest struct {
	Platform Platform `json:"platform"`

	AverageFPS      *float64 `json:"average_fps,omitempty"`
	TrackingQuality *float64 `json:"tracking_quality,omitempty"`
	SafetyScore     *float64 `json:"safety_score,omitempty"`

	RoomCenter         []float64 `json:"room_center,omitempty"`
	ScaleFactor        *float64  `json:"scale_factor,omitempty"`
	ObstacleCount      *int      `json:"obstacle_count,omitempty"`
	LightingConditions *string   `json:"lighting_conditions,omitempty"`
	ReflectiveSurfaces *bool     `json:"reflective_surfaces,omitempty"`
}

// Validate checks the sync payload.
func (r SyncRoomSessionRequest) Validate() error {
	if err := ValidatePlatform(r.Platform); err != nil {
		return err
	}
	if r.SafetyScore != nil && (*r.SafetyScore < 0 || *r.SafetyScore > 100) {
		return fmt.Errorf("safety_score must be in [0,100]")
	}
	if r.TrackingQuality != nil && (*r.TrackingQuality < 0 || *r.TrackingQuality > 100) {
		return fmt.Errorf("tracking_quality must be in [0,100]")
	}
	if r.AverageFPS != nil && *r.AverageFPS < 0 {
		return fmt.Errorf("average_fps must be non-negative")
	}
	if r.ObstacleCount != nil && *r.ObstacleCount < 0 {
		return fmt.Errorf("obstacle_count must be non-negative")
	}
	if len(r.RoomCenter) != 0 && len(r.RoomCenter) != 3 {
		return fmt.Errorf("room_center must be a 3-vector")
	}
	return nil
}

// CompleteRoomSessionRequest records the final score for a session.
type CompleteRoomSessionRequest struct {
	TotalScore float64 `json:"total_score"`
}

// Validate checks the completion payload.
func (r CompleteRoomSessionRequest) Validate() error {
	if r.TotalScore < 0 || r.TotalScore > 100 {
		return fmt.Errorf("total_score must be in [0,100]")
	}
	return nil
}

// SyncStatus is the full read-back of one session: the authoritative record
// plus its append-only histories. IsConsistent is always true by construction —
// there is exactly one writable row per session, so there is nothing to diverge.
type SyncStatus struct {
	Session      RoomSession           `json:"session"`
	Incidents    []SafetyIncident      `json:"incidents"`
	Metrics      []PerformanceSnapshot `json:"metrics"`
	IsConsistent bool                  `json:"is_consistent"`
}

// SessionStats is the per-session input to trend computation: the final score
// and incident count of one completed session.
type SessionStats struct {
	TotalScore    float64   `json:"total_score"`
	IncidentCount int       `json:"incident_count"`
	CompletedAt   time.Time `json:"completed_at"`
}

// UserSessions groups a user's sessions by reporting platform for the caller's
// convenience. A session appears under the platform that synced it last.
type UserSessions struct {
	UserID     string                     `json:"user_id"`
	Sessions   []RoomSession              `json:"sessions"`
	ByPlatform map[Platform][]RoomSession `json:"by_platform"`
}
