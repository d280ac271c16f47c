package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PerformanceSnapshot is an append-only per-session record of the scores the
// trend engine consumes. One row per sampling interval.
type PerformanceSnapshot struct {
	ID                    uuid.UUID `json:"id"`
	SessionID             uuid.UUID `json:"session_id"`
	AdaptationScore       float64   `json:"adaptation_score"`
	SpaceUtilizationScore float64   `json:"space_utilization_score"`
	SafetyComplianceScore float64   `json:"safety_compliance_score"`
	RecordedAt            time.Time `json:"recorded_at"`
}

// RecordSnapshotRequest is the payload for POST /v1/rooms/{id}/metrics.
type RecordSnapshotRequest struct {
	AdaptationScore       float64 `json:"adaptation_score"`
	SpaceUtilizationScore float64 `json:"space_utilization_score"`
	SafetyComplianceScore float64 `json:"safety_compliance_score"`
}

// Validate checks that every score is in [0,100].
func (r RecordSnapshotRequest) Validate() error {
	for _, v := range []struct {
		name  string
		score float64
	}{
		{"adaptation_score", r.AdaptationScore},
		{"space_utilization_score", r.SpaceUtilizationScore},
		{"safety_compliance_score", r.SafetyComplianceScore},
	} {
		if v.score < 0 || v.score > 100 {
			return fmt.Errorf("%s must be in [0,100]", v.name)
		}
	}
	return nil
}
