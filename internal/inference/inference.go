// Package inference is the gateway to the external pose-estimation service.
//
// The gateway is a stateless proxy: it forwards frames and report requests
// and relays verdicts unmodified. Failures are scoped to the single call —
// callers must treat them as per-frame, never session-fatal.
package inference

import (
	"context"
	"time"
)

// Client is the boundary to the inference service. Implementations must be
// safe for concurrent use: every live connection calls Analyze at camera
// frame-rate.
type Client interface {
	// Analyze submits one frame and returns the service's verdict.
	Analyze(ctx context.Context, req AnalyzeRequest) (Verdict, error)

	// RecommendDrills asks for drill recommendations keyed by weak areas.
	RecommendDrills(ctx context.Context, req DrillRequest) (DrillResponse, error)

	// SessionReport requests the end-of-session summary. Best-effort: a
	// failure here must not prevent session cleanup.
	SessionReport(ctx context.Context, req ReportRequest) (SessionReport, error)
}

// AnalyzeRequest carries one camera frame plus its session context.
type AnalyzeRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	Sport        string `json:"sport"`
	AnalysisType string `json:"analysis_type"`
	FrameData    []byte `json:"frame_data"`
}

// Verdict is the raw per-frame result relayed to the client.
type Verdict struct {
	Score     float64            `json:"score"` // 0-100
	Feedback  []string           `json:"feedback"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

// DrillRequest asks for drills targeting a user's weak areas.
type DrillRequest struct {
	Sport        string   `json:"sport"`
	SkillLevel   string   `json:"skill_level"`
	WeakAreas    []string `json:"weak_areas"`
	CurrentScore float64  `json:"current_score"`
}

// DrillRecommendation is one suggested drill.
type DrillRecommendation struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	TargetArea      string `json:"target_area"`
	DurationMinutes int    `json:"duration_minutes"`
}

// DrillResponse wraps the recommended drills.
type DrillResponse struct {
	Drills []DrillRecommendation `json:"drills"`
}

// ReportRequest identifies the finished live session to summarize.
type ReportRequest struct {
	SessionID    string  `json:"session_id"`
	UserID       string  `json:"user_id"`
	Sport        string  `json:"sport"`
	AnalysisType string  `json:"analysis_type"`
	FrameCount   int     `json:"frame_count"`
	AverageScore float64 `json:"average_score"`
}

// SessionReport is the end-of-session summary.
type SessionReport struct {
	OverallScore     float64  `json:"overall_score"`
	Summary          string   `json:"summary"`
	Strengths        []string `json:"strengths"`
	ImprovementAreas []string `json:"improvement_areas"`
}
