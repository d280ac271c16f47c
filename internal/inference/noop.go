package inference

import (
	"context"
	"time"
)

// NoopClient returns empty verdicts. Used when no inference service is
// configured, so live connections keep working with analysis disabled.
type NoopClient struct{}

// Analyze returns a zero verdict.
func (NoopClient) Analyze(_ context.Context, _ AnalyzeRequest) (Verdict, error) {
	return Verdict{Timestamp: time.Now().UTC()}, nil
}

// RecommendDrills returns no drills.
func (NoopClient) RecommendDrills(_ context.Context, _ DrillRequest) (DrillResponse, error) {
	return DrillResponse{}, nil
}

// SessionReport returns an empty report.
func (NoopClient) SessionReport(_ context.Context, _ ReportRequest) (SessionReport, error) {
	return SessionReport{}, nil
}
